package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	go_imap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	DEFAULT_IMAP_LOGOUT    = 25 * time.Minute
	DEFAULT_POLLING_PERIOD = time.Minute
)

type Dialer struct {
	mailbox        string
	dialTimeout    time.Duration
	commandTimeout time.Duration
}

func NewDialer(cfg *config.SyncConfig) *Dialer {
	return &Dialer{
		mailbox:        cfg.Mailbox,
		dialTimeout:    cfg.DialTimeout,
		commandTimeout: cfg.CommandTimeout,
	}
}

// Dial connects, authenticates and selects the synced mailbox.
func (d *Dialer) Dial(ctx context.Context, account *models.MailAccount) (interfaces.MailSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Dialer.Dial")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentIMAP(span)
	tracing.TagAccount(span, account.ID)
	span.SetTag("server", account.ImapHost)
	span.SetTag("port", account.ImapPort)
	span.SetTag("security", account.ImapSecurity.String())

	serverAddr := fmt.Sprintf("%s:%d", account.ImapHost, account.ImapPort)
	dialer := &net.Dialer{
		Timeout:   d.dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	tlsConfig := &tls.Config{ServerName: account.ImapHost}

	var c *client.Client
	var err error
	if account.ImapSecurity.ImplicitTLS() {
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		err = mserrors.Wrap(mserrors.ErrConnection, fmt.Errorf("failed to connect to %s: %w", serverAddr, err))
		tracing.TraceErr(span, err)
		return nil, err
	}

	c.Timeout = d.commandTimeout

	if account.ImapSecurity == enum.EmailSecurityStartTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Logout()
			err = mserrors.Wrap(mserrors.ErrConnection, fmt.Errorf("starttls failed: %w", err))
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	if err := c.Login(account.ImapLogin(), account.ImapPassword); err != nil {
		c.Logout()
		err = mserrors.Wrap(mserrors.ErrAuthentication, fmt.Errorf("failed to login as %s: %w", account.ImapLogin(), err))
		tracing.TraceErr(span, err)
		return nil, err
	}

	if _, err := c.Select(d.mailbox, false); err != nil {
		c.Logout()
		err = mserrors.Wrap(mserrors.ErrConnection, fmt.Errorf("failed to select %s: %w", d.mailbox, err))
		tracing.TraceErr(span, err)
		return nil, err
	}

	return newSession(c, d.commandTimeout), nil
}

type session struct {
	client         *client.Client
	commandTimeout time.Duration
	updates        chan client.Update
	newMail        chan struct{}
}

func newSession(c *client.Client, commandTimeout time.Duration) *session {
	s := &session{
		client:         c,
		commandTimeout: commandTimeout,
		updates:        make(chan client.Update, 32),
		newMail:        make(chan struct{}, 1),
	}
	c.Updates = s.updates
	go s.forwardUpdates()
	return s
}

// forwardUpdates keeps the client's update channel drained for the whole
// session so unsolicited responses never block the reader.
func (s *session) forwardUpdates() {
	for {
		select {
		case <-s.client.LoggedOut():
			return
		case update := <-s.updates:
			if _, ok := update.(*client.MailboxUpdate); ok {
				select {
				case s.newMail <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (s *session) SearchUIDs(ctx context.Context, after uint32) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.client.Timeout = s.commandTimeout

	criteria := go_imap.NewSearchCriteria()
	if after > 0 {
		seqSet := new(go_imap.SeqSet)
		seqSet.AddRange(after+1, 0)
		criteria.Uid = seqSet
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, mserrors.Wrap(mserrors.ErrConnection, fmt.Errorf("uid search failed: %w", err))
	}

	// "n:*" always matches the newest message, even below n
	result := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if uid > after {
			result = append(result, uid)
		}
	}
	return result, nil
}

func (s *session) FetchMessage(ctx context.Context, uid uint32) (*dto.FetchedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.client.Timeout = s.commandTimeout

	seqSet := new(go_imap.SeqSet)
	seqSet.AddNum(uid)
	section := &go_imap.BodySectionName{Peek: true}
	items := []go_imap.FetchItem{
		section.FetchItem(),
		go_imap.FetchFlags,
		go_imap.FetchUid,
		go_imap.FetchEnvelope,
		go_imap.FetchInternalDate,
	}

	messages := make(chan *go_imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var msg *go_imap.Message
	for m := range messages {
		if m != nil && m.Uid == uid {
			msg = m
		}
	}
	if err := <-done; err != nil {
		if isConnectionError(err) {
			return nil, mserrors.Wrap(mserrors.ErrConnection, err)
		}
		return nil, mserrors.Wrap(mserrors.ErrFetchOrParse, fmt.Errorf("fetch uid %d: %w", uid, err))
	}
	if msg == nil {
		return nil, mserrors.Wrapf(mserrors.ErrFetchOrParse, "uid %d not returned by server", uid)
	}

	literal := msg.GetBody(section)
	if literal == nil {
		return nil, mserrors.Wrapf(mserrors.ErrFetchOrParse, "uid %d has no body", uid)
	}
	raw, err := io.ReadAll(literal)
	if err != nil {
		return nil, mserrors.Wrap(mserrors.ErrFetchOrParse, err)
	}

	return &dto.FetchedMessage{
		UID:          uid,
		Flags:        msg.Flags,
		InternalDate: msg.InternalDate,
		Raw:          raw,
	}, nil
}

// Idle runs IDLE until ctx is done. Any other exit means the session is unusable.
func (s *session) Idle(ctx context.Context, notify chan<- struct{}) error {
	s.client.Timeout = 0

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.client.Idle(stop, &client.IdleOptions{
			LogoutTimeout: DEFAULT_IMAP_LOGOUT,
			PollInterval:  DEFAULT_POLLING_PERIOD,
		})
	}()

	ctxDone := ctx.Done()
	for {
		select {
		case <-ctxDone:
			close(stop)
			ctxDone = nil
		case <-s.newMail:
			select {
			case notify <- struct{}{}:
			default:
			}
		case err := <-done:
			if ctx.Err() != nil && err == nil {
				return nil
			}
			if err == nil {
				err = fmt.Errorf("idle ended unexpectedly")
			}
			return mserrors.Wrap(mserrors.ErrConnection, err)
		}
	}
}

func (s *session) Close() error {
	select {
	case <-s.client.LoggedOut():
		return nil
	default:
	}
	s.client.Timeout = 10 * time.Second
	if err := s.client.Logout(); err != nil {
		return s.client.Terminate()
	}
	return nil
}
