package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const defaultTimeout = time.Minute

type Transport struct {
	timeout time.Duration
	now     func() time.Time
}

func NewTransport(cfg *config.CampaignConfig) *Transport {
	timeout := defaultTimeout
	if cfg != nil && cfg.SmtpTimeout > 0 {
		timeout = cfg.SmtpTimeout
	}
	return &Transport{timeout: timeout, now: utils.Now}
}

// Send delivers one message through the account's SMTP server and returns the
// Message-ID it was sent with.
func (t *Transport) Send(ctx context.Context, email dto.OutboundEmail) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Transport.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := validate(email); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	account := email.Account
	tracing.TagAccount(span, account.ID)

	if email.MessageID == "" {
		email.MessageID = utils.GenerateMessageID(utils.ExtractDomainFromEmail(account.Email), "")
	}

	raw, err := buildMessage(email, t.now())
	if err != nil {
		err = mserrors.Wrap(mserrors.ErrDelivery, err)
		tracing.TraceErr(span, err)
		return "", err
	}

	if err := t.sendToServer(ctx, account, email.To, raw); err != nil {
		err = mserrors.Wrap(mserrors.ErrDelivery, err)
		tracing.TraceErr(span, err)
		return "", err
	}
	return email.MessageID, nil
}

func validate(email dto.OutboundEmail) error {
	account := email.Account
	if account == nil {
		return mserrors.Wrapf(mserrors.ErrConfiguration, "no sending account")
	}
	if !account.CanSend() {
		return mserrors.Wrapf(mserrors.ErrConfiguration, "account %s has incomplete smtp settings", account.Email)
	}
	if !mailvalidate.ValidateEmailSyntax(account.Email).IsValid {
		return mserrors.Wrapf(mserrors.ErrConfiguration, "from address %q is not valid", account.Email)
	}
	if !mailvalidate.ValidateEmailSyntax(email.To).IsValid {
		return mserrors.Wrapf(mserrors.ErrDelivery, "recipient %q is not valid", email.To)
	}
	if email.Subject == "" {
		return mserrors.Wrapf(mserrors.ErrDelivery, "email must have a subject")
	}
	if email.HTML == "" {
		return mserrors.Wrapf(mserrors.ErrDelivery, "email must have content")
	}
	return nil
}

func (t *Transport) sendToServer(ctx context.Context, account *models.MailAccount, recipient string, raw []byte) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Transport.sendToServer")
	defer span.Finish()
	span.LogKV("smtp_server", account.SmtpHost)
	span.LogKV("smtp_port", account.SmtpPort)
	span.LogKV("smtp_security", account.SmtpSecurity.String())

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, err := t.dial(ctx, account)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, account.SmtpHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{ServerName: account.SmtpHost}
	switch {
	case account.SmtpSecurity == enum.EmailSecurityStartTLS:
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	case !account.SmtpSecurity.ImplicitTLS():
		// plain connections upgrade when the server offers it, like smtp.SendMail
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if ok, _ := client.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", account.SmtpLogin(), account.SmtpPasswordOrImap(), account.SmtpHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(account.Email); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("SMTP RCPT command failed for %s: %w", recipient, err)
	}

	dataWriter, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err := dataWriter.Write(raw); err != nil {
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := dataWriter.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

func (t *Transport) dial(ctx context.Context, account *models.MailAccount) (net.Conn, error) {
	addr := net.JoinHostPort(account.SmtpHost, fmt.Sprintf("%d", account.SmtpPort))
	dialer := &net.Dialer{Timeout: t.timeout, KeepAlive: 30 * time.Second}
	if account.SmtpSecurity.ImplicitTLS() {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: account.SmtpHost}}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}
