package mailbox_sync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/email_filter"
)

type Result struct {
	AccountID string `json:"accountId"`
	Skipped   bool   `json:"skipped"`
	Seen      int    `json:"seen"`
	Fetched   int    `json:"fetched"`
	Created   int    `json:"created"`
	Failed    int    `json:"failed"`
	LastUID   uint32 `json:"lastUid"`
}

type Engine struct {
	states     interfaces.SyncStateRepository
	messages   interfaces.MailMessageRepository
	classifier *FolderClassifier
	filter     *email_filter.EmailFilter
	sink       interfaces.RealtimeSink
	replies    interfaces.ReplyRecorder
	log        logger.Logger
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type EngineOption func(*Engine)

// WithReplyRecorder matches ingested replies against delivered campaign mail.
func WithReplyRecorder(replies interfaces.ReplyRecorder) EngineOption {
	return func(e *Engine) {
		e.replies = replies
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

func NewEngine(
	states interfaces.SyncStateRepository,
	messages interfaces.MailMessageRepository,
	contacts interfaces.ContactDirectory,
	sink interfaces.RealtimeSink,
	log logger.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		states:     states,
		messages:   messages,
		classifier: NewFolderClassifier(contacts),
		filter:     email_filter.NewEmailFilter(),
		sink:       sink,
		log:        log,
		now:        utils.Now,
		inFlight:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) acquire(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[accountID]; busy {
		return false
	}
	e.inFlight[accountID] = struct{}{}
	return true
}

func (e *Engine) release(accountID string) {
	e.mu.Lock()
	delete(e.inFlight, accountID)
	e.mu.Unlock()
}

func (e *Engine) IsSyncing(accountID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.inFlight[accountID]
	return busy
}

// Sync ingests every server message newer than the stored cursor. A call for an
// account that is already syncing returns a skipped result.
func (e *Engine) Sync(ctx context.Context, account *models.MailAccount, session interfaces.MailSession) (*Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.Sync")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)

	result := &Result{AccountID: account.ID}
	if !e.acquire(account.ID) {
		result.Skipped = true
		span.LogFields(tracingLog.Bool("skipped", true))
		return result, nil
	}
	defer e.release(account.ID)

	state, err := e.states.GetOrCreate(ctx, account.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	cursor := state.SearchFrom()
	result.LastUID = state.LastUID

	count, err := e.messages.CountByAccount(ctx, account.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	if count == 0 && cursor > 0 {
		e.log.Warnf("account %s has no local messages but cursor %d, searching from the start", account.ID, cursor)
		cursor = 0
	}

	if err := e.states.MarkSyncing(ctx, account.ID); err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}

	next, err := e.ingest(ctx, account, session, cursor, result)
	if err != nil {
		tracing.TraceErr(span, err)
		e.log.Errorf("sync failed for account %s: %v", account.ID, err)
		if markErr := e.states.MarkError(context.WithoutCancel(ctx), account.ID, err.Error()); markErr != nil {
			e.log.Errorf("failed to record sync error for account %s: %v", account.ID, markErr)
		}
		return result, err
	}

	// the stored cursor is never lowered; failures below it are remembered
	// so the next search restarts just under them
	var retryAfter *uint32
	if next < state.LastUID {
		if result.Failed > 0 {
			retryAfter = &next
		}
		next = state.LastUID
	}
	if err := e.states.MarkIdle(ctx, account.ID, next, retryAfter, e.now()); err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}
	result.LastUID = next

	span.LogFields(
		tracingLog.Int("seen", result.Seen),
		tracingLog.Int("created", result.Created),
		tracingLog.Int("failed", result.Failed),
		tracingLog.Uint32("last_uid", next),
	)
	if result.Fetched > 0 || result.Failed > 0 {
		e.log.Infof("synced account %s: fetched=%d created=%d failed=%d lastUid=%d",
			account.ID, result.Fetched, result.Created, result.Failed, next)
	}
	return result, nil
}

// ingest returns the cursor to persist. Messages that fail to fetch or parse hold
// the cursor just below the lowest failed uid so they are retried next cycle.
func (e *Engine) ingest(ctx context.Context, account *models.MailAccount, session interfaces.MailSession, cursor uint32, result *Result) (uint32, error) {
	uids, err := session.SearchUIDs(ctx, cursor)
	if err != nil {
		return cursor, mserrors.Wrap(mserrors.ErrConnection, err)
	}
	result.Seen = len(uids)

	maxSeen := cursor
	for _, uid := range uids {
		if uid > maxSeen {
			maxSeen = uid
		}
	}
	if len(uids) == 0 {
		return maxSeen, nil
	}

	existing, err := e.messages.ExistingUIDs(ctx, account.ID, uids)
	if err != nil {
		return cursor, err
	}

	pending := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if uid <= cursor {
			continue
		}
		if _, ok := existing[uid]; !ok {
			pending = append(pending, uid)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] > pending[j] })

	var lowestFailed uint32
	for _, uid := range pending {
		if err := ctx.Err(); err != nil {
			return cursor, err
		}

		err := e.ingestOne(ctx, account, session, uid, result)
		if err == nil {
			continue
		}
		if mserrors.KindOf(err) != mserrors.ErrFetchOrParse {
			return cursor, err
		}
		e.log.Warnf("skipping uid %d for account %s: %v", uid, account.ID, err)
		result.Failed++
		if lowestFailed == 0 || uid < lowestFailed {
			lowestFailed = uid
		}
	}

	next := maxSeen
	if lowestFailed > 0 && lowestFailed-1 < next {
		next = lowestFailed - 1
	}
	if next < cursor {
		next = cursor
	}
	return next, nil
}

func (e *Engine) ingestOne(ctx context.Context, account *models.MailAccount, session interfaces.MailSession, uid uint32, result *Result) error {
	fetched, err := session.FetchMessage(ctx, uid)
	if err != nil {
		if mserrors.KindOf(err) == nil {
			err = mserrors.Wrap(mserrors.ErrFetchOrParse, err)
		}
		return err
	}
	result.Fetched++

	message, err := parseFetched(account.ID, fetched, e.filter)
	if err != nil {
		return err
	}

	folder, err := e.classifier.Classify(ctx, message.FromAddress)
	if err != nil {
		return mserrors.Wrap(mserrors.ErrFetchOrParse, fmt.Errorf("classify sender %s: %w", message.FromAddress, err))
	}
	message.Folder = folder
	message.ThreadID = ResolveThreadID(message.References, message.InReplyTo, message.MessageID, message.Subject)

	created, err := e.messages.Upsert(ctx, message)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	result.Created++

	e.emitNew(ctx, message)
	e.recordReply(ctx, message)
	return nil
}

func (e *Engine) emitNew(ctx context.Context, message *models.MailMessage) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(ctx, dto.EventEmailNew, dto.EmailNewPayload{
		AccountID:   message.AccountID,
		ID:          message.ID,
		MessageID:   message.MessageID,
		ImapUID:     utils.GetOrDefault(message.ImapUID, 0),
		Folder:      message.Folder.String(),
		ThreadID:    message.ThreadID,
		Subject:     message.Subject,
		FromAddress: message.FromAddress,
		FromName:    message.FromName,
		SentAt:      message.SentAt,
		IsRead:      message.IsRead,
	})
}

func (e *Engine) recordReply(ctx context.Context, message *models.MailMessage) {
	if e.replies == nil {
		return
	}
	// bounces and out-of-office mail quote the original Message-ID too
	if !message.Classification.CountsAsReply() {
		return
	}
	ids := make([]string, 0, len(message.References)+1)
	if message.InReplyTo != "" {
		ids = append(ids, message.InReplyTo)
	}
	for _, ref := range message.References {
		if !utils.IsStringInSlice(ref, ids) {
			ids = append(ids, ref)
		}
	}
	if len(ids) == 0 {
		return
	}

	at := e.now()
	if message.SentAt != nil {
		at = *message.SentAt
	}
	matched, err := e.replies.RecordReply(ctx, ids, at)
	if err != nil {
		e.log.Warnf("failed to record campaign reply for message %s: %v", message.ID, err)
		return
	}
	if matched > 0 {
		e.log.Infof("message %s recorded as reply to %d campaign item(s)", message.ID, matched)
	}
}
