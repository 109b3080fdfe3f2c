package imap

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services/mailbox_sync"
)

type Syncer interface {
	Sync(ctx context.Context, account *models.MailAccount, session interfaces.MailSession) (*mailbox_sync.Result, error)
}

type ConnectionStatus struct {
	AccountID   string                `json:"accountId"`
	Email       string                `json:"email"`
	Status      enum.ConnectionStatus `json:"status"`
	LastError   string                `json:"lastError,omitempty"`
	NextRetryAt *time.Time            `json:"nextRetryAt,omitempty"`
}

type accountWorker struct {
	account     *models.MailAccount
	session     interfaces.MailSession
	requests    chan struct{}
	connecting  bool
	retry       *time.Timer
	nextRetryAt *time.Time
	lastError   string
	cancel      context.CancelFunc
}

func (w *accountWorker) request() {
	select {
	case w.requests <- struct{}{}:
	default:
	}
}

// Manager keeps at most one live session per account. Each connected account
// gets a worker goroutine that alternates between IDLE and sync passes.
type Manager struct {
	dialer   interfaces.SessionDialer
	syncer   Syncer
	settings interfaces.SettingsProvider
	states   interfaces.SyncStateRepository
	log      logger.Logger

	reconnectBackoff time.Duration
	authBackoff      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*accountWorker
}

func NewManager(
	cfg *config.SyncConfig,
	dialer interfaces.SessionDialer,
	syncer Syncer,
	settings interfaces.SettingsProvider,
	states interfaces.SyncStateRepository,
	log logger.Logger,
) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dialer:           dialer,
		syncer:           syncer,
		settings:         settings,
		states:           states,
		log:              log,
		reconnectBackoff: cfg.ReconnectBackoff,
		authBackoff:      cfg.AuthRetryBackoff,
		ctx:              ctx,
		cancel:           cancel,
		workers:          make(map[string]*accountWorker),
	}
}

// EnsureConnection is a no-op when the account already has a session or a dial
// in progress. Otherwise it dials, starts the account worker and runs one sync.
func (m *Manager) EnsureConnection(ctx context.Context, account *models.MailAccount) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Manager.EnsureConnection")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentIMAP(span)
	tracing.TagAccount(span, account.ID)

	if m.ctx.Err() != nil {
		return m.ctx.Err()
	}

	m.mu.Lock()
	w, ok := m.workers[account.ID]
	if !ok {
		w = &accountWorker{requests: make(chan struct{}, 1)}
		m.workers[account.ID] = w
	}
	w.account = account
	if w.session != nil || w.connecting {
		m.mu.Unlock()
		return nil
	}
	w.connecting = true
	if w.retry != nil {
		w.retry.Stop()
		w.retry = nil
		w.nextRetryAt = nil
	}
	m.mu.Unlock()

	session, err := m.dialer.Dial(ctx, account)

	m.mu.Lock()
	w.connecting = false
	if current, ok := m.workers[account.ID]; !ok || current != w {
		// account was closed while dialing
		m.mu.Unlock()
		if session != nil {
			session.Close()
		}
		return nil
	}
	if err != nil {
		w.lastError = err.Error()
		m.scheduleRetryLocked(account.ID, w, err)
		m.mu.Unlock()

		tracing.TraceErr(span, err)
		m.log.Errorf("failed to connect account %s (%s): %v", account.ID, account.Email, err)
		m.recordConnectError(account.ID, err)
		return err
	}
	if m.ctx.Err() != nil {
		// stopped while dialing
		m.mu.Unlock()
		session.Close()
		return m.ctx.Err()
	}
	workerCtx, cancel := context.WithCancel(m.ctx)
	w.session = session
	w.cancel = cancel
	w.lastError = ""
	m.wg.Add(1)
	m.mu.Unlock()

	m.log.Infof("connected account %s (%s)", account.ID, account.Email)
	go m.run(workerCtx, account.ID, w, session)
	return nil
}

func (m *Manager) recordConnectError(accountID string, err error) {
	ctx := context.Background()
	if _, stateErr := m.states.GetOrCreate(ctx, accountID); stateErr != nil {
		m.log.Warnf("failed to load sync state for account %s: %v", accountID, stateErr)
		return
	}
	if markErr := m.states.MarkError(ctx, accountID, err.Error()); markErr != nil {
		m.log.Warnf("failed to record connection error for account %s: %v", accountID, markErr)
	}
}

// scheduleRetryLocked arms a single fixed-delay reconnect. Authentication
// failures wait longer since retrying bad credentials cannot succeed sooner.
func (m *Manager) scheduleRetryLocked(accountID string, w *accountWorker, cause error) {
	if m.ctx.Err() != nil {
		return
	}
	backoff := m.reconnectBackoff
	if mserrors.KindOf(cause) == mserrors.ErrAuthentication {
		backoff = m.authBackoff
	}
	if w.retry != nil {
		w.retry.Stop()
	}
	at := time.Now().Add(backoff)
	w.nextRetryAt = &at
	w.retry = time.AfterFunc(backoff, func() {
		m.retryConnection(accountID, w)
	})
}

func (m *Manager) retryConnection(accountID string, w *accountWorker) {
	m.mu.Lock()
	current, ok := m.workers[accountID]
	if !ok || current != w || w.session != nil {
		m.mu.Unlock()
		return
	}
	w.retry = nil
	w.nextRetryAt = nil
	account := w.account
	m.mu.Unlock()

	_ = m.EnsureConnection(m.ctx, account)
}

func (m *Manager) run(ctx context.Context, accountID string, w *accountWorker, session interfaces.MailSession) {
	defer m.wg.Done()
	defer tracing.RecoverAndLogToJaeger(m.log)

	if err := m.syncOnce(ctx, w, session); isSessionFailure(err) {
		m.dropSession(accountID, w, session, err)
		return
	}

	notify := make(chan struct{}, 1)
	for {
		idleCtx, stopIdle := context.WithCancel(ctx)
		idleDone := make(chan error, 1)
		go func() {
			idleDone <- session.Idle(idleCtx, notify)
		}()

		var err error
		select {
		case <-ctx.Done():
			stopIdle()
			<-idleDone
			session.Close()
			return
		case err = <-idleDone:
		case <-notify:
			stopIdle()
			err = <-idleDone
		case <-w.requests:
			stopIdle()
			err = <-idleDone
		}
		stopIdle()

		if ctx.Err() != nil {
			session.Close()
			return
		}
		if err != nil {
			m.dropSession(accountID, w, session, err)
			return
		}

		// collapse signals that arrived while idle was winding down
		drain(notify)
		drain(w.requests)

		if err := m.syncOnce(ctx, w, session); isSessionFailure(err) {
			m.dropSession(accountID, w, session, err)
			return
		}
	}
}

func (m *Manager) syncOnce(ctx context.Context, w *accountWorker, session interfaces.MailSession) error {
	m.mu.Lock()
	account := w.account
	m.mu.Unlock()

	result, err := m.syncer.Sync(ctx, account, session)
	if err != nil {
		m.log.Warnf("sync pass failed for account %s: %v", account.ID, err)
		return err
	}
	if result != nil && result.Skipped {
		m.log.Debugf("sync already running for account %s", account.ID)
	}
	return nil
}

func isSessionFailure(err error) bool {
	kind := mserrors.KindOf(err)
	return kind == mserrors.ErrConnection || kind == mserrors.ErrAuthentication
}

// dropSession closes a failed session so the next EnsureConnection or the
// scheduled retry recreates it.
func (m *Manager) dropSession(accountID string, w *accountWorker, session interfaces.MailSession, cause error) {
	session.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	if w.session != session {
		return
	}
	w.session = nil
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.lastError = cause.Error()
	if current, ok := m.workers[accountID]; ok && current == w {
		m.scheduleRetryLocked(accountID, w, cause)
	}
	m.log.Warnf("session for account %s dropped: %v", accountID, cause)
}

// TriggerSync requests an immediate pass for one account, connecting it first when needed.
func (m *Manager) TriggerSync(ctx context.Context, accountID string) error {
	m.mu.Lock()
	w, ok := m.workers[accountID]
	if ok && w.session != nil {
		w.request()
		m.mu.Unlock()
		return nil
	}
	connecting := ok && w.connecting
	m.mu.Unlock()

	if connecting {
		return nil
	}

	account, err := m.settings.GetMailAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return mserrors.ErrAccountNotFound
	}
	if !account.CanReceive() {
		return mserrors.Wrapf(mserrors.ErrConfiguration, "account %s has incomplete imap settings", accountID)
	}
	return m.EnsureConnection(ctx, account)
}

// SyncAll reconciles workers with the configured accounts and requests a pass
// on every connected one. Dials run concurrently so one unreachable server
// never delays the others.
func (m *Manager) SyncAll(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Manager.SyncAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentIMAP(span)

	accounts, err := m.settings.ListMailAccounts(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	configured := make(map[string]struct{}, len(accounts))
	for i := range accounts {
		account := accounts[i]
		if !account.CanReceive() {
			continue
		}
		configured[account.ID] = struct{}{}

		m.mu.Lock()
		w, ok := m.workers[account.ID]
		if ok && w.session != nil {
			w.account = &account
			w.request()
			m.mu.Unlock()
			continue
		}
		pendingRetry := ok && (w.connecting || w.retry != nil)
		m.mu.Unlock()

		if pendingRetry {
			continue
		}
		go func(account *models.MailAccount) {
			defer tracing.RecoverAndLogToJaeger(m.log)
			_ = m.EnsureConnection(m.ctx, account)
		}(&account)
	}

	for _, accountID := range m.accountIDs() {
		if _, ok := configured[accountID]; !ok {
			m.log.Infof("account %s no longer configured, closing session", accountID)
			m.Close(accountID)
		}
	}
	return nil
}

func (m *Manager) accountIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	return ids
}

// Close stops the account worker and forgets the account.
func (m *Manager) Close(accountID string) {
	m.mu.Lock()
	w, ok := m.workers[accountID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.workers, accountID)
	if w.retry != nil {
		w.retry.Stop()
	}
	if w.cancel != nil {
		w.cancel()
	}
	m.mu.Unlock()
}

func (m *Manager) Status() []ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]ConnectionStatus, 0, len(m.workers))
	for id, w := range m.workers {
		status := ConnectionStatus{AccountID: id, LastError: w.lastError, NextRetryAt: w.nextRetryAt}
		if w.account != nil {
			status.Email = w.account.Email
		}
		switch {
		case w.session != nil:
			status.Status = enum.ConnectionStatusConnected
		case w.connecting:
			status.Status = enum.ConnectionStatusConnecting
		default:
			status.Status = enum.ConnectionStatusRetrying
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// Stop cancels every worker and waits for them to log out.
func (m *Manager) Stop() {
	m.cancel()

	m.mu.Lock()
	for _, w := range m.workers {
		if w.retry != nil {
			w.retry.Stop()
		}
	}
	m.mu.Unlock()

	m.wg.Wait()
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
