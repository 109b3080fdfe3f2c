package mailbox_sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

type fakeStates struct {
	mu     sync.Mutex
	states map[string]*models.SyncState
	marks  []string
	errOn  string
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[string]*models.SyncState)}
}

func (f *fakeStates) seed(accountID string, lastUID uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := models.NewSyncState(accountID)
	state.LastUID = lastUID
	f.states[accountID] = state
}

func (f *fakeStates) snapshot(accountID string) models.SyncState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.states[accountID]
}

func (f *fakeStates) Get(_ context.Context, accountID string) (*models.SyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[accountID]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (f *fakeStates) GetOrCreate(ctx context.Context, accountID string) (*models.SyncState, error) {
	f.mu.Lock()
	if _, ok := f.states[accountID]; !ok {
		f.states[accountID] = models.NewSyncState(accountID)
	}
	f.mu.Unlock()
	return f.Get(ctx, accountID)
}

func (f *fakeStates) List(context.Context) ([]models.SyncState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SyncState
	for _, s := range f.states {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeStates) MarkSyncing(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, "syncing")
	f.states[accountID].Status = enum.SyncStatusSyncing
	return nil
}

func (f *fakeStates) MarkIdle(_ context.Context, accountID string, lastUID uint32, retryAfter *uint32, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, "idle")
	state := f.states[accountID]
	state.Status = enum.SyncStatusIdle
	state.LastError = ""
	state.LastSyncAt = &at
	if lastUID > state.LastUID {
		state.LastUID = lastUID
	}
	state.RetryAfterUID = retryAfter
	return nil
}

func (f *fakeStates) MarkError(_ context.Context, accountID string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, "error")
	state := f.states[accountID]
	state.Status = enum.SyncStatusError
	state.LastError = message
	return nil
}

func (f *fakeStates) ResetStaleSyncing(context.Context) (int64, error) { return 0, nil }

func (f *fakeStates) Delete(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, accountID)
	return nil
}

type fakeMessages struct {
	mu        sync.Mutex
	byUID     map[string]*models.MailMessage
	upsertErr error
	nextID    int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byUID: make(map[string]*models.MailMessage)}
}

func uidKey(accountID string, uid uint32) string {
	return fmt.Sprintf("%s/%d", accountID, uid)
}

func (f *fakeMessages) seed(accountID string, uid uint32) {
	u := uid
	f.byUID[uidKey(accountID, uid)] = &models.MailMessage{ID: fmt.Sprintf("seed-%d", uid), AccountID: accountID, ImapUID: &u}
}

func (f *fakeMessages) get(accountID string, uid uint32) *models.MailMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUID[uidKey(accountID, uid)]
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byUID)
}

func (f *fakeMessages) CountByAccount(_ context.Context, accountID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for key := range f.byUID {
		if strings.HasPrefix(key, accountID+"/") {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) ExistingUIDs(_ context.Context, accountID string, uids []uint32) (map[uint32]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint32]struct{})
	for _, uid := range uids {
		if _, ok := f.byUID[uidKey(accountID, uid)]; ok {
			out[uid] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeMessages) Upsert(_ context.Context, message *models.MailMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	key := uidKey(message.AccountID, *message.ImapUID)
	if stored, ok := f.byUID[key]; ok {
		stored.IsRead = message.IsRead
		stored.IsStarred = message.IsStarred
		stored.Folder = message.Folder
		return false, nil
	}
	f.nextID++
	message.ID = fmt.Sprintf("msg-%d", f.nextID)
	f.byUID[key] = message
	return true, nil
}

func (f *fakeMessages) CreateLocal(context.Context, *models.MailMessage) error { return nil }

func (f *fakeMessages) GetByID(context.Context, string) (*models.MailMessage, error) { return nil, nil }

func (f *fakeMessages) ListByAccount(context.Context, string, enum.Folder, int, int) ([]models.MailMessage, error) {
	return nil, nil
}

func (f *fakeMessages) ListByThread(context.Context, string, string) ([]models.MailMessage, error) {
	return nil, nil
}

type fakeSession struct {
	mu        sync.Mutex
	uids      []uint32
	raw       map[uint32][]byte
	flags     map[uint32][]string
	fetchErr  map[uint32]error
	searchErr error
	fetched   []uint32
	searched  []uint32
	block     chan struct{}
	entered   chan struct{}
}

func newFakeSession(uids ...uint32) *fakeSession {
	s := &fakeSession{
		uids:     uids,
		raw:      make(map[uint32][]byte),
		flags:    make(map[uint32][]string),
		fetchErr: make(map[uint32]error),
	}
	for _, uid := range uids {
		s.raw[uid] = rawEmail(fmt.Sprintf("sender%d@example.com", uid), fmt.Sprintf("Message %d", uid), fmt.Sprintf("<m%d@example.com>", uid), "", "")
	}
	return s
}

func (s *fakeSession) SearchUIDs(ctx context.Context, after uint32) ([]uint32, error) {
	if s.entered != nil {
		close(s.entered)
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searched = append(s.searched, after)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var out []uint32
	for _, uid := range s.uids {
		if uid > after {
			out = append(out, uid)
		}
	}
	return out, nil
}

func (s *fakeSession) FetchMessage(_ context.Context, uid uint32) (*dto.FetchedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetched = append(s.fetched, uid)
	if err := s.fetchErr[uid]; err != nil {
		return nil, err
	}
	return &dto.FetchedMessage{
		UID:          uid,
		Flags:        s.flags[uid],
		InternalDate: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Raw:          s.raw[uid],
	}, nil
}

func (s *fakeSession) Idle(ctx context.Context, _ chan<- struct{}) error {
	<-ctx.Done()
	return nil
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) fetchOrder() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.fetched...)
}

type fakeContacts struct {
	clients map[string]*models.Client
	leads   map[string]*models.Lead
	err     error
}

func (f *fakeContacts) FindClientByEmail(_ context.Context, email string) (*models.Client, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clients[strings.ToLower(email)], nil
}

func (f *fakeContacts) FindLeadByEmail(_ context.Context, email string) (*models.Lead, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.leads[strings.ToLower(email)], nil
}

func (f *fakeContacts) GetLeadByID(context.Context, string) (*models.Lead, error)     { return nil, nil }
func (f *fakeContacts) GetClientByID(context.Context, string) (*models.Client, error) { return nil, nil }
func (f *fakeContacts) GetPrimaryActiveService(context.Context, string) (string, error) {
	return "", nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []dto.EmailNewPayload
}

func (r *recordingSink) Emit(_ context.Context, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event == dto.EventEmailNew {
		r.events = append(r.events, payload.(dto.EmailNewPayload))
	}
}

type fakeReplies struct {
	calls [][]string
}

func (f *fakeReplies) RecordReply(_ context.Context, ids []string, _ time.Time) (int, error) {
	f.calls = append(f.calls, ids)
	return 1, nil
}

func rawEmail(from, subject, messageID, inReplyTo, references string) []byte {
	var b strings.Builder
	b.WriteString("From: Sender <" + from + ">\r\n")
	b.WriteString("To: me@example.com\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	if messageID != "" {
		b.WriteString("Message-ID: " + messageID + "\r\n")
	}
	if inReplyTo != "" {
		b.WriteString("In-Reply-To: " + inReplyTo + "\r\n")
	}
	if references != "" {
		b.WriteString("References: " + references + "\r\n")
	}
	b.WriteString("Date: Fri, 01 Mar 2024 10:00:00 +0000\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString("Hello there\r\n")
	return []byte(b.String())
}
