package campaign

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
)

type fakeCampaigns struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	saves     int
	// onSave runs before a save is applied, emulating concurrent writers.
	onSave func(stored *models.Campaign)
}

func newFakeCampaigns(campaigns ...*models.Campaign) *fakeCampaigns {
	f := &fakeCampaigns{campaigns: make(map[string]*models.Campaign)}
	for _, c := range campaigns {
		if err := c.Prepare(); err != nil {
			panic(err)
		}
		f.campaigns[c.ID] = clone(c)
	}
	return f
}

func clone(c *models.Campaign) *models.Campaign {
	raw, err := json.Marshal(c)
	if err != nil {
		panic(err)
	}
	var copied models.Campaign
	if err := json.Unmarshal(raw, &copied); err != nil {
		panic(err)
	}
	return &copied
}

func (f *fakeCampaigns) get(id string) *models.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	return clone(f.campaigns[id])
}

func (f *fakeCampaigns) Create(_ context.Context, campaign *models.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[campaign.ID] = clone(campaign)
	return nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, id string) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, nil
	}
	return clone(c), nil
}

func (f *fakeCampaigns) ListByStatus(_ context.Context, statuses ...enum.CampaignStatus) ([]models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Campaign
	for _, c := range f.campaigns {
		for _, status := range statuses {
			if c.Status == status {
				out = append(out, *clone(c))
			}
		}
	}
	return out, nil
}

func (f *fakeCampaigns) SaveProgress(_ context.Context, campaign *models.Campaign, attempted []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	stored, ok := f.campaigns[campaign.ID]
	if !ok {
		return mserrors.ErrCampaignNotFound
	}
	if f.onSave != nil {
		f.onSave(stored)
	}
	stored.ApplyDelivery(campaign.Queue, attempted, fixedNow)
	*campaign = *clone(stored)
	return nil
}

func (f *fakeCampaigns) Mutate(_ context.Context, id string, fn func(*models.Campaign) error) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.campaigns[id]
	if !ok {
		return nil, mserrors.ErrCampaignNotFound
	}
	working := clone(stored)
	if err := fn(working); err != nil {
		return nil, err
	}
	if err := working.Prepare(); err != nil {
		return nil, err
	}
	f.campaigns[id] = clone(working)
	return working, nil
}

func (f *fakeCampaigns) PromoteDueScheduled(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var promoted int64
	for _, c := range f.campaigns {
		if c.Status == enum.CampaignStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			c.Status = enum.CampaignStatusQueued
			promoted++
		}
	}
	return promoted, nil
}

func (f *fakeCampaigns) RecordOpen(_ context.Context, campaignID, trackingID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[campaignID].RecordOpen(trackingID, at), nil
}

func (f *fakeCampaigns) RecordClick(_ context.Context, campaignID, trackingID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[campaignID].RecordClick(trackingID, at), nil
}

func (f *fakeCampaigns) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.campaigns, id)
	return nil
}

type fakeSettings struct {
	mu       sync.Mutex
	accounts []models.MailAccount
	company  *models.CompanySettings
	listErr  error
	sent     map[string]int
}

func (f *fakeSettings) ListMailAccounts(context.Context) ([]models.MailAccount, error) {
	return f.accounts, f.listErr
}

func (f *fakeSettings) GetMailAccount(_ context.Context, id string) (*models.MailAccount, error) {
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			return &f.accounts[i], nil
		}
	}
	return nil, nil
}

func (f *fakeSettings) GetCompanySettings(context.Context) (*models.CompanySettings, error) {
	return f.company, nil
}

func (f *fakeSettings) IncrementSentCount(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[string]int)
	}
	f.sent[accountID]++
	return nil
}

type fakeContacts struct {
	leads    map[string]*models.Lead
	clients  map[string]*models.Client
	services map[string]string
}

func (f *fakeContacts) FindClientByEmail(_ context.Context, email string) (*models.Client, error) {
	for _, c := range f.clients {
		if strings.EqualFold(c.Email, email) {
			return c, nil
		}
	}
	return nil, nil
}

func (f *fakeContacts) FindLeadByEmail(_ context.Context, email string) (*models.Lead, error) {
	for _, l := range f.leads {
		if strings.EqualFold(l.Email, email) {
			return l, nil
		}
	}
	return nil, nil
}

func (f *fakeContacts) GetLeadByID(_ context.Context, id string) (*models.Lead, error) {
	return f.leads[id], nil
}

func (f *fakeContacts) GetClientByID(_ context.Context, id string) (*models.Client, error) {
	return f.clients[id], nil
}

func (f *fakeContacts) GetPrimaryActiveService(_ context.Context, clientID string) (string, error) {
	return f.services[clientID], nil
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Send(ctx context.Context, email dto.OutboundEmail) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}
