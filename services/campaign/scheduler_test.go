package campaign

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/services/tokens"
	"github.com/customeros/mailsync/services/tracking"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true, LogLevel: "error"})
	appLogger.InitLogger()
	return appLogger
}

func sendingAccount(id, email string, forCampaigns bool) models.MailAccount {
	return models.MailAccount{
		ID:              id,
		Email:           email,
		SmtpHost:        "smtp.acme.io",
		SmtpPort:        587,
		SmtpPassword:    "secret",
		UseForCampaigns: forCampaigns,
	}
}

func queuedCampaign(id string, emails ...string) *models.Campaign {
	c := &models.Campaign{
		ID:      id,
		Name:    "Spring outreach",
		Subject: "Hello {{ firstName }}",
		Body:    `<p>Hi {{ name }}</p><a href="https://acme.io/offer">Offer</a></body>`,
		Status:  enum.CampaignStatusQueued,
	}
	for _, email := range emails {
		c.Queue = append(c.Queue, models.EmailQueueItem{LeadEmail: email, TrackingID: "tid-" + strings.Split(email, "@")[0]})
	}
	return c
}

type schedulerFixture struct {
	campaigns *fakeCampaigns
	settings  *fakeSettings
	contacts  *fakeContacts
	transport *mockTransport
	codec     *tracking.Codec
	scheduler *Scheduler
}

func newSchedulerFixture(batchSize int, campaigns ...*models.Campaign) *schedulerFixture {
	f := &schedulerFixture{
		campaigns: newFakeCampaigns(campaigns...),
		settings: &fakeSettings{
			accounts: []models.MailAccount{sendingAccount("acc-1", "sales@acme.io", false)},
			company:  &models.CompanySettings{CompanyName: "Acme", PublicBaseURL: "https://links.acme.io"},
		},
		contacts:  &fakeContacts{},
		transport: &mockTransport{},
		codec:     tracking.NewCodec("https://track.default.io", "test-secret"),
	}
	f.scheduler = NewScheduler(
		&config.CampaignConfig{BatchSize: batchSize},
		f.campaigns, f.settings, f.contacts, f.transport,
		tokens.NewRenderer(), f.codec, getLogger(),
	)
	f.scheduler.now = func() time.Time { return fixedNow }
	return f
}

func sendTo(email string) interface{} {
	return mock.MatchedBy(func(e dto.OutboundEmail) bool { return e.To == email })
}

func TestTick_DeliversInBatchesUntilCompleted(t *testing.T) {
	f := newSchedulerFixture(2, queuedCampaign("camp-1", "a@x.io", "b@x.io", "c@x.io"))
	f.transport.On("Send", mock.Anything, mock.Anything).Return("", nil)

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Campaigns, 1)
	assert.Equal(t, 2, result.Campaigns[0].Attempted)

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, enum.CampaignStatusSending, stored.Status)
	assert.Equal(t, 2, stored.SentCount+stored.FailedCount)
	assert.Nil(t, stored.CompletedAt)
	assert.NotNil(t, stored.StartedAt)
	assert.Equal(t, enum.QueueItemPending, stored.Queue[2].Status)

	_, err = f.scheduler.Tick(context.Background())
	require.NoError(t, err)

	stored = f.campaigns.get("camp-1")
	assert.Equal(t, enum.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, 3, stored.SentCount)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CompletedAt.Equal(fixedNow))
	f.transport.AssertNumberOfCalls(t, "Send", 3)
	assert.Equal(t, 3, f.settings.sent["acc-1"])
}

func TestTick_RecipientFailureDoesNotAbortBatch(t *testing.T) {
	f := newSchedulerFixture(20, queuedCampaign("camp-1", "a@x.io", "b@x.io", "c@x.io"))
	f.transport.On("Send", mock.Anything, sendTo("b@x.io")).Return("", errors.New("550 mailbox unavailable"))
	f.transport.On("Send", mock.Anything, mock.Anything).Return("", nil)

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Campaigns, 1)
	assert.Equal(t, 2, result.Campaigns[0].Sent)
	assert.Equal(t, 1, result.Campaigns[0].Failed)

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, enum.CampaignStatusCompleted, stored.Status)
	assert.Equal(t, enum.QueueItemSent, stored.Queue[0].Status)
	assert.Equal(t, enum.QueueItemFailed, stored.Queue[1].Status)
	assert.Contains(t, stored.Queue[1].Error, "550 mailbox unavailable")
	require.NotNil(t, stored.Queue[1].SentAt)
	assert.Equal(t, enum.QueueItemSent, stored.Queue[2].Status)
	assert.Equal(t, 2, stored.SentCount)
	assert.Equal(t, 1, stored.FailedCount)
}

func TestTick_InvalidRecipientFailsWithoutSending(t *testing.T) {
	f := newSchedulerFixture(20, queuedCampaign("camp-1", "not-an-address"))

	_, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, enum.QueueItemFailed, stored.Queue[0].Status)
	f.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestTick_BrokenTemplateFailsRecipient(t *testing.T) {
	campaign := queuedCampaign("camp-1", "a@x.io")
	campaign.Body = "<p>{% bogus %}Hi {{ name }}</p>"
	f := newSchedulerFixture(20, campaign)

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Campaigns, 1)
	assert.Equal(t, 1, result.Campaigns[0].Failed)

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, enum.QueueItemFailed, stored.Queue[0].Status)
	assert.NotEmpty(t, stored.Queue[0].Error)
	f.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestTick_PrefersCampaignAccount(t *testing.T) {
	f := newSchedulerFixture(20, queuedCampaign("camp-1", "a@x.io"))
	f.settings.accounts = []models.MailAccount{
		sendingAccount("acc-1", "support@acme.io", false),
		sendingAccount("acc-2", "outreach@acme.io", true),
	}
	f.transport.On("Send", mock.Anything, mock.MatchedBy(func(e dto.OutboundEmail) bool {
		return e.Account != nil && e.Account.ID == "acc-2"
	})).Return("", nil)

	_, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	f.transport.AssertExpectations(t)
	assert.Equal(t, 1, f.settings.sent["acc-2"])
	assert.Zero(t, f.settings.sent["acc-1"])
}

func TestTick_NoAccountAbortsCampaignOnly(t *testing.T) {
	f := newSchedulerFixture(20, queuedCampaign("camp-1", "a@x.io"))
	f.settings.accounts = nil

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, enum.CampaignStatusQueued, stored.Status)
	assert.Equal(t, enum.QueueItemPending, stored.Queue[0].Status)
	f.transport.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestSendNextBatch_IncompleteSmtpSettings(t *testing.T) {
	f := newSchedulerFixture(20, queuedCampaign("camp-1", "a@x.io"))
	f.settings.accounts = []models.MailAccount{{ID: "acc-1", Email: "sales@acme.io"}}

	_, err := f.scheduler.SendNextBatch(context.Background(), "camp-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, mserrors.ErrConfiguration)
	assert.Equal(t, 0, f.campaigns.saves)
}

func TestSendNextBatch_Guards(t *testing.T) {
	draft := queuedCampaign("camp-draft", "a@x.io")
	draft.Status = enum.CampaignStatusDraft
	f := newSchedulerFixture(20, draft)

	_, err := f.scheduler.SendNextBatch(context.Background(), "missing")
	assert.ErrorIs(t, err, mserrors.ErrCampaignNotFound)

	_, err = f.scheduler.SendNextBatch(context.Background(), "camp-draft")
	assert.ErrorIs(t, err, mserrors.ErrInvalidTransition)

	f.scheduler.ticking.Store(true)
	_, err = f.scheduler.SendNextBatch(context.Background(), "camp-draft")
	assert.ErrorIs(t, err, mserrors.ErrTickInProgress)

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestTick_RendersTokensAndTracking(t *testing.T) {
	campaign := queuedCampaign("camp-1", "ada@client.io")
	campaign.Queue[0].LeadID = "lead-1"
	campaign.Subject = "{{ firstName }}, an offer for {{ clientCompany }}"
	campaign.Body = `<p>Hi {{ name }}, from {{ clientCompany }} about {{ service }}</p><a href="https://acme.io/offer">Offer</a><a href="mailto:sales@acme.io">Mail</a></body>`

	f := newSchedulerFixture(20, campaign)
	clientID := "client-1"
	f.contacts.leads = map[string]*models.Lead{
		"lead-1": {ID: "lead-1", Name: "Ada Lovelace", Email: "ada@client.io", ClientID: &clientID},
	}
	f.contacts.clients = map[string]*models.Client{
		"client-1": {ID: "client-1", Company: "Engines & Co"},
	}
	f.contacts.services = map[string]string{"client-1": "Retainer"}

	var sent dto.OutboundEmail
	f.transport.On("Send", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(dto.OutboundEmail) }).
		Return("", nil)

	_, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Ada, an offer for Engines & Co", sent.Subject)
	assert.Contains(t, sent.HTML, "Hi Ada Lovelace, from Engines &amp; Co about Retainer")
	assert.Contains(t, sent.HTML, "https://links.acme.io/t/open?c=camp-1")
	assert.Contains(t, sent.HTML, "https://links.acme.io/t/click?")
	assert.Contains(t, sent.HTML, `href="mailto:sales@acme.io"`)
	assert.NotContains(t, sent.HTML, `href="https://acme.io/offer"`)
	assert.Equal(t, "Acme", sent.FromName)
	assert.Equal(t, "camp-1", sent.Headers["X-Campaign-Id"])
	assert.Equal(t, "tid-ada", sent.Headers["X-Tracking-Id"])
	assert.True(t, strings.HasPrefix(sent.MessageID, "<"))
	assert.True(t, strings.HasSuffix(sent.MessageID, "@acme.io>"))

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, sent.MessageID, stored.Queue[0].MessageID)
}

func TestTick_EmptyQueueCompletes(t *testing.T) {
	campaign := queuedCampaign("camp-1")
	f := newSchedulerFixture(20, campaign)

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Campaigns, 1)
	assert.Equal(t, enum.CampaignStatusCompleted, result.Campaigns[0].Status)

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, enum.CampaignStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestTick_PauseDuringBatchIsKept(t *testing.T) {
	f := newSchedulerFixture(1, queuedCampaign("camp-1", "a@x.io", "b@x.io"))
	f.transport.On("Send", mock.Anything, mock.Anything).Return("", nil)
	f.campaigns.onSave = func(stored *models.Campaign) {
		stored.Status = enum.CampaignStatusPaused
	}

	_, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, enum.CampaignStatusPaused, stored.Status)
	assert.Equal(t, enum.QueueItemSent, stored.Queue[0].Status)
	assert.Equal(t, 1, stored.SentCount)

	f.campaigns.onSave = nil
	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Campaigns)
	f.transport.AssertNumberOfCalls(t, "Send", 1)
}

func TestTick_RetryDuringBatchIsKept(t *testing.T) {
	campaign := queuedCampaign("camp-1", "a@x.io", "b@x.io")
	campaign.Status = enum.CampaignStatusSending
	campaign.Queue[1].Status = enum.QueueItemFailed
	campaign.Queue[1].Error = "mailbox full"
	campaign.FailedCount = 1
	f := newSchedulerFixture(1, campaign)
	f.transport.On("Send", mock.Anything, mock.Anything).Return("", nil)
	f.campaigns.onSave = func(stored *models.Campaign) {
		stored.ResetFailed(nil)
	}

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Campaigns, 1)
	assert.Equal(t, enum.CampaignStatusSending, result.Campaigns[0].Status)

	stored := f.campaigns.get("camp-1")
	assert.Equal(t, enum.QueueItemSent, stored.Queue[0].Status)
	assert.Equal(t, enum.QueueItemPending, stored.Queue[1].Status)
	assert.Empty(t, stored.Queue[1].Error)
	assert.Equal(t, 1, stored.SentCount)
	assert.Equal(t, 0, stored.FailedCount)

	f.campaigns.onSave = nil
	_, err = f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, enum.CampaignStatusCompleted, f.campaigns.get("camp-1").Status)
	f.transport.AssertNumberOfCalls(t, "Send", 2)
}

func TestTick_PromotesDueScheduled(t *testing.T) {
	due := fixedNow.Add(-time.Minute)
	campaign := queuedCampaign("camp-1", "a@x.io")
	campaign.Status = enum.CampaignStatusScheduled
	campaign.ScheduledAt = &due
	f := newSchedulerFixture(20, campaign)
	f.transport.On("Send", mock.Anything, mock.Anything).Return("", nil)

	result, err := f.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Promoted)
	assert.Equal(t, enum.CampaignStatusCompleted, f.campaigns.get("camp-1").Status)
}
