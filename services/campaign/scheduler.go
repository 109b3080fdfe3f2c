package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
	"github.com/customeros/mailsync/services/tokens"
	"github.com/customeros/mailsync/services/tracking"
)

const defaultBatchSize = 20

type BatchResult struct {
	CampaignID string              `json:"campaignId"`
	Attempted  int                 `json:"attempted"`
	Sent       int                 `json:"sent"`
	Failed     int                 `json:"failed"`
	Status     enum.CampaignStatus `json:"status"`
}

type TickResult struct {
	Skipped   bool           `json:"skipped"`
	Promoted  int64          `json:"promoted"`
	Campaigns []*BatchResult `json:"campaigns"`
	Errors    int            `json:"errors"`
}

type Scheduler struct {
	campaigns interfaces.CampaignRepository
	settings  interfaces.SettingsProvider
	contacts  interfaces.ContactDirectory
	transport interfaces.MailTransport
	renderer  *tokens.Renderer
	codec     *tracking.Codec
	log       logger.Logger
	batchSize int
	now       func() time.Time

	ticking atomic.Bool
}

func NewScheduler(
	cfg *config.CampaignConfig,
	campaigns interfaces.CampaignRepository,
	settings interfaces.SettingsProvider,
	contacts interfaces.ContactDirectory,
	transport interfaces.MailTransport,
	renderer *tokens.Renderer,
	codec *tracking.Codec,
	log logger.Logger,
) *Scheduler {
	batchSize := defaultBatchSize
	if cfg != nil && cfg.BatchSize > 0 {
		batchSize = cfg.BatchSize
	}
	return &Scheduler{
		campaigns: campaigns,
		settings:  settings,
		contacts:  contacts,
		transport: transport,
		renderer:  renderer,
		codec:     codec,
		log:       log,
		batchSize: batchSize,
		now:       utils.Now,
	}
}

// Tick delivers one batch for every Queued or Sending campaign. A tick that
// starts while another is running is skipped.
func (s *Scheduler) Tick(ctx context.Context) (*TickResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.Tick")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if !s.ticking.CompareAndSwap(false, true) {
		span.LogFields(tracingLog.Bool("skipped", true))
		return &TickResult{Skipped: true}, nil
	}
	defer s.ticking.Store(false)

	result := &TickResult{}

	promoted, err := s.campaigns.PromoteDueScheduled(ctx, s.now())
	if err != nil {
		s.log.Errorf("failed to promote scheduled campaigns: %v", err)
	}
	result.Promoted = promoted

	campaigns, err := s.campaigns.ListByStatus(ctx, enum.CampaignStatusQueued, enum.CampaignStatusSending)
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}

	for i := range campaigns {
		batch, err := s.safeProcess(ctx, &campaigns[i])
		if err != nil {
			result.Errors++
			s.log.Errorf("campaign %s: batch aborted: %v", campaigns[i].ID, err)
			continue
		}
		result.Campaigns = append(result.Campaigns, batch)
	}
	span.LogFields(tracingLog.Int("campaigns", len(campaigns)), tracingLog.Int("errors", result.Errors))
	return result, nil
}

// SendNextBatch runs one batch for a single campaign outside the timer.
func (s *Scheduler) SendNextBatch(ctx context.Context, campaignID string) (*BatchResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.SendNextBatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, campaignID)

	if !s.ticking.CompareAndSwap(false, true) {
		return nil, mserrors.ErrTickInProgress
	}
	defer s.ticking.Store(false)

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if campaign == nil {
		return nil, mserrors.ErrCampaignNotFound
	}
	if !campaign.Status.Deliverable() {
		return nil, mserrors.Wrapf(mserrors.ErrInvalidTransition, "campaign %s is %s", campaignID, campaign.Status)
	}

	result, err := s.safeProcess(ctx, campaign)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

func (s *Scheduler) safeProcess(ctx context.Context, campaign *models.Campaign) (result *BatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing campaign %s: %v", campaign.ID, r)
		}
	}()
	return s.processBatch(ctx, campaign)
}

func (s *Scheduler) processBatch(ctx context.Context, campaign *models.Campaign) (*BatchResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.processBatch")
	defer span.Finish()
	tracing.TagEntity(span, campaign.ID)

	result := &BatchResult{CampaignID: campaign.ID}

	indexes := campaign.PendingIndexes(s.batchSize)
	if len(indexes) == 0 {
		if err := s.campaigns.SaveProgress(ctx, campaign, nil); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		result.Status = campaign.Status
		return result, nil
	}

	account, err := s.resolveAccount(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	company, err := s.settings.GetCompanySettings(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, mserrors.Wrap(mserrors.ErrConfiguration, err)
	}
	if company == nil {
		company = &models.CompanySettings{}
	}

	attempted := make([]string, 0, len(indexes))
	for _, index := range indexes {
		attempted = append(attempted, campaign.Queue[index].TrackingID)
		result.Attempted++
		messageID, err := s.deliver(ctx, campaign, index, account, company)
		if err != nil {
			campaign.MarkFailed(index, err, s.now())
			result.Failed++
			s.log.Warnf("campaign %s: delivery to %s failed: %v", campaign.ID, campaign.Queue[index].LeadEmail, err)
			continue
		}
		campaign.MarkSent(index, messageID, s.now())
		result.Sent++
		if err := s.settings.IncrementSentCount(ctx, account.ID); err != nil {
			s.log.Warnf("failed to increment sent count for account %s: %v", account.ID, err)
		}
	}

	if err := s.campaigns.SaveProgress(ctx, campaign, attempted); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	result.Status = campaign.Status
	span.LogFields(tracingLog.Int("sent", result.Sent), tracingLog.Int("failed", result.Failed))
	return result, nil
}

// resolveAccount prefers an account flagged for campaigns, else the first one.
func (s *Scheduler) resolveAccount(ctx context.Context) (*models.MailAccount, error) {
	accounts, err := s.settings.ListMailAccounts(ctx)
	if err != nil {
		return nil, mserrors.Wrap(mserrors.ErrConfiguration, err)
	}
	if len(accounts) == 0 {
		return nil, mserrors.Wrapf(mserrors.ErrConfiguration, "no mail account configured")
	}
	account := &accounts[0]
	for i := range accounts {
		if accounts[i].UseForCampaigns {
			account = &accounts[i]
			break
		}
	}
	if !account.CanSend() {
		return nil, mserrors.Wrapf(mserrors.ErrConfiguration, "account %s has incomplete smtp settings", account.Email)
	}
	return account, nil
}

func (s *Scheduler) deliver(ctx context.Context, campaign *models.Campaign, index int, account *models.MailAccount, company *models.CompanySettings) (string, error) {
	item := campaign.Queue[index]
	if !utils.IsValidEmailAddress(item.LeadEmail) {
		return "", mserrors.Wrapf(mserrors.ErrDelivery, "invalid recipient address %q", item.LeadEmail)
	}

	fromName := utils.FirstNotEmpty(campaign.FromName, account.FromName, company.CompanyName)
	data, err := s.tokenData(ctx, item, account, company, fromName)
	if err != nil {
		return "", mserrors.Wrap(mserrors.ErrDelivery, err)
	}

	subject, err := s.renderer.Render(campaign.Subject, data, tokens.ModeText)
	if err != nil {
		return "", mserrors.Wrap(mserrors.ErrDelivery, err)
	}
	body, err := s.renderer.Render(campaign.Body, data, tokens.ModeHTML)
	if err != nil {
		return "", mserrors.Wrap(mserrors.ErrDelivery, err)
	}

	baseURL := company.PublicBaseURL
	body = s.codec.WrapClickTracking(body, baseURL, campaign.ID, item.TrackingID)
	body = s.codec.InjectOpenPixel(body, baseURL, campaign.ID, item.TrackingID)

	domain := utils.ExtractDomainFromEmail(account.Email)
	messageID := utils.GenerateMessageID(domain, campaign.ID+":"+item.TrackingID)

	sentID, err := s.transport.Send(ctx, dto.OutboundEmail{
		To:          item.LeadEmail,
		Subject:     subject,
		HTML:        body,
		Attachments: campaign.Attachments,
		Account:     account,
		FromName:    fromName,
		MessageID:   messageID,
		Headers: map[string]string{
			"X-Campaign-Id": campaign.ID,
			"X-Tracking-Id": item.TrackingID,
		},
	})
	if err != nil {
		return "", mserrors.Wrap(mserrors.ErrDelivery, err)
	}
	return utils.FirstNotEmpty(sentID, messageID), nil
}

func (s *Scheduler) tokenData(ctx context.Context, item models.EmailQueueItem, account *models.MailAccount, company *models.CompanySettings, fromName string) (dto.TokenData, error) {
	data := dto.TokenData{
		Name:           item.LeadName,
		Email:          item.LeadEmail,
		CompanyName:    company.CompanyName,
		CompanyWebsite: company.CompanyWebsite,
		CompanyPhone:   company.CompanyPhone,
		CompanyAddress: company.CompanyAddress,
		CompanyLogo:    company.LogoURL,
		SenderName:     fromName,
		SenderEmail:    account.Email,
	}

	var (
		lead *models.Lead
		err  error
	)
	if item.LeadID != "" {
		lead, err = s.contacts.GetLeadByID(ctx, item.LeadID)
	} else {
		lead, err = s.contacts.FindLeadByEmail(ctx, item.LeadEmail)
	}
	if err != nil {
		return data, fmt.Errorf("failed to load lead: %w", err)
	}

	var client *models.Client
	if lead != nil {
		data.Name = utils.FirstNotEmpty(lead.Name, data.Name)
		data.Company = lead.Company
		if lead.ClientID != nil && *lead.ClientID != "" {
			client, err = s.contacts.GetClientByID(ctx, *lead.ClientID)
		}
	}
	if err == nil && client == nil {
		client, err = s.contacts.FindClientByEmail(ctx, item.LeadEmail)
	}
	if err != nil {
		return data, fmt.Errorf("failed to load client: %w", err)
	}

	if client != nil {
		data.ClientCompany = client.Company
		data.Name = utils.FirstNotEmpty(data.Name, client.Name)
		service, err := s.contacts.GetPrimaryActiveService(ctx, client.ID)
		if err != nil {
			return data, fmt.Errorf("failed to load client service: %w", err)
		}
		data.Service = service
	}

	if fields := strings.Fields(data.Name); len(fields) > 0 {
		data.FirstName = fields[0]
	}
	return data, nil
}

// PromoteDueScheduled queues every Scheduled campaign whose time has come.
func (s *Scheduler) PromoteDueScheduled(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Scheduler.PromoteDueScheduled")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	promoted, err := s.campaigns.PromoteDueScheduled(ctx, s.now())
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	if promoted > 0 {
		s.log.Infof("promoted %d scheduled campaigns", promoted)
	}
	return promoted, nil
}
