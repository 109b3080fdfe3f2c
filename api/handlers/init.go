package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	custom_err "github.com/customeros/mailsync/api/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services/campaign"
	"github.com/customeros/mailsync/services/imap"
	"github.com/customeros/mailsync/services/tracking"
)

// SyncController triggers sync passes and reports connection health.
type SyncController interface {
	TriggerSync(ctx context.Context, accountID string) error
	SyncAll(ctx context.Context) error
	Status() []imap.ConnectionStatus
}

type CampaignController interface {
	SendNextBatch(ctx context.Context, campaignID string) (*campaign.BatchResult, error)
	Retry(ctx context.Context, campaignID string, trackingIDs []string) (*models.Campaign, int, error)
	Retarget(ctx context.Context, campaignID string, trackingIDs []string) (*models.Campaign, int, error)
	Pause(ctx context.Context, campaignID string) (*models.Campaign, error)
	Resume(ctx context.Context, campaignID string) (*models.Campaign, error)
	StartNow(ctx context.Context, campaignID string) (*models.Campaign, error)
	Queue(ctx context.Context, campaignID string, scheduledAt *time.Time) (*models.Campaign, error)
}

type Dependencies struct {
	Connections SyncController
	Campaigns   CampaignController
	Codec       *tracking.Codec

	SyncStates    interfaces.SyncStateRepository
	Messages      interfaces.MailMessageRepository
	CampaignStore interfaces.CampaignRepository

	Log logger.Logger
	Now func() time.Time
}

type APIHandlers struct {
	Sync      *SyncHandler
	Messages  *MessagesHandler
	Campaigns *CampaignsHandler
	Tracking  *TrackingHandler
}

func InitHandlers(deps Dependencies) *APIHandlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &APIHandlers{
		Sync:      NewSyncHandler(deps.Connections, deps.SyncStates),
		Messages:  NewMessagesHandler(deps.Messages),
		Campaigns: NewCampaignsHandler(deps.Campaigns, deps.CampaignStore),
		Tracking:  NewTrackingHandler(deps.Codec, deps.CampaignStore, deps.Log, deps.Now),
	}
}

func respondWithError(c *gin.Context, span opentracing.Span, err error) {
	tracing.TraceErr(span, err)
	status := custom_err.HTTPStatus(err)
	if multi, ok := err.(*custom_err.MultiErrors); ok {
		c.JSON(status, multi)
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
