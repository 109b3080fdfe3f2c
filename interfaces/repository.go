package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

type SyncStateRepository interface {
	Get(ctx context.Context, accountID string) (*models.SyncState, error)
	GetOrCreate(ctx context.Context, accountID string) (*models.SyncState, error)
	List(ctx context.Context) ([]models.SyncState, error)
	MarkSyncing(ctx context.Context, accountID string) error
	// MarkIdle never lowers last_uid. A non-nil retryAfter makes the next
	// search start after it instead; nil clears it.
	MarkIdle(ctx context.Context, accountID string, lastUID uint32, retryAfter *uint32, at time.Time) error
	MarkError(ctx context.Context, accountID string, message string) error
	ResetStaleSyncing(ctx context.Context) (int64, error)
	Delete(ctx context.Context, accountID string) error
}

type MailMessageRepository interface {
	CountByAccount(ctx context.Context, accountID string) (int64, error)
	ExistingUIDs(ctx context.Context, accountID string, uids []uint32) (map[uint32]struct{}, error)
	// Upsert stores an ingested message keyed on (account, uid) and reports whether a new row was created.
	Upsert(ctx context.Context, message *models.MailMessage) (bool, error)
	CreateLocal(ctx context.Context, message *models.MailMessage) error
	GetByID(ctx context.Context, id string) (*models.MailMessage, error)
	ListByAccount(ctx context.Context, accountID string, folder enum.Folder, limit, offset int) ([]models.MailMessage, error)
	ListByThread(ctx context.Context, accountID, threadID string) ([]models.MailMessage, error)
}

type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	ListByStatus(ctx context.Context, statuses ...enum.CampaignStatus) ([]models.Campaign, error)
	// SaveProgress persists the delivery results of the attempted tracking ids
	// and refreshes campaign from storage.
	SaveProgress(ctx context.Context, campaign *models.Campaign, attempted []string) error
	// Mutate loads the campaign under a row lock, applies fn and persists the result.
	Mutate(ctx context.Context, id string, fn func(*models.Campaign) error) (*models.Campaign, error)
	PromoteDueScheduled(ctx context.Context, now time.Time) (int64, error)
	RecordOpen(ctx context.Context, campaignID, trackingID string, at time.Time) (bool, error)
	RecordClick(ctx context.Context, campaignID, trackingID string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}

// ReplyRecorder matches inbound replies against delivered campaign mail.
type ReplyRecorder interface {
	RecordReply(ctx context.Context, messageIDs []string, at time.Time) (int, error)
}
