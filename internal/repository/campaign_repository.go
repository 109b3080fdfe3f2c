package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type campaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) interfaces.CampaignRepository {
	return &campaignRepository{db: db}
}

// CampaignReplyRecorder narrows the repository to the reply hook used by sync.
func CampaignReplyRecorder(repo interfaces.CampaignRepository) interfaces.ReplyRecorder {
	if recorder, ok := repo.(interfaces.ReplyRecorder); ok {
		return recorder
	}
	return nil
}

func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if campaign.Status == "" {
		campaign.Status = enum.CampaignStatusDraft
	}
	if err := r.db.WithContext(ctx).Create(campaign).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	tracing.TagEntity(span, campaign.ID)
	return nil
}

func (r *campaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var campaign models.Campaign
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

func (r *campaignRepository) ListByStatus(ctx context.Context, statuses ...enum.CampaignStatus) ([]models.Campaign, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.ListByStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&campaigns).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// SaveProgress merges the attempted items of one batch into the locked stored
// row and recomputes counters and status from the merged queue. Items moved by
// an operator meanwhile keep their state, and a pause issued mid-batch is kept.
// On success campaign reflects the persisted row.
func (r *campaignRepository) SaveProgress(ctx context.Context, campaign *models.Campaign, attempted []string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.SaveProgress")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, campaign.ID)
	span.LogKV("attempted", len(attempted))

	var saved *models.Campaign
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stored, err := lockCampaign(tx, campaign.ID)
		if err != nil {
			return err
		}

		now := utils.Now()
		stored.ApplyDelivery(campaign.Queue, attempted, now)
		stored.UpdatedAt = now
		updates := map[string]interface{}{
			"queue":        stored.Queue,
			"sent_count":   stored.SentCount,
			"failed_count": stored.FailedCount,
			"status":       stored.Status,
			"started_at":   stored.StartedAt,
			"completed_at": stored.CompletedAt,
			"updated_at":   now,
		}
		if err := tx.Model(&models.Campaign{}).
			Where("id = ?", campaign.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		saved = stored
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save campaign progress: %w", err)
	}
	*campaign = *saved
	return nil
}

func (r *campaignRepository) Mutate(ctx context.Context, id string, fn func(*models.Campaign) error) (*models.Campaign, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.Mutate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var result *models.Campaign
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := lockCampaign(tx, id)
		if err != nil {
			return err
		}
		if err := fn(campaign); err != nil {
			return err
		}
		if err := campaign.Prepare(); err != nil {
			return err
		}
		campaign.UpdatedAt = utils.Now()
		if err := tx.Save(campaign).Error; err != nil {
			return err
		}
		result = campaign
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return result, nil
}

func (r *campaignRepository) PromoteDueScheduled(ctx context.Context, now time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.PromoteDueScheduled")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", enum.CampaignStatusScheduled, now).
		Updates(map[string]interface{}{
			"status":     enum.CampaignStatusQueued,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, fmt.Errorf("failed to promote scheduled campaigns: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *campaignRepository) RecordOpen(ctx context.Context, campaignID, trackingID string, at time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.RecordOpen")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, campaignID)

	return r.recordEngagement(ctx, campaignID, func(c *models.Campaign) bool {
		return c.RecordOpen(trackingID, at)
	})
}

func (r *campaignRepository) RecordClick(ctx context.Context, campaignID, trackingID string, at time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.RecordClick")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, campaignID)

	return r.recordEngagement(ctx, campaignID, func(c *models.Campaign) bool {
		return c.RecordClick(trackingID, at)
	})
}

// RecordReply stamps the queue items whose delivered Message-ID is referenced
// by an inbound message.
func (r *campaignRepository) RecordReply(ctx context.Context, messageIDs []string, at time.Time) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.RecordReply")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	recorded := 0
	for _, messageID := range messageIDs {
		if messageID == "" {
			continue
		}
		containment, err := json.Marshal([]map[string]string{{"messageId": "<" + utils.NormalizeMessageID(messageID) + ">"}})
		if err != nil {
			return recorded, err
		}

		var ids []string
		err = r.db.WithContext(ctx).
			Model(&models.Campaign{}).
			Where("queue @> ?::jsonb", string(containment)).
			Pluck("id", &ids).Error
		if err != nil {
			tracing.TraceErr(span, err)
			return recorded, fmt.Errorf("failed to match reply: %w", err)
		}

		for _, id := range ids {
			ok, err := r.recordEngagement(ctx, id, func(c *models.Campaign) bool {
				return c.RecordReply(messageID, at)
			})
			if err != nil {
				tracing.TraceErr(span, err)
				return recorded, err
			}
			if ok {
				recorded++
			}
		}
	}
	return recorded, nil
}

func (r *campaignRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Campaign{}).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	return nil
}

func (r *campaignRepository) recordEngagement(ctx context.Context, campaignID string, apply func(*models.Campaign) bool) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := lockCampaign(tx, campaignID)
		if err != nil {
			return err
		}
		if !apply(campaign) {
			return nil
		}
		changed = true
		return tx.Model(&models.Campaign{}).
			Where("id = ?", campaignID).
			Updates(map[string]interface{}{
				"queue":       campaign.Queue,
				"open_count":  campaign.OpenCount,
				"click_count": campaign.ClickCount,
				"reply_count": campaign.ReplyCount,
				"updated_at":  utils.Now(),
			}).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to record engagement: %w", err)
	}
	return changed, nil
}

func lockCampaign(tx *gorm.DB, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mserrors.ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}
