package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

// Get returns nil when the account has never been synced.
func (r *syncStateRepository) Get(ctx context.Context, accountID string) (*models.SyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.Get")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var state models.SyncState
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	return &state, nil
}

func (r *syncStateRepository) GetOrCreate(ctx context.Context, accountID string) (*models.SyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.GetOrCreate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	if accountID == "" {
		tracing.TraceErr(span, ErrInvalidInput)
		return nil, ErrInvalidInput
	}

	state, err := r.Get(ctx, accountID)
	if err != nil || state != nil {
		return state, err
	}

	state = models.NewSyncState(accountID)
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(state).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to create sync state: %w", err)
	}

	// a concurrent creator may have won the insert
	return r.Get(ctx, accountID)
}

func (r *syncStateRepository) List(ctx context.Context) ([]models.SyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.List")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var states []models.SyncState
	if err := r.db.WithContext(ctx).Order("account_id").Find(&states).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}
	return states, nil
}

func (r *syncStateRepository) MarkSyncing(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.MarkSyncing")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	return r.update(ctx, span, accountID, map[string]interface{}{
		"status":     enum.SyncStatusSyncing,
		"updated_at": utils.Now(),
	})
}

// MarkIdle never lowers the stored cursor.
func (r *syncStateRepository) MarkIdle(ctx context.Context, accountID string, lastUID uint32, retryAfter *uint32, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.MarkIdle")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	span.SetTag("last_uid", lastUID)

	var retry interface{} = gorm.Expr("NULL")
	if retryAfter != nil {
		span.SetTag("retry_after_uid", *retryAfter)
		retry = *retryAfter
	}
	return r.update(ctx, span, accountID, map[string]interface{}{
		"status":          enum.SyncStatusIdle,
		"last_error":      "",
		"last_sync_at":    at,
		"last_uid":        gorm.Expr("GREATEST(last_uid, ?)", lastUID),
		"retry_after_uid": retry,
		"updated_at":      utils.Now(),
	})
}

func (r *syncStateRepository) MarkError(ctx context.Context, accountID string, message string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.MarkError")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	return r.update(ctx, span, accountID, map[string]interface{}{
		"status":     enum.SyncStatusError,
		"last_error": message,
		"updated_at": utils.Now(),
	})
}

// ResetStaleSyncing releases rows left in syncing by a previous process.
func (r *syncStateRepository) ResetStaleSyncing(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.ResetStaleSyncing")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	result := r.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("status = ?", enum.SyncStatusSyncing).
		Updates(map[string]interface{}{
			"status":     enum.SyncStatusIdle,
			"last_error": "interrupted",
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, fmt.Errorf("failed to reset stale sync states: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *syncStateRepository) Delete(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&models.SyncState{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	return nil
}

func (r *syncStateRepository) update(ctx context.Context, span opentracing.Span, accountID string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("account_id = ?", accountID).
		Updates(updates)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to update sync state: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		err := fmt.Errorf("sync state for account %s: %w", accountID, ErrNotFound)
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
