package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const defaultPageSize = 50

type mailMessageRepository struct {
	db *gorm.DB
}

func NewMailMessageRepository(db *gorm.DB) interfaces.MailMessageRepository {
	return &mailMessageRepository{db: db}
}

func (r *mailMessageRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailMessageRepository.CountByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MailMessage{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (r *mailMessageRepository) ExistingUIDs(ctx context.Context, accountID string, uids []uint32) (map[uint32]struct{}, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailMessageRepository.ExistingUIDs")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	span.SetTag("uids.count", len(uids))

	existing := make(map[uint32]struct{})
	if len(uids) == 0 {
		return existing, nil
	}

	var found []uint32
	err := r.db.WithContext(ctx).
		Model(&models.MailMessage{}).
		Where("account_id = ? AND imap_uid IN ?", accountID, uids).
		Pluck("imap_uid", &found).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to look up existing uids: %w", err)
	}

	for _, uid := range found {
		existing[uid] = struct{}{}
	}
	return existing, nil
}

// Upsert first claims a locally composed copy with the same Message-ID, then
// falls back to an insert that only refreshes flags and folder on conflict.
func (r *mailMessageRepository) Upsert(ctx context.Context, message *models.MailMessage) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailMessageRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, message.AccountID)

	if message.AccountID == "" || message.ImapUID == nil {
		tracing.TraceErr(span, ErrInvalidInput)
		return false, ErrInvalidInput
	}
	span.SetTag("imap_uid", *message.ImapUID)

	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if message.MessageID != "" {
			claimed := tx.Model(&models.MailMessage{}).
				Where("account_id = ? AND message_id = ? AND imap_uid IS NULL", message.AccountID, message.MessageID).
				Updates(map[string]interface{}{
					"imap_uid":   *message.ImapUID,
					"is_read":    message.IsRead,
					"is_starred": message.IsStarred,
					"updated_at": utils.Now(),
				})
			if claimed.Error != nil {
				return claimed.Error
			}
			if claimed.RowsAffected > 0 {
				return nil
			}
		}

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "imap_uid"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_read", "is_starred", "folder", "updated_at"}),
		}).Create(message)
		if result.Error != nil {
			return result.Error
		}

		var stored models.MailMessage
		if err := tx.Select("id", "created_at", "updated_at").
			Where("account_id = ? AND imap_uid = ?", message.AccountID, *message.ImapUID).
			First(&stored).Error; err != nil {
			return err
		}
		created = stored.ID == message.ID
		message.ID = stored.ID
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return false, fmt.Errorf("failed to upsert message: %w", err)
	}

	span.SetTag("created", created)
	return created, nil
}

// CreateLocal records locally composed mail; repeated calls with the same
// client request id are no-ops.
func (r *mailMessageRepository) CreateLocal(ctx context.Context, message *models.MailMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailMessageRepository.CreateLocal")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, message.AccountID)

	if message.AccountID == "" || message.ClientRequestID == nil || *message.ClientRequestID == "" {
		tracing.TraceErr(span, ErrInvalidInput)
		return ErrInvalidInput
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "client_request_id"}}, DoNothing: true}).
		Create(message).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to create local message: %w", err)
	}
	return nil
}

func (r *mailMessageRepository) GetByID(ctx context.Context, id string) (*models.MailMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailMessageRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagEntity(span, id)

	var message models.MailMessage
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

func (r *mailMessageRepository) ListByAccount(ctx context.Context, accountID string, folder enum.Folder, limit, offset int) ([]models.MailMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailMessageRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if folder != "" {
		query = query.Where("folder = ?", folder)
	}

	var messages []models.MailMessage
	err := query.
		Order("sent_at DESC NULLS LAST").
		Order("imap_uid DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

func (r *mailMessageRepository) ListByThread(ctx context.Context, accountID, threadID string) ([]models.MailMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailMessageRepository.ListByThread")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	var messages []models.MailMessage
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND thread_id = ?", accountID, threadID).
		Order("sent_at ASC").
		Find(&messages).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list thread messages: %w", err)
	}
	return messages, nil
}
