package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// settingsRepository reads the CRM-owned settings tables.
type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) interfaces.SettingsProvider {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) ListMailAccounts(ctx context.Context) ([]models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingsRepository.ListMailAccounts")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var accounts []models.MailAccount
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list mail accounts: %w", err)
	}
	return accounts, nil
}

func (r *settingsRepository) GetMailAccount(ctx context.Context, id string) (*models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingsRepository.GetMailAccount")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, id)

	var account models.MailAccount
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get mail account: %w", err)
	}
	return &account, nil
}

func (r *settingsRepository) GetCompanySettings(ctx context.Context) (*models.CompanySettings, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingsRepository.GetCompanySettings")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var settings models.CompanySettings
	err := r.db.WithContext(ctx).Order("updated_at DESC").First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.CompanySettings{}, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get company settings: %w", err)
	}
	return &settings, nil
}

func (r *settingsRepository) IncrementSentCount(ctx context.Context, accountID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "settingsRepository.IncrementSentCount")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	err := r.db.WithContext(ctx).
		Model(&models.MailAccount{}).
		Where("id = ?", accountID).
		UpdateColumn("sent_count", gorm.Expr("sent_count + 1")).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to increment sent count: %w", err)
	}
	return nil
}
