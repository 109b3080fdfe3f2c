package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

// contactRepository is a read-only view over CRM leads and clients.
type contactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) interfaces.ContactDirectory {
	return &contactRepository{db: db}
}

func (r *contactRepository) FindClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.FindClientByEmail")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var client models.Client
	if err := r.firstByEmail(ctx, email, &client); err != nil {
		return nil, r.notFoundOrErr(span, err, "client")
	}
	return &client, nil
}

func (r *contactRepository) FindLeadByEmail(ctx context.Context, email string) (*models.Lead, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.FindLeadByEmail")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var lead models.Lead
	if err := r.firstByEmail(ctx, email, &lead); err != nil {
		return nil, r.notFoundOrErr(span, err, "lead")
	}
	return &lead, nil
}

func (r *contactRepository) GetLeadByID(ctx context.Context, id string) (*models.Lead, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.GetLeadByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var lead models.Lead
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&lead).Error; err != nil {
		return nil, r.notFoundOrErr(span, err, "lead")
	}
	return &lead, nil
}

func (r *contactRepository) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.GetClientByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var client models.Client
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&client).Error; err != nil {
		return nil, r.notFoundOrErr(span, err, "client")
	}
	return &client, nil
}

// GetPrimaryActiveService returns the oldest active service name, or "".
func (r *contactRepository) GetPrimaryActiveService(ctx context.Context, clientID string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "contactRepository.GetPrimaryActiveService")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, clientID)

	var service models.ClientService
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND status = ?", clientID, enum.ServiceStatusActive).
		Order("created_at ASC").
		First(&service).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		tracing.TraceErr(span, err)
		return "", fmt.Errorf("failed to get client service: %w", err)
	}
	return service.Name, nil
}

func (r *contactRepository) firstByEmail(ctx context.Context, email string, dest interface{}) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return gorm.ErrRecordNotFound
	}
	return r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		Order("created_at ASC").
		First(dest).Error
}

func (r *contactRepository) notFoundOrErr(span opentracing.Span, err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	tracing.TraceErr(span, err)
	return fmt.Errorf("failed to get %s: %w", entity, err)
}
