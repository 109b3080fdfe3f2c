package interfaces

import (
	"context"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/models"
)

// SettingsProvider exposes CRM-owned account and branding settings.
type SettingsProvider interface {
	ListMailAccounts(ctx context.Context) ([]models.MailAccount, error)
	GetMailAccount(ctx context.Context, id string) (*models.MailAccount, error)
	GetCompanySettings(ctx context.Context) (*models.CompanySettings, error)
	IncrementSentCount(ctx context.Context, accountID string) error
}

type ContactDirectory interface {
	FindClientByEmail(ctx context.Context, email string) (*models.Client, error)
	FindLeadByEmail(ctx context.Context, email string) (*models.Lead, error)
	GetLeadByID(ctx context.Context, id string) (*models.Lead, error)
	GetClientByID(ctx context.Context, id string) (*models.Client, error)
	GetPrimaryActiveService(ctx context.Context, clientID string) (string, error)
}

// RealtimeSink is fire-and-forget; implementations never fail the caller.
type RealtimeSink interface {
	Emit(ctx context.Context, event string, payload any)
}

type MailTransport interface {
	Send(ctx context.Context, email dto.OutboundEmail) (string, error)
}
