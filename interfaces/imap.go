package interfaces

import (
	"context"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/models"
)

// MailSession is one authenticated session with the inbox selected.
type MailSession interface {
	// SearchUIDs returns the UIDs strictly greater than after; after == 0 lists all.
	SearchUIDs(ctx context.Context, after uint32) ([]uint32, error)
	FetchMessage(ctx context.Context, uid uint32) (*dto.FetchedMessage, error)
	// Idle blocks until ctx is done (returning nil) or the session fails,
	// signalling notify whenever the server reports new mail.
	Idle(ctx context.Context, notify chan<- struct{}) error
	Close() error
}

type SessionDialer interface {
	Dial(ctx context.Context, account *models.MailAccount) (MailSession, error)
}
