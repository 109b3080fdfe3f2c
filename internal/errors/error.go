package mailsync_errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	ErrConnection     = errors.New("connection error")
	ErrAuthentication = errors.New("authentication error")
	ErrFetchOrParse   = errors.New("fetch or parse error")
	ErrDelivery       = errors.New("delivery failure")
	ErrConfiguration  = errors.New("configuration error")

	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrTickInProgress    = errors.New("delivery tick already in progress")
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrAccountNotFound   = errors.New("mail account not found")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
)

// MailError tags a cause with one of the error kinds above.
type MailError struct {
	Kind error
	Err  error
}

func (e *MailError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *MailError) Unwrap() error {
	return e.Err
}

func (e *MailError) Is(target error) bool {
	return target == e.Kind
}

func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	var existing *MailError
	if stderrors.As(err, &existing) && existing.Kind == kind {
		return err
	}
	return &MailError{Kind: kind, Err: err}
}

func Wrapf(kind error, format string, args ...interface{}) error {
	return &MailError{Kind: kind, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of err, or nil when it carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrAuthentication, ErrConnection, ErrFetchOrParse, ErrDelivery, ErrConfiguration} {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
