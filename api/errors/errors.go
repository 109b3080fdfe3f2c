package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	mserrors "github.com/customeros/mailsync/internal/errors"
)

type MultiErrors struct {
	Errors map[string][]ErrorInfo `json:"errors"`
}

type ErrorInfo struct {
	Message  string `json:"message"`
	RawError error  `json:"-"`
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *MultiErrors) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		for _, err := range e.Errors[field] {
			parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
		}
	}
	return strings.Join(parts, " | ")
}

// HTTPStatus maps service errors onto response codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, mserrors.ErrCampaignNotFound), stderrors.Is(err, mserrors.ErrAccountNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, mserrors.ErrTickInProgress), stderrors.Is(err, mserrors.ErrSyncInProgress):
		return http.StatusConflict
	case stderrors.Is(err, mserrors.ErrInvalidTransition), stderrors.Is(err, mserrors.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case stderrors.Is(err, mserrors.ErrConnection), stderrors.Is(err, mserrors.ErrAuthentication), stderrors.Is(err, mserrors.ErrDelivery):
		return http.StatusBadGateway
	}
	var multi *MultiErrors
	if stderrors.As(err, &multi) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
