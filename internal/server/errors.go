package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/portfolio-admin/internal/editor"
	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/session"
	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// ErrUnknownKind is returned for a content kind that is not registered.
var ErrUnknownKind = errors.New("unknown content kind")

// ErrValidation indicates a malformed request.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return "validation error: " + e.Field + " - " + e.Message
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		record     *editor.ValidationError
		field      *types.FieldError
		upload     *editor.UploadError
		persist    *editor.PersistenceError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &record), errors.As(err, &field),
		errors.Is(err, editor.ErrUnknownSlot), errors.Is(err, editor.ErrUnknownField),
		errors.Is(err, editor.ErrNoTeam), errors.Is(err, editor.ErrMemberIndex):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidCredentials), errors.Is(err, session.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, editor.ErrBusy), errors.Is(err, editor.ErrNoDeletionTarget):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownKind), errors.Is(err, editor.ErrUnknownRecord),
		errors.Is(err, store.ErrNotFound), errors.Is(err, files.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &upload), errors.As(err, &persist):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
