// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// Extender is implemented by errors that contribute RFC7807 extension members.
type Extender interface {
	ProblemExtensions() map[string]any
}

type mapping struct {
	kind   error
	status int
	title  string
}

var mappings = []mapping{
	{shared.ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{shared.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{shared.ErrInvalidState, http.StatusConflict, "Invalid State"},
	{shared.ErrInsufficientFunds, http.StatusUnprocessableEntity, "Insufficient Funds"},
	{shared.ErrConflict, http.StatusConflict, "Conflict"},
	{shared.ErrNotFound, http.StatusNotFound, "Not Found"},
	{shared.ErrTransientStore, http.StatusServiceUnavailable, "Store Unavailable"},
}

// Status returns the HTTP status used for err.
func Status(err error) int {
	for _, m := range mappings {
		if errors.Is(err, m.kind) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	for _, m := range mappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		ext := map[string]any{}
		var extender Extender
		if errors.As(err, &extender) {
			for k, v := range extender.ProblemExtensions() {
				ext[k] = v
			}
		}
		if shared.Retryable(err) {
			ext["retryable"] = true
		}
		ProblemWith(w, m.status, m.title, err.Error(), ext)
		return
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
