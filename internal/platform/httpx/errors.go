// Package httpx holds the JSON and problem-details helpers shared by the
// HTTP handlers.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinels handlers wrap domain errors in before calling RespondError.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrDuplicate   = errors.New("duplicate entry")
	ErrValidation  = errors.New("validation failed")
	ErrForbidden   = errors.New("forbidden")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("service unavailable")
	ErrInternal    = errors.New("internal error")
)

var statusBySentinel = []struct {
	err    error
	status int
	title  string
}{
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrDuplicate, http.StatusConflict, "Duplicate"},
	{ErrConflict, http.StatusConflict, "Conflict"},
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrUnavailable, http.StatusServiceUnavailable, "Service Unavailable"},
}

// RespondError writes the problem document matching the first sentinel err
// wraps. Anything else is a 500 whose detail is withheld.
func RespondError(w http.ResponseWriter, err error) {
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			Problem(w, s.status, s.title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
