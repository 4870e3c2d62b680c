package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/stocklane/stocklane/internal/shared"
)

// ValidationProblem converts validator field errors into the ledger's
// field-attributed validation error.
func ValidationProblem(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return shared.NewValidationError(fieldErrs[0].Field(), "failed %q constraint", fieldErrs[0].Tag())
	}
	return shared.NewValidationError("", "invalid request")
}

// ScopeRequired extracts the tenant scope injected by the middleware and
// responds with a problem when it is missing.
func ScopeRequired(w http.ResponseWriter, r *http.Request) (shared.Scope, bool) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok || scope.Validate() != nil {
		Problem(w, http.StatusBadRequest, "Missing Tenant Scope", "X-Tenant-ID header required")
		return shared.Scope{}, false
	}
	return scope, true
}

// RespondError maps ledger errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		validationErr   *shared.ValidationError
		stateErr        *shared.StateError
		availabilityErr *shared.InsufficientAvailabilityError
		concurrencyErr  *shared.ConcurrencyError
		notFoundErr     *shared.NotFoundError
	)
	switch {
	case errors.As(err, &validationErr):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: validationErr.Message,
			Field:  validationErr.Field,
		})
	case errors.As(err, &stateErr):
		Problem(w, http.StatusConflict, "Illegal State Transition", stateErr.Error())
	case errors.As(err, &availabilityErr):
		Problem(w, http.StatusConflict, "Insufficient Availability", availabilityErr.Error())
	case errors.As(err, &concurrencyErr):
		Problem(w, http.StatusConflict, "Concurrent Update", concurrencyErr.Error())
	case errors.As(err, &notFoundErr):
		Problem(w, http.StatusNotFound, "Not Found", notFoundErr.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "resource not found")
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
