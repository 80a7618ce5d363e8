package response

import (
	"errors"
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/jwt"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	// Token errors
	case errors.Is(err, jwt.ErrInvalidToken):
		Unauthorized(w, "Invalid token")
	case errors.Is(err, jwt.ErrOperatorAccessRequired):
		Forbidden(w, "Operator access required")

	// Sync domain errors
	case errors.Is(err, syncrun.ErrSyncInProgress):
		Conflict(w, "A sync of this type is already running")
	case errors.Is(err, syncrun.ErrOrchestratorStopped):
		ServiceUnavailable(w, "Sync orchestrator is shutting down")
	case errors.Is(err, syncrun.ErrInvalidSyncType):
		BadRequest(w, "Invalid sync type", nil)
	case errors.Is(err, syncrun.ErrInvalidMode):
		BadRequest(w, "Invalid sync mode", nil)
	case errors.Is(err, syncrun.ErrWindowRequired):
		BadRequest(w, "start_date and end_date are required for a full sync", nil)
	case errors.Is(err, syncrun.ErrWindowTooLarge):
		BadRequest(w, err.Error(), nil)
	case errors.Is(err, syncrun.ErrNotRunning):
		NotFound(w, "No sync of this type is running")
	case errors.Is(err, syncrun.ErrRunNotFound):
		NotFound(w, "Sync run not found")

	// Identity domain errors
	case errors.Is(err, identity.ErrMappingNotFound):
		NotFound(w, "Mapping not found")
	case errors.Is(err, identity.ErrIdentityNotFound):
		NotFound(w, "Local identity not found")
	case errors.Is(err, identity.ErrActiveMappingExists):
		Conflict(w, "Provider code already has an active mapping")
	case errors.Is(err, identity.ErrInvalidMappingStatus):
		BadRequest(w, "Invalid mapping status", nil)

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
