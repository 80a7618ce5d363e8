package identity

import (
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/google/uuid"
)

type MappingFilter struct {
	ProviderCode *string
	Status       *MappingStatus
	Limit        int
}

type ReviewMappingRequest struct {
	ProviderCode    string `json:"provider_code"`
	LocalIdentityID string `json:"local_identity_id"`
}

func (r *ReviewMappingRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.ProviderCode) {
		errs = append(errs, validator.ValidationError{
			Field:   "provider_code",
			Message: "provider_code is required",
		})
	}

	if validator.IsEmpty(r.LocalIdentityID) {
		errs = append(errs, validator.ValidationError{
			Field:   "local_identity_id",
			Message: "local_identity_id is required",
		})
	} else if !validator.IsValidUUID(r.LocalIdentityID) {
		errs = append(errs, validator.ValidationError{
			Field:   "local_identity_id",
			Message: "local_identity_id must be a valid UUID",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// IdentityID returns the parsed identity ID. Call Validate first.
func (r *ReviewMappingRequest) IdentityID() uuid.UUID {
	return uuid.MustParse(r.LocalIdentityID)
}

type MappingResponse struct {
	ProviderCode    string  `json:"provider_code"`
	LocalIdentityID string  `json:"local_identity_id"`
	MatchScore      float64 `json:"match_score"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func NewMappingResponse(m Mapping) MappingResponse {
	return MappingResponse{
		ProviderCode:    m.ProviderCode,
		LocalIdentityID: m.LocalIdentityID.String(),
		MatchScore:      m.MatchScore,
		Status:          string(m.Status),
		CreatedAt:       m.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:       m.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}
