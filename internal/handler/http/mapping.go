package http

import (
	"encoding/json"
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/identity"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
)

// MappingHandler defines the identity mapping review handler interface
type MappingHandler interface {
	List(w http.ResponseWriter, r *http.Request)
	Confirm(w http.ResponseWriter, r *http.Request)
	Reject(w http.ResponseWriter, r *http.Request)
}

type mappingHandlerImpl struct {
	identityService identity.Service
}

func NewMappingHandler(identityService identity.Service) MappingHandler {
	return &mappingHandlerImpl{identityService: identityService}
}

// List returns mappings filtered by status and provider code
func (h *mappingHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	filter := identity.MappingFilter{Limit: getIntQueryParam(r, "limit", 100)}
	if status := r.URL.Query().Get("status"); status != "" {
		s := identity.MappingStatus(status)
		filter.Status = &s
	}
	if code := r.URL.Query().Get("provider_code"); code != "" {
		filter.ProviderCode = &code
	}

	mappings, err := h.identityService.ListMappings(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]identity.MappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, identity.NewMappingResponse(m))
	}
	response.Success(w, out)
}

// Confirm makes a mapping the single active one for its provider code
func (h *mappingHandlerImpl) Confirm(w http.ResponseWriter, r *http.Request) {
	var req identity.ReviewMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	mapping, err := h.identityService.ConfirmMapping(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Mapping confirmed", identity.NewMappingResponse(mapping))
}

// Reject marks a mapping as rejected
func (h *mappingHandlerImpl) Reject(w http.ResponseWriter, r *http.Request) {
	var req identity.ReviewMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	mapping, err := h.identityService.RejectMapping(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Mapping rejected", identity.NewMappingResponse(mapping))
}
