package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/syncrun"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/jwt"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/sse"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
)

// Orchestrator is the sync control the handlers drive.
type Orchestrator interface {
	TriggerRoster(ctx context.Context) (syncrun.SyncRun, error)
	TriggerAttendance(ctx context.Context, req syncrun.AttendanceRequest) (syncrun.SyncRun, error)
	Cancel(t syncrun.Type) error
	Status(ctx context.Context) (syncrun.Snapshot, error)
	ListRuns(ctx context.Context, filter syncrun.RunFilter) ([]syncrun.SyncRun, error)
}

// SyncHandler defines the sync control handler interface
type SyncHandler interface {
	TriggerRoster(w http.ResponseWriter, r *http.Request)
	TriggerAttendance(w http.ResponseWriter, r *http.Request)
	Cancel(w http.ResponseWriter, r *http.Request)
	Status(w http.ResponseWriter, r *http.Request)
	ListRuns(w http.ResponseWriter, r *http.Request)

	// SSE
	GetSSEToken(w http.ResponseWriter, r *http.Request)
	Stream(w http.ResponseWriter, r *http.Request)
}

type syncHandlerImpl struct {
	orchestrator Orchestrator
	jwtService   jwt.Service
	hub          *sse.Hub
}

func NewSyncHandler(orchestrator Orchestrator, jwtService jwt.Service, hub *sse.Hub) SyncHandler {
	return &syncHandlerImpl{
		orchestrator: orchestrator,
		jwtService:   jwtService,
		hub:          hub,
	}
}

// getSubjectFromContext extracts the operator subject from JWT context
func getSubjectFromContext(r *http.Request) string {
	_, claims, _ := jwtauth.FromContext(r.Context())
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}

// getIntQueryParam gets an int query parameter with a default value
func getIntQueryParam(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

func writeTriggerResult(w http.ResponseWriter, run syncrun.SyncRun, err error) {
	if errors.Is(err, syncrun.ErrSyncInProgress) {
		response.ConflictWithData(w, "A sync of this type is already running", syncrun.NewRunResponse(run))
		return
	}
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Accepted(w, "Sync started", syncrun.NewRunResponse(run))
}

// TriggerRoster starts a roster sync
func (h *syncHandlerImpl) TriggerRoster(w http.ResponseWriter, r *http.Request) {
	run, err := h.orchestrator.TriggerRoster(r.Context())
	writeTriggerResult(w, run, err)
}

// TriggerAttendance starts an attendance sync. An empty body means incremental.
func (h *syncHandlerImpl) TriggerAttendance(w http.ResponseWriter, r *http.Request) {
	var req syncrun.AttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	run, err := h.orchestrator.TriggerAttendance(r.Context(), req)
	writeTriggerResult(w, run, err)
}

// Cancel asks the running sync of the given type to stop
func (h *syncHandlerImpl) Cancel(w http.ResponseWriter, r *http.Request) {
	syncType := syncrun.Type(chi.URLParam(r, "type"))
	if err := h.orchestrator.Cancel(syncType); err != nil {
		response.HandleError(w, err)
		return
	}
	response.Accepted(w, "Cancellation requested", nil)
}

// Status returns the orchestrator snapshot
func (h *syncHandlerImpl) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.orchestrator.Status(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, syncrun.NewStatusResponse(snap))
}

// ListRuns returns run history, newest first
func (h *syncHandlerImpl) ListRuns(w http.ResponseWriter, r *http.Request) {
	filter := syncrun.RunFilter{Limit: getIntQueryParam(r, "limit", 50)}
	if t := r.URL.Query().Get("sync_type"); t != "" {
		syncType := syncrun.Type(t)
		filter.Type = &syncType
	}

	runs, err := h.orchestrator.ListRuns(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	out := make([]syncrun.RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, syncrun.NewRunResponse(run))
	}
	response.SuccessWithMeta(w, out, &response.Meta{Limit: filter.Limit, TotalItems: int64(len(out))})
}

// GetSSEToken generates a short-lived token for the event stream
func (h *syncHandlerImpl) GetSSEToken(w http.ResponseWriter, r *http.Request) {
	subject := getSubjectFromContext(r)
	if subject == "" {
		response.Unauthorized(w, "Unauthorized")
		return
	}

	token, expiresIn, err := h.jwtService.GenerateSSEToken(subject)
	if err != nil {
		response.InternalServerError(w, "Failed to generate SSE token")
		return
	}

	response.Success(w, syncrun.EventTokenResponse{
		Token:     token,
		ExpiresIn: expiresIn,
	})
}

// Stream pushes sync lifecycle events over SSE
func (h *syncHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	// EventSource cannot set headers, so the token travels in the query
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	subject, err := h.jwtService.ValidateSSEToken(tokenStr)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.hub.Subscribe(sse.AllTopics)
	defer cleanup()
	slog.Debug("Sync event stream connected", "subject", subject, "subscribers", h.hub.SubscriberCount(sse.AllTopics))

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"subject\":%q}\n\n", subject)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
