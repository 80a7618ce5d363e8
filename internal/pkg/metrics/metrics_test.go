package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_IsIdempotent(t *testing.T) {
	require.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestHandler_ExposesSyncCollectors(t *testing.T) {
	Init()
	SyncRunsTotal.WithLabelValues("roster", "succeeded").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(SyncRunsTotal.WithLabelValues("roster", "succeeded")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "attendance_sync_runs_total"))
}
