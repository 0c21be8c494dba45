package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_journal/internal/modules/health/service"
)

func TestReadyzFollowsState(t *testing.T) {
	state := service.NewState()
	mux := NewMux(state, service.NewMetrics())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	state.SetReady(true)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzReportsJournalState(t *testing.T) {
	state := service.NewState()
	state.SetWSConnected(true)
	state.SetQueueDepth(func() int { return 7 })
	state.TouchTrade(time.UnixMilli(1700000000123))

	rec := httptest.NewRecorder()
	NewMux(state, service.NewMetrics()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["wsConnected"])
	assert.EqualValues(t, 7, body["queueDepth"])
	assert.EqualValues(t, 1700000000123, body["lastTradeMs"])
}

func TestMetricsEndpointExposesJournalCounters(t *testing.T) {
	metrics := service.NewMetrics()
	metrics.TradesRecorded.WithLabelValues("live").Inc()

	rec := httptest.NewRecorder()
	NewMux(service.NewState(), metrics).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `journal_trades_recorded_total{source="live"} 1`))
}
