package telemetry

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiraeNK/mesline/internal/fulfillment"
)

var _ fulfillment.Recorder = (*Metrics)(nil)

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, false, "text")
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("order archived", "order", "o-1")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "order=o-1")
}

func TestNewLogger_JSONVerbose(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, true, "json")
	require.NoError(t, err)

	logger.Debug("precondition changed", "action", "archive")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "archive", rec["action"])
}

func TestNewLogger_UnknownFormat(t *testing.T) {
	_, err := NewLogger(&bytes.Buffer{}, false, "xml")
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	require.NoError(t, SetupLogging(&buf, false, "text"))
	slog.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Recorder(t *testing.T) {
	m := NewMetrics()
	m.StepApplied("handshake")
	m.StepApplied("handshake")
	m.StepSkipped("archive")
	m.OrderPlaced()
	m.OrderArchived(3 * time.Second)

	out := scrape(t, m)
	assert.Contains(t, out, `mesline_steps_total{action="handshake",result="applied"} 2`)
	assert.Contains(t, out, `mesline_steps_total{action="archive",result="skipped"} 1`)
	assert.Contains(t, out, "mesline_orders_placed_total 1")
	assert.Contains(t, out, "mesline_orders_archived_total 1")
	assert.Contains(t, out, "mesline_order_lead_time_seconds_sum 3")
}

func TestMetrics_Gauges(t *testing.T) {
	m := NewMetrics()
	m.SetQueueDepth("queued", 3)
	m.SetMachine("robot_arm", 90*time.Second, true, 49.5)

	out := scrape(t, m)
	assert.Contains(t, out, `mesline_queue_depth{status="queued"} 3`)
	assert.Contains(t, out, `mesline_machine_uptime_seconds{machine="robot_arm"} 90`)
	assert.Contains(t, out, `mesline_machine_running{machine="robot_arm"} 1`)
	assert.Contains(t, out, `mesline_machine_service_due_hours{machine="robot_arm"} 49.5`)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.OrderPlaced()

	out := scrape(t, m)
	assert.True(t, strings.HasPrefix(out, "# HELP"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.StepApplied("x")
	m.StepSkipped("x")
	m.OrderPlaced()
	m.OrderArchived(time.Second)
	m.SetQueueDepth("queued", 1)
	m.SetMachine("m", 0, false, 0)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
