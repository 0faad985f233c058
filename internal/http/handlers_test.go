package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/aggregation"
	"github.com/chamuda-arangalla/EDUGuard/internal/capture"
	"github.com/chamuda-arangalla/EDUGuard/internal/classifier"
	"github.com/chamuda-arangalla/EDUGuard/internal/evaluator"
	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/monitor"
	"github.com/chamuda-arangalla/EDUGuard/internal/reports"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"
	"github.com/chamuda-arangalla/EDUGuard/internal/scheduler"
	"github.com/chamuda-arangalla/EDUGuard/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDevice struct{ open bool }

func (d *stubDevice) Open() error  { d.open = true; return nil }
func (d *stubDevice) Close() error { d.open = false; return nil }
func (d *stubDevice) Active() bool { return d.open }

type apiFixture struct {
	server   *httptest.Server
	engine   *aggregation.Engine
	gateway  *repository.MemoryGateway
	registry *monitor.Registry
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	kv := store.NewRedisKVStore(client)
	gw := repository.NewMemoryGateway()
	engine := aggregation.NewEngine(logger)
	sup := evaluator.NewSuppressionStore(kv, 5*time.Minute)
	eval := evaluator.NewEvaluator(gw, sup, nil, logger)
	hb := scheduler.NewHeartbeat(logger)
	t.Cleanup(hb.Shutdown)

	configs := models.DefaultMonitorConfigs()
	sources := make(map[models.MonitorType]classifier.Source)
	for mt, cfg := range configs {
		sources[mt] = classifier.NewBaselineSource(cfg, 10*time.Millisecond)
	}

	registry := monitor.NewRegistry(monitor.RegistryDeps{
		Configs:           configs,
		Capture:           capture.NewManager(&stubDevice{}, logger),
		Sources:           sources,
		Engine:            engine,
		Gateway:           gw,
		Evaluator:         eval,
		Suppression:       sup,
		Heartbeat:         hb,
		KV:                kv,
		Logger:            logger,
		Window:            5 * time.Minute,
		HeartbeatInterval: time.Hour, // 测试里由 check-alerts 驱动评估
	})
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	router := NewRouter(logger)
	router.RegisterMonitorRoutes(NewMonitorHandler(registry, gw, kv, 5, logger))
	router.RegisterReportRoutes(NewReportHandler(reports.NewGenerator(gw, configs, logger), logger))
	router.RegisterHealthRoute()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &apiFixture{server: server, engine: engine, gateway: gw, registry: registry}
}

func (f *apiFixture) do(t *testing.T, method, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}
	return resp, body
}

func TestStartStatusStopFlow(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.do(t, http.MethodPost, "/api/posture/start?userId=user-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	resp, body = f.do(t, http.MethodGet, "/api/posture/status?userId=user-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["is_monitoring"])
	assert.Equal(t, true, data["capture_active"])
	assert.Equal(t, "running", data["state"])

	resp, body = f.do(t, http.MethodPost, "/api/posture/stop?userId=user-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	_, body = f.do(t, http.MethodGet, "/api/posture/status?userId=user-1")
	data = body["data"].(map[string]any)
	assert.Equal(t, false, data["is_monitoring"])
	assert.Equal(t, "idle", data["state"])
}

func TestStartRequiresUserID(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.do(t, http.MethodPost, "/api/posture/start")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "user ID")
}

func TestUserIDFromHeader(t *testing.T) {
	f := setupAPI(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/posture/start", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "user-7")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	statuses := f.registry.Status("user-7")
	var posture models.SessionStatus
	for _, s := range statuses {
		if s.MonitorType == models.MonitorPosture {
			posture = s
		}
	}
	assert.Equal(t, models.SessionRunning, posture.State)
}

func TestUserIDFromJSONBody(t *testing.T) {
	f := setupAPI(t)

	resp, err := http.Post(f.server.URL+"/api/stress/start", "application/json",
		strings.NewReader(`{"userId":"user-9"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecentData(t *testing.T) {
	f := setupAPI(t)
	now := time.Now()

	for i := 0; i < 7; i++ {
		f.engine.Record(models.ClassificationEvent{
			MonitorType: models.MonitorPosture, UserID: "user-1",
			Timestamp: now, Label: "Bad Posture",
		})
	}
	for i := 0; i < 3; i++ {
		f.engine.Record(models.ClassificationEvent{
			MonitorType: models.MonitorPosture, UserID: "user-1",
			Timestamp: now, Label: "Good Posture",
		})
	}

	resp, body := f.do(t, http.MethodGet, "/api/posture/data/recent?userId=user-1&minutes=5")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(10), data["sample_count"])
	pcts := data["label_percentages"].(map[string]any)
	assert.Equal(t, 70.0, pcts["Bad Posture"])
}

func TestRecentData_EmptyWindowIsWellFormed(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/hydration/data/recent?userId=user-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["insufficient_data"])
	pcts := data["label_percentages"].(map[string]any)
	assert.Equal(t, 0.0, pcts["Dry Lips"])
	assert.Equal(t, 0.0, pcts["Normal Lips"])
}

func TestCheckAlertsAndRecentAlerts(t *testing.T) {
	f := setupAPI(t)
	now := time.Now()

	for i := 0; i < 10; i++ {
		f.engine.Record(models.ClassificationEvent{
			MonitorType: models.MonitorPosture, UserID: "user-1",
			Timestamp: now, Label: "Bad Posture",
		})
	}

	resp, body := f.do(t, http.MethodPost, "/api/posture/check-alerts?userId=user-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["alert_triggered"])

	resp, body = f.do(t, http.MethodGet, "/api/posture/alerts/recent?userId=user-1&limit=10")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	alerts := body["data"].([]any)
	require.Len(t, alerts, 1)
	alert := alerts[0].(map[string]any)
	assert.Equal(t, "error", alert["level"])
	assert.Equal(t, false, alert["read"])
}

func TestRecentAlerts_FiltersByType(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	require.NoError(t, f.gateway.AppendAlert(ctx, models.AlertRecord{
		ID: "a1", UserID: "user-1", MonitorType: models.MonitorPosture,
		Level: models.AlertLevelWarning, CreatedAt: time.Now(),
	}))
	require.NoError(t, f.gateway.AppendAlert(ctx, models.AlertRecord{
		ID: "a2", UserID: "user-1", MonitorType: models.MonitorStress,
		Level: models.AlertLevelError, CreatedAt: time.Now(),
	}))

	_, body := f.do(t, http.MethodGet, "/api/stress/alerts/recent?userId=user-1")
	alerts := body["data"].([]any)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a2", alerts[0].(map[string]any)["id"])
}

func TestMarkAlertRead(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()

	require.NoError(t, f.gateway.AppendAlert(ctx, models.AlertRecord{
		ID: "a1", UserID: "user-1", MonitorType: models.MonitorPosture,
		CreatedAt: time.Now(),
	}))

	resp, body := f.do(t, http.MethodPost, "/api/alerts/a1/read?userId=user-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	alerts, err := f.gateway.QueryAlerts(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.True(t, alerts[0].Read)

	resp, _ = f.do(t, http.MethodPost, "/api/alerts/missing/read?userId=user-1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportEndpoint(t *testing.T) {
	f := setupAPI(t)
	ctx := context.Background()
	ref := time.Now()

	require.NoError(t, f.gateway.AppendEvent(ctx, models.ClassificationEvent{
		MonitorType: models.MonitorPosture, UserID: "user-1",
		Timestamp: ref, Label: "Bad Posture",
	}))

	resp, body := f.do(t, http.MethodGet, "/api/reports/posture?userId=user-1&timeframe=daily")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "daily", data["period"])
	assert.Equal(t, float64(1), data["total_samples"])
	assert.Len(t, data["buckets"].([]any), 24)
}

func TestReportEndpoint_InvalidTimeframe(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.do(t, http.MethodGet, "/api/reports/posture?userId=user-1&timeframe=yearly")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
}

func TestReportExport(t *testing.T) {
	f := setupAPI(t)

	resp, _ := f.do(t, http.MethodGet, "/api/reports/posture/export?userId=user-1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")
}

func TestMethodNotAllowed(t *testing.T) {
	f := setupAPI(t)

	resp, _ := f.do(t, http.MethodGet, "/api/posture/start?userId=user-1")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/posture/status?userId=user-1")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := setupAPI(t)

	resp, body := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
}
