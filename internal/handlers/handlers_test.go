package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
	"github.com/tesseract-hub/platform-health-monitor/internal/services"
	ws "github.com/tesseract-hub/platform-health-monitor/internal/websocket"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	monitor *services.HealthMonitor
	hub     *ws.Hub
	router  *gin.Engine
}

func healthyURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func downURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := &config.Config{
		CheckInterval:     30 * time.Second,
		DeepCheckSchedule: "@every 1h",
		RequestTimeout:    time.Second,
		AICheckTimeout:    time.Second,
		RestartDelay:      20 * time.Millisecond,
		Thresholds: config.Thresholds{
			CriticalDownCount: 2,
			IncidentHistory:   50,
			ErrorHistory:      5,
			PatternWindow:     10,
			PatternThreshold:  3,
		},
		Targets: []config.TargetConfig{
			{Name: "online-course", URL: healthyURL(t), HealthPath: "/health"},
			{Name: "mobile-app", URL: downURL(t), HealthPath: "/health"},
		},
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingInterval:    time.Second,
			PongWait:        2 * time.Second,
			WriteWait:       time.Second,
			MaxMessageSize:  4096,
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	notifier := services.NewNotifier()
	monitor := services.NewHealthMonitor(cfg, notifier)
	t.Cleanup(monitor.Stop)

	hub := ws.NewHub(monitor, cfg.WebSocket)
	go hub.Run(notifier.Subscribe("websocket-hub"))
	t.Cleanup(hub.Shutdown)

	return &fixture{
		monitor: monitor,
		hub:     hub,
		router:  NewRouter(NewHandler(monitor, hub, cfg.WebSocket), cfg),
	}
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	f.monitor.Stop()
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/health").Code)
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.monitor.RunProbeRound(context.Background())

	w := f.do(http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	decode(t, w, &resp)
	assert.Equal(t, models.OverallDegraded, resp.System.OverallHealth)
	assert.Equal(t, 1, resp.System.PlatformCounts.Healthy)
	assert.Equal(t, 1, resp.System.PlatformCounts.Down)
	assert.Equal(t, 2, resp.System.TotalPlatforms)
	require.NotNil(t, resp.System.LastIncident)
	assert.Equal(t, "mobile-app", resp.System.LastIncident.Platform)
	assert.Len(t, resp.Platforms, 2)
}

func TestGetPlatforms(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/platforms")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Platforms []models.Target `json:"platforms"`
		Total     int             `json:"total"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "online-course", resp.Platforms[0].Name)
}

func TestGetPlatform(t *testing.T) {
	f := newFixture(t, nil)
	f.monitor.RunProbeRound(context.Background())

	w := f.do(http.MethodGet, "/api/v1/platforms/mobile-app")
	require.Equal(t, http.StatusOK, w.Code)
	var target models.Target
	decode(t, w, &target)
	assert.Equal(t, models.StatusDown, target.Status)
	assert.Equal(t, 502, target.StatusCode)

	missing := f.do(http.MethodGet, "/api/v1/platforms/nope")
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Contains(t, missing.Body.String(), `"error"`)
}

func TestRestartPlatform(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/platforms/mobile-app/restart")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "mobile-app")

	target, err := f.monitor.GetTarget("mobile-app")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRestarting, target.Status)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/v1/platforms/nope/restart").Code)

	f.monitor.Stop()
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/v1/platforms/mobile-app/restart").Code)
}

func TestGetIncidents(t *testing.T) {
	f := newFixture(t, nil)
	f.monitor.RunProbeRound(context.Background())
	f.monitor.RunProbeRound(context.Background())

	var resp struct {
		Incidents []models.Incident `json:"incidents"`
		Total     int               `json:"total"`
	}

	w := f.do(http.MethodGet, "/api/v1/incidents")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, models.IncidentPlatformDown, resp.Incidents[0].Type)
	assert.Equal(t, models.SeverityHigh, resp.Incidents[0].Severity)

	w = f.do(http.MethodGet, "/api/v1/incidents?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Total)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/incidents?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/v1/incidents?limit=-2").Code)
}

func TestGetReport(t *testing.T) {
	f := newFixture(t, nil)
	f.monitor.RunProbeRound(context.Background())

	w := f.do(http.MethodGet, "/api/v1/report")
	require.Equal(t, http.StatusOK, w.Code)

	var report models.HealthReport
	decode(t, w, &report)
	require.NotEmpty(t, report.Recommendations)
	assert.Equal(t, models.RecommendationCritical, report.Recommendations[0].Type)
	assert.Equal(t, "Restart mobile-app service immediately", report.Recommendations[0].Message)
	assert.Len(t, report.PlatformDetails, 2)
}

func TestRateLimitAppliesToAPIOnly(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{RPS: 0.001, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/status").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/api/v1/status").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.monitor.RunProbeRound(context.Background())

	w := f.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "platform_health_platform_status")
}

func TestSSEStream(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	waitFor := func(event string) {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err, "stream ended before %s", event)
			if strings.TrimSpace(line) == "event:"+event {
				return
			}
		}
	}

	waitFor("status")
	require.NoError(t, f.monitor.RestartTarget("mobile-app"))
	waitFor(string(models.EventHealthUpdate))
	waitFor(string(models.EventPlatformRestarted))
}

func TestWebSocketStream(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() ws.MessageType {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg struct {
			Type ws.MessageType `json:"type"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg.Type
	}

	assert.Equal(t, ws.MessageTypeConnected, read())
	assert.Equal(t, ws.MessageTypeStatus, read())

	f.monitor.RunProbeRound(context.Background())

	seen := map[ws.MessageType]bool{}
	for i := 0; i < 2; i++ {
		seen[read()] = true
	}
	assert.True(t, seen[ws.MessageType(models.EventNewIncident)])
	assert.True(t, seen[ws.MessageType(models.EventHealthUpdate)])
}
