package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

type collaborators struct {
	orchestrator http.HandlerFunc
	revenue      http.HandlerFunc
	ai           http.HandlerFunc
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func newCollaboratorServer(t *testing.T, c collaborators) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", c.orchestrator)
	mux.HandleFunc("/api/analytics/revenue/all", c.revenue)
	mux.HandleFunc("/api/ai/generate-content", c.ai)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func healthyCollaborators() collaborators {
	return collaborators{
		orchestrator: jsonHandler(`{"success":true,"status":{"youtube":{"status":"running"}}}`),
		revenue:      jsonHandler(`{"success":true,"revenue":{"total":125.5}}`),
		ai:           jsonHandler(`{"success":true}`),
	}
}

func deepCheckerFor(srv *httptest.Server) *DeepChecker {
	return NewDeepChecker(config.DeepCheckConfig{
		OrchestratorURL: srv.URL,
		AnalyticsURL:    srv.URL + "/",
		AIServiceURL:    srv.URL,
	}, time.Second, time.Second)
}

func allIncidents(results []StepResult) []Finding {
	var out []Finding
	for _, r := range results {
		out = append(out, r.Incidents()...)
	}
	return out
}

func TestDeepChecker_AllHealthy(t *testing.T) {
	srv := newCollaboratorServer(t, healthyCollaborators())

	results := deepCheckerFor(srv).Run(context.Background())

	require.Len(t, results, 3)
	for _, r := range results {
		assert.NoError(t, r.Err, r.Step)
	}
	assert.Empty(t, allIncidents(results))
}

func TestDeepChecker_Findings(t *testing.T) {
	c := collaborators{
		orchestrator: jsonHandler(`{"success":true,"status":{"twitter":{"status":"error"},"facebook":{"status":"error"},"youtube":{"status":"running"}}}`),
		revenue:      jsonHandler(`{"success":true,"revenue":{"total":0}}`),
		ai:           jsonHandler(`{"success":false}`),
	}
	srv := newCollaboratorServer(t, c)

	findings := allIncidents(deepCheckerFor(srv).Run(context.Background()))

	require.Len(t, findings, 4)
	assert.Equal(t, Finding{Platform: "automation", Type: models.IncidentWorkflowError, Description: "facebook workflow failed"}, findings[0])
	assert.Equal(t, Finding{Platform: "automation", Type: models.IncidentWorkflowError, Description: "twitter workflow failed"}, findings[1])
	assert.Equal(t, models.IncidentNoRevenueFlow, findings[2].Type)
	assert.Equal(t, "revenue", findings[2].Platform)
	assert.Equal(t, models.IncidentAINotResponding, findings[3].Type)
	assert.Equal(t, "ai-services", findings[3].Platform)
}

func TestDeepChecker_FailingStepDoesNotAbortOthers(t *testing.T) {
	c := healthyCollaborators()
	c.orchestrator = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	c.revenue = jsonHandler(`not json`)
	srv := newCollaboratorServer(t, c)

	results := deepCheckerFor(srv).Run(context.Background())

	require.Len(t, results, 3)
	assert.Error(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)

	findings := allIncidents(results)
	require.Len(t, findings, 2)
	assert.Equal(t, models.IncidentAutomationCheckFailed, findings[0].Type)
	assert.Equal(t, models.IncidentRevenueCheckFailed, findings[1].Type)
	assert.Equal(t, models.SeverityMedium, SeverityFor(findings[0].Type))
}

func TestDeepChecker_AIRequestPayload(t *testing.T) {
	var got aiHealthRequest
	c := healthyCollaborators()
	c.ai = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true}`))
	}
	srv := newCollaboratorServer(t, c)

	deepCheckerFor(srv).Run(context.Background())

	assert.Equal(t, "health-check", got.Type)
	assert.Equal(t, 10, got.Parameters["maxTokens"])
}

func TestDeepChecker_UnreachableCollaborators(t *testing.T) {
	checker := NewDeepChecker(config.DeepCheckConfig{
		OrchestratorURL: refusedURL(t),
		AnalyticsURL:    refusedURL(t),
		AIServiceURL:    refusedURL(t),
	}, 200*time.Millisecond, 0)

	findings := allIncidents(checker.Run(context.Background()))

	require.Len(t, findings, 3)
	assert.Equal(t, models.IncidentAICheckFailed, findings[2].Type)
}
