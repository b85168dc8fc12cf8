package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

// Finding is a problem detected by a deep check step
type Finding struct {
	Platform    string
	Type        models.IncidentType
	Description string
}

// StepResult is the outcome of one deep check step. Err is set when the step
// itself could not complete; Findings may be non-empty only when Err is nil.
type StepResult struct {
	Step     string
	Platform string
	FailType models.IncidentType
	Findings []Finding
	Err      error
}

// Incidents converts the result into the incidents it should raise
func (r StepResult) Incidents() []Finding {
	if r.Err != nil {
		return []Finding{{Platform: r.Platform, Type: r.FailType, Description: r.Err.Error()}}
	}
	return r.Findings
}

type deepStep struct {
	name     string
	platform string
	failType models.IncidentType
	run      func(ctx context.Context) ([]Finding, error)
}

// DeepChecker probes orchestration, revenue and AI collaborators
type DeepChecker struct {
	client    *http.Client
	cfg       config.DeepCheckConfig
	timeout   time.Duration
	aiTimeout time.Duration
}

// NewDeepChecker creates a deep checker for the given collaborator endpoints
func NewDeepChecker(cfg config.DeepCheckConfig, timeout, aiTimeout time.Duration) *DeepChecker {
	if aiTimeout <= 0 {
		aiTimeout = timeout
	}
	return &DeepChecker{
		client:    &http.Client{},
		cfg:       cfg,
		timeout:   timeout,
		aiTimeout: aiTimeout,
	}
}

// Run executes every step in order. A failing step never aborts the others.
func (d *DeepChecker) Run(ctx context.Context) []StepResult {
	steps := []deepStep{
		{name: "automation", platform: "automation", failType: models.IncidentAutomationCheckFailed, run: d.checkAutomation},
		{name: "revenue", platform: "revenue", failType: models.IncidentRevenueCheckFailed, run: d.checkRevenue},
		{name: "ai", platform: "ai-services", failType: models.IncidentAICheckFailed, run: d.checkAI},
	}

	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		findings, err := step.run(ctx)
		results = append(results, StepResult{
			Step:     step.name,
			Platform: step.platform,
			FailType: step.failType,
			Findings: findings,
			Err:      err,
		})
	}
	return results
}

type orchestratorStatus struct {
	Success bool `json:"success"`
	Status  map[string]struct {
		Status string `json:"status"`
	} `json:"status"`
}

func (d *DeepChecker) checkAutomation(ctx context.Context) ([]Finding, error) {
	var resp orchestratorStatus
	if err := d.doJSON(ctx, d.timeout, http.MethodGet, joinURL(d.cfg.OrchestratorURL, "/status"), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, nil
	}

	workflows := make([]string, 0, len(resp.Status))
	for name, wf := range resp.Status {
		if wf.Status == "error" {
			workflows = append(workflows, name)
		}
	}
	sort.Strings(workflows)

	findings := make([]Finding, 0, len(workflows))
	for _, name := range workflows {
		findings = append(findings, Finding{
			Platform:    "automation",
			Type:        models.IncidentWorkflowError,
			Description: fmt.Sprintf("%s workflow failed", name),
		})
	}
	return findings, nil
}

type revenueResponse struct {
	Success bool `json:"success"`
	Revenue struct {
		Total float64 `json:"total"`
	} `json:"revenue"`
}

func (d *DeepChecker) checkRevenue(ctx context.Context) ([]Finding, error) {
	var resp revenueResponse
	if err := d.doJSON(ctx, d.timeout, http.MethodGet, joinURL(d.cfg.AnalyticsURL, "/api/analytics/revenue/all"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Success && resp.Revenue.Total == 0 {
		return []Finding{{
			Platform:    "revenue",
			Type:        models.IncidentNoRevenueFlow,
			Description: "No revenue recorded in recent period",
		}}, nil
	}
	return nil, nil
}

type aiHealthRequest struct {
	Platform   string         `json:"platform"`
	Type       string         `json:"type"`
	Prompt     string         `json:"prompt"`
	Parameters map[string]int `json:"parameters"`
}

type aiResponse struct {
	Success bool `json:"success"`
}

func (d *DeepChecker) checkAI(ctx context.Context) ([]Finding, error) {
	payload := aiHealthRequest{
		Platform:   "test",
		Type:       "health-check",
		Prompt:     `Say "healthy" if you are working properly.`,
		Parameters: map[string]int{"maxTokens": 10},
	}

	var resp aiResponse
	if err := d.doJSON(ctx, d.aiTimeout, http.MethodPost, joinURL(d.cfg.AIServiceURL, "/api/ai/generate-content"), payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return []Finding{{
			Platform:    "ai-services",
			Type:        models.IncidentAINotResponding,
			Description: "AI services not generating content",
		}}, nil
	}
	return nil, nil
}

func (d *DeepChecker) doJSON(ctx context.Context, timeout time.Duration, method, url string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status code %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProbeBody)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
