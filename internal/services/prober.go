package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tesseract-hub/platform-health-monitor/internal/metrics"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

const maxProbeBody = 1 << 20

// ProbeResult captures the outcome of a single health probe
type ProbeResult struct {
	Platform   string
	Status     models.TargetStatus
	StatusCode int
	Latency    time.Duration
	Slow       bool
	Error      string
	CheckedAt  time.Time
}

// Prober issues HTTP health checks with a bounded timeout
type Prober struct {
	client        *http.Client
	timeout       time.Duration
	slowThreshold time.Duration
}

// NewProber creates a prober. Every probe is bounded by timeout; successful
// responses slower than slowThreshold are classified as degraded.
func NewProber(timeout, slowThreshold time.Duration) *Prober {
	return &Prober{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		timeout:       timeout,
		slowThreshold: slowThreshold,
	}
}

type healthBody struct {
	Status string `json:"status"`
}

// Check probes url and classifies the outcome. It never returns an error:
// timeouts, refused connections and malformed URLs all become StatusDown.
func (p *Prober) Check(ctx context.Context, platform, url string) ProbeResult {
	start := time.Now()
	result := ProbeResult{Platform: platform, CheckedAt: start.UTC()}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = models.StatusDown
		result.Error = err.Error()
		return result
	}

	resp, err := p.client.Do(req)
	if err != nil {
		result.Latency = time.Since(start)
		result.Status = models.StatusDown
		result.Error = err.Error()
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			result.Error = fmt.Sprintf("timeout of %dms exceeded", p.timeout.Milliseconds())
		}
		metrics.ObserveProbe(platform, result.Latency)
		return result
	}
	defer resp.Body.Close()

	var body healthBody
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxProbeBody)).Decode(&body)
	result.Latency = time.Since(start)
	result.StatusCode = resp.StatusCode
	metrics.ObserveProbe(platform, result.Latency)

	switch {
	case ctx.Err() != nil:
		result.Status = models.StatusDown
		result.Error = fmt.Sprintf("timeout of %dms exceeded", p.timeout.Milliseconds())
	case resp.StatusCode >= 500:
		result.Status = models.StatusDown
		result.Error = fmt.Sprintf("Request failed with status code %d", resp.StatusCode)
	case resp.StatusCode == http.StatusOK && decodeErr == nil && body.Status == "healthy":
		result.Status = models.StatusHealthy
	default:
		result.Status = models.StatusDegraded
		result.Error = fmt.Sprintf("Status: %d", resp.StatusCode)
	}

	if result.Status != models.StatusDown && p.slowThreshold > 0 && result.Latency > p.slowThreshold {
		result.Slow = true
		result.Status = models.StatusDegraded
		if result.Error == "" {
			result.Error = fmt.Sprintf("Response time: %dms", result.Latency.Milliseconds())
		}
	}

	return result
}

// ProbeSignal tells the monitor which incident a probe result should raise
type ProbeSignal struct {
	Type        models.IncidentType
	Description string
}

// ApplyProbe mutates target according to result and returns the incidents to record.
// interval is credited to the uptime counter on success; errorCap bounds the error history.
func ApplyProbe(target *models.Target, result ProbeResult, interval time.Duration, errorCap int) []ProbeSignal {
	checkedAt := result.CheckedAt
	target.Status = result.Status
	target.LastCheck = &checkedAt
	target.ResponseTimeMs = result.Latency.Milliseconds()
	target.StatusCode = result.StatusCode

	if result.Status == models.StatusHealthy {
		target.UptimeSeconds += int64(interval / time.Second)
		target.Errors = []models.ProbeError{}
		return nil
	}

	target.UptimeSeconds = 0
	target.Errors = appendBounded(target.Errors, models.ProbeError{
		Time:           checkedAt,
		Error:          result.Error,
		ResponseTimeMs: result.Latency.Milliseconds(),
	}, errorCap)

	switch {
	case result.Status == models.StatusDown:
		return []ProbeSignal{{Type: models.IncidentPlatformDown, Description: result.Error}}
	case result.Slow:
		return []ProbeSignal{{
			Type:        models.IncidentSlowResponse,
			Description: fmt.Sprintf("Response time: %dms", result.Latency.Milliseconds()),
		}}
	}
	return nil
}

func appendBounded(errs []models.ProbeError, e models.ProbeError, limit int) []models.ProbeError {
	if limit < 1 {
		limit = 1
	}
	errs = append(errs, e)
	if len(errs) > limit {
		errs = append([]models.ProbeError(nil), errs[len(errs)-limit:]...)
	}
	return errs
}
