package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/metrics"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

var (
	ErrTargetNotFound = errors.New("platform not found")
	ErrMonitorStopped = errors.New("monitor is stopped")
	ErrAlreadyStarted = errors.New("monitor already started")
)

// HealthMonitor owns all target and incident state (in-memory) and drives
// the probe rounds, deep checks and notifications.
type HealthMonitor struct {
	cfg        *config.Config
	prober     *Prober
	deep       *DeepChecker
	aggregator Aggregator
	recorder   *IncidentRecorder
	notifier   *Notifier

	mu      sync.RWMutex
	targets map[string]*models.Target
	order   []string
	urls    map[string]string
	system  models.SystemHealth

	// publishMu orders snapshots: held from computing the verdict until it is published
	publishMu sync.Mutex

	lifecycleMu sync.Mutex
	started     bool
	stopped     atomic.Bool
	stopChan    chan struct{}
	loopDone    chan struct{}
	scheduler   *cron.Cron

	now func() time.Time
}

// NewHealthMonitor creates a monitor for the configured targets
func NewHealthMonitor(cfg *config.Config, notifier *Notifier) *HealthMonitor {
	if notifier == nil {
		notifier = NewNotifier()
	}
	m := &HealthMonitor{
		cfg:        cfg,
		prober:     NewProber(cfg.RequestTimeout, cfg.Thresholds.ResponseTime),
		deep:       NewDeepChecker(cfg.DeepCheck, cfg.RequestTimeout, cfg.AICheckTimeout),
		aggregator: NewAggregator(cfg.Thresholds.CriticalDownCount),
		recorder:   NewIncidentRecorder(cfg.Thresholds.IncidentHistory, notifier),
		notifier:   notifier,
		targets:    make(map[string]*models.Target, len(cfg.Targets)),
		urls:       make(map[string]string, len(cfg.Targets)),
		stopChan:   make(chan struct{}),
		loopDone:   make(chan struct{}),
		now:        time.Now,
	}
	m.initialize()
	return m
}

// initialize loads targets from config into memory
func (m *HealthMonitor) initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tc := range m.cfg.Targets {
		m.targets[tc.Name] = &models.Target{
			Name:   tc.Name,
			URL:    tc.ProbeURL(),
			Status: models.StatusUnknown,
			Errors: []models.ProbeError{},
		}
		m.urls[tc.Name] = tc.ProbeURL()
		m.order = append(m.order, tc.Name)
		metrics.SetPlatformStatus(tc.Name, models.StatusUnknown)
	}

	m.system = models.SystemHealth{
		OverallHealth:  models.OverallUnknown,
		TotalPlatforms: len(m.targets),
		UptimeSince:    m.now().UTC(),
		Incidents:      []models.Incident{},
	}

	log.WithField("count", len(m.targets)).Info("Initialized platforms for health monitoring")
}

// Start runs an initial probe round, then probes on every check interval and
// runs the deep check on the configured cron schedule. It returns immediately.
func (m *HealthMonitor) Start(ctx context.Context) error {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.stopped.Load() {
		return ErrMonitorStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}

	scheduler := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := scheduler.AddFunc(m.cfg.DeepCheckSchedule, func() { m.RunDeepCheck(ctx) }); err != nil {
		return fmt.Errorf("schedule deep check %q: %w", m.cfg.DeepCheckSchedule, err)
	}
	scheduler.Start()

	m.scheduler = scheduler
	m.started = true
	go m.run(ctx)

	log.WithFields(log.Fields{
		"interval":   m.cfg.CheckInterval.String(),
		"deep_check": m.cfg.DeepCheckSchedule,
	}).Info("Health monitoring started")
	return nil
}

// Stop clears both schedules. In-flight probes finish but their results are discarded.
func (m *HealthMonitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	if m.stopped.Swap(true) {
		return
	}
	close(m.stopChan)

	if !m.started {
		return
	}
	stopCtx := m.scheduler.Stop()
	<-m.loopDone
	<-stopCtx.Done()

	log.Info("Health monitoring stopped")
}

// Stopped reports whether Stop has been called
func (m *HealthMonitor) Stopped() bool {
	return m.stopped.Load()
}

func (m *HealthMonitor) run(ctx context.Context) {
	defer close(m.loopDone)

	m.RunProbeRound(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.RunProbeRound(ctx)
		}
	}
}

// RunProbeRound checks all targets concurrently and recomputes the system
// verdict once every probe has settled.
func (m *HealthMonitor) RunProbeRound(ctx context.Context) {
	m.mu.RLock()
	names := append([]string(nil), m.order...)
	m.mu.RUnlock()

	var wg sync.WaitGroup
	results := make(chan ProbeResult, len(names))

	for _, name := range names {
		wg.Add(1)
		go func(platform, url string) {
			defer wg.Done()
			results <- m.prober.Check(ctx, platform, url)
		}(name, m.urls[name])
	}

	// Close results channel when all checks complete
	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		m.applyResult(result)
	}

	m.recompute()
}

func (m *HealthMonitor) applyResult(result ProbeResult) {
	if m.stopped.Load() {
		return
	}

	m.mu.Lock()
	target, ok := m.targets[result.Platform]
	if !ok {
		m.mu.Unlock()
		return
	}
	wasHealthy := target.Status == models.StatusHealthy
	signals := ApplyProbe(target, result, m.cfg.CheckInterval, m.cfg.Thresholds.ErrorHistory)
	status := target.Status
	m.mu.Unlock()

	metrics.SetPlatformStatus(result.Platform, status)

	if status == models.StatusHealthy {
		if !wasHealthy {
			m.recorder.ResolvePlatform(result.Platform)
		}
	} else {
		log.WithFields(log.Fields{
			"platform":   result.Platform,
			"status":     status,
			"latency_ms": result.Latency.Milliseconds(),
		}).Warn("Health check failed: " + result.Error)
	}

	for _, s := range signals {
		m.recorder.Record(result.Platform, s.Type, s.Description)
	}
}

// recompute derives the snapshot from the current targets and broadcasts it.
// Concurrent callers publish in the order their snapshots were computed.
func (m *HealthMonitor) recompute() {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	if m.stopped.Load() {
		return
	}

	m.mu.Lock()
	targets := m.targetsLocked()
	m.system = m.aggregator.Recompute(m.system, targets, m.now().UTC())
	system := m.withIncidents(m.system)
	m.system = system
	m.mu.Unlock()

	metrics.SetOverallStatus(system.OverallHealth)
	m.notifier.PublishHealthUpdate(system, targets)
}

// RunDeepCheck probes the orchestration, revenue and AI endpoints, records
// what they report and broadcasts a health report.
func (m *HealthMonitor) RunDeepCheck(ctx context.Context) models.HealthReport {
	log.Debug("Performing detailed system check")

	for _, result := range m.deep.Run(ctx) {
		if m.stopped.Load() {
			break
		}
		if result.Err != nil {
			log.WithError(result.Err).WithField("step", result.Step).Warn("Deep check step failed")
		}
		for _, f := range result.Incidents() {
			m.recorder.Record(f.Platform, f.Type, f.Description)
		}
	}

	report := m.BuildReport()
	if !m.stopped.Load() {
		m.notifier.PublishReport(report)
	}
	return report
}

// BuildReport assembles the current health report with recommendations
func (m *HealthMonitor) BuildReport() models.HealthReport {
	status := m.CurrentStatus()
	now := m.now().UTC()

	recs := make([]models.Recommendation, 0)
	for _, t := range status.Platforms {
		switch t.Status {
		case models.StatusDown:
			recs = append(recs, models.Recommendation{
				Type:     models.RecommendationCritical,
				Platform: t.Name,
				Message:  fmt.Sprintf("Restart %s service immediately", t.Name),
				Action:   fmt.Sprintf("Check logs and restart service for %s", t.Name),
			})
		case models.StatusDegraded:
			recs = append(recs, models.Recommendation{
				Type:     models.RecommendationWarning,
				Platform: t.Name,
				Message:  fmt.Sprintf("Monitor %s - showing degraded performance", t.Name),
				Action:   fmt.Sprintf("Review %s logs and check resource usage", t.Name),
			})
		}
	}
	recs = append(recs, m.recorder.DetectPatterns(m.cfg.Thresholds.PatternWindow, m.cfg.Thresholds.PatternThreshold)...)

	return models.HealthReport{
		Timestamp:       now,
		SystemHealth:    status.System,
		PlatformDetails: status.Platforms,
		Recommendations: recs,
		Uptime:          fmt.Sprintf("%.2f hours", now.Sub(status.System.UptimeSince).Hours()),
	}
}

// RestartTarget marks a platform as restarting and brings it back as healthy
// with cleared uptime and errors after the configured delay.
func (m *HealthMonitor) RestartTarget(name string) error {
	if m.stopped.Load() {
		return ErrMonitorStopped
	}

	m.mu.Lock()
	target, ok := m.targets[name]
	if !ok {
		m.mu.Unlock()
		return ErrTargetNotFound
	}
	target.Status = models.StatusRestarting
	m.mu.Unlock()

	log.WithField("platform", name).Info("Manual restart requested")
	metrics.SetPlatformStatus(name, models.StatusRestarting)
	m.recompute()

	time.AfterFunc(m.cfg.RestartDelay, func() { m.completeRestart(name) })
	return nil
}

func (m *HealthMonitor) completeRestart(name string) {
	if m.stopped.Load() {
		return
	}

	m.mu.Lock()
	target, ok := m.targets[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	target.Status = models.StatusHealthy
	target.UptimeSeconds = 0
	target.Errors = []models.ProbeError{}
	m.mu.Unlock()

	metrics.SetPlatformStatus(name, models.StatusHealthy)
	m.recorder.ResolvePlatform(name)
	m.recompute()
	m.notifier.PublishRestarted(name)
}

// CurrentStatus returns the system snapshot together with every platform
func (m *HealthMonitor) CurrentStatus() models.StatusResponse {
	m.mu.RLock()
	targets := m.targetsLocked()
	system := m.system
	m.mu.RUnlock()

	return models.StatusResponse{
		System:    m.withIncidents(system),
		Platforms: targets,
	}
}

// SystemHealth returns the latest aggregate verdict
func (m *HealthMonitor) SystemHealth() models.SystemHealth {
	return m.CurrentStatus().System
}

// GetTargets returns all platforms in configuration order
func (m *HealthMonitor) GetTargets() []models.Target {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.targetsLocked()
}

// GetTarget returns a single platform by name
func (m *HealthMonitor) GetTarget(name string) (models.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	target, ok := m.targets[name]
	if !ok {
		return models.Target{}, ErrTargetNotFound
	}
	return target.Clone(), nil
}

// GetIncidents returns up to limit newest incidents
func (m *HealthMonitor) GetIncidents(limit int) []models.Incident {
	return m.recorder.Recent(limit)
}

// Notifier returns the notifier observers subscribe to
func (m *HealthMonitor) Notifier() *Notifier {
	return m.notifier
}

func (m *HealthMonitor) targetsLocked() []models.Target {
	out := make([]models.Target, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.targets[name].Clone())
	}
	return out
}

func (m *HealthMonitor) withIncidents(system models.SystemHealth) models.SystemHealth {
	system.Incidents = m.recorder.Recent(0)
	system.LastIncident = nil
	if latest, ok := m.recorder.Latest(); ok {
		system.LastIncident = &latest
	}
	return system
}
