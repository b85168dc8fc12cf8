package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tesseract-hub/platform-health-monitor/internal/metrics"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

const (
	subscriberBuffer = 100
	sinkQueueSize    = 256
	sinkTimeout      = 3 * time.Second
)

// EventSink forwards events to an external system (message bus, cache)
type EventSink interface {
	Name() string
	Publish(ctx context.Context, event models.Event) error
}

// Notifier broadcasts health and incident events without blocking the caller
type Notifier struct {
	subscribers map[string]chan models.Event
	subMu       sync.RWMutex

	sinks  []EventSink
	queue  chan models.Event
	done   chan struct{}
	qMu    sync.RWMutex
	closed bool

	stateMu      sync.Mutex
	lastOverall  models.OverallStatus
	criticalSent bool

	now func() time.Time
}

// NewNotifier creates a notifier. When sinks are given a dispatcher goroutine drains
// events into them; call Close to stop it.
func NewNotifier(sinks ...EventSink) *Notifier {
	n := &Notifier{
		subscribers: make(map[string]chan models.Event),
		sinks:       sinks,
		done:        make(chan struct{}),
		lastOverall: models.OverallUnknown,
		now:         time.Now,
	}
	if len(sinks) > 0 {
		n.queue = make(chan models.Event, sinkQueueSize)
		go n.dispatch()
	} else {
		close(n.done)
	}
	return n
}

// Subscribe adds a subscriber for real-time updates
func (n *Notifier) Subscribe(id string) <-chan models.Event {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	ch := make(chan models.Event, subscriberBuffer)
	n.subscribers[id] = ch
	return ch
}

// Unsubscribe removes a subscriber
func (n *Notifier) Unsubscribe(id string) {
	n.subMu.Lock()
	defer n.subMu.Unlock()

	if ch, ok := n.subscribers[id]; ok {
		close(ch)
		delete(n.subscribers, id)
	}
}

// SubscriberCount returns the number of connected observers
func (n *Notifier) SubscriberCount() int {
	n.subMu.RLock()
	defer n.subMu.RUnlock()
	return len(n.subscribers)
}

// PublishHealthUpdate broadcasts the latest snapshot and emits critical
// transitions when the overall status enters or leaves critical.
func (n *Notifier) PublishHealthUpdate(system models.SystemHealth, targets []models.Target) {
	n.broadcast(models.EventHealthUpdate, models.HealthUpdate{SystemHealth: system, Platforms: targets})

	n.stateMu.Lock()
	prev := n.lastOverall
	n.lastOverall = system.OverallHealth
	enter := system.OverallHealth == models.OverallCritical && !n.criticalSent
	leave := system.OverallHealth != models.OverallCritical && n.criticalSent
	if enter {
		n.criticalSent = true
	}
	if leave {
		n.criticalSent = false
	}
	n.stateMu.Unlock()

	if enter {
		n.PublishCritical(system, targets)
	}
	if leave {
		n.publishCriticalResolved(prev, system)
	}
}

// PublishIncident broadcasts a newly recorded incident
func (n *Notifier) PublishIncident(incident models.Incident) {
	n.broadcast(models.EventNewIncident, incident)
}

// PublishCritical broadcasts a critical alert naming every down platform
func (n *Notifier) PublishCritical(system models.SystemHealth, targets []models.Target) {
	down := make([]string, 0)
	for _, t := range targets {
		if t.Status == models.StatusDown {
			down = append(down, t.Name)
		}
	}
	sort.Strings(down)

	alert := models.CriticalAlert{
		Message:   fmt.Sprintf("CRITICAL: %d platforms are down!", system.PlatformCounts.Down),
		Platforms: down,
	}
	log.WithField("platforms", down).Error(alert.Message)
	n.broadcast(models.EventCriticalAlert, alert)
}

// PublishReport broadcasts a deep check report
func (n *Notifier) PublishReport(report models.HealthReport) {
	n.broadcast(models.EventHealthReport, report)
}

// PublishRestarted broadcasts the completion of a manual restart
func (n *Notifier) PublishRestarted(platform string) {
	n.broadcast(models.EventPlatformRestarted, models.PlatformRestarted{Platform: platform})
}

// Close stops the sink dispatcher after draining queued events
func (n *Notifier) Close() {
	n.qMu.Lock()
	if !n.closed {
		n.closed = true
		if n.queue != nil {
			close(n.queue)
		}
	}
	n.qMu.Unlock()
	<-n.done
}

func (n *Notifier) publishCriticalResolved(prev models.OverallStatus, system models.SystemHealth) {
	msg := fmt.Sprintf("RESOLVED: system recovered from %s, now %s", prev, system.OverallHealth)
	log.WithField("status", system.OverallHealth).Info(msg)
	n.broadcast(models.EventCriticalResolved, models.CriticalResolved{
		Message:       msg,
		OverallHealth: system.OverallHealth,
	})
}

func (n *Notifier) broadcast(t models.EventType, data interface{}) {
	event := models.Event{Type: t, Data: data, Timestamp: n.now().UTC()}

	n.subMu.RLock()
	for id, ch := range n.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
			metrics.IncDropped("subscriber")
			log.WithField("subscriber", id).Debug("Subscriber buffer full, event skipped")
		}
	}
	n.subMu.RUnlock()

	n.enqueue(event)
}

func (n *Notifier) enqueue(event models.Event) {
	n.qMu.RLock()
	defer n.qMu.RUnlock()

	if n.queue == nil || n.closed {
		return
	}
	select {
	case n.queue <- event:
	default:
		metrics.IncDropped("queue")
		log.WithField("type", event.Type).Warn("Sink queue full, event dropped")
	}
}

func (n *Notifier) dispatch() {
	defer close(n.done)
	for event := range n.queue {
		for _, sink := range n.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := sink.Publish(ctx, event); err != nil {
				metrics.IncDropped(sink.Name())
				log.WithError(err).WithFields(log.Fields{
					"sink": sink.Name(),
					"type": event.Type,
				}).Warn("Failed to publish event to sink")
			}
			cancel()
		}
	}
}
