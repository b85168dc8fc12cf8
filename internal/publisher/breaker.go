package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

// ErrCircuitOpen is returned while a sink's breaker rejects publishes
var ErrCircuitOpen = errors.New("circuit breaker is open, sink unavailable")

// Sink is an external destination for monitor events
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.Event) error
}

// BreakerSink guards a sink with a circuit breaker so an unreachable broker
// fails fast instead of stalling the dispatch queue.
type BreakerSink struct {
	sink Sink
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSink wraps sink. openFor is how long the breaker stays open
// before letting trial publishes through.
func NewBreakerSink(sink Sink, openFor time.Duration) *BreakerSink {
	if openFor <= 0 {
		openFor = 60 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("sink-%s", sink.Name()),
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 5 consecutive failures or 50% failure rate with at least 10 requests
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(log.Fields{
				"circuit_breaker": name,
				"from":            from.String(),
				"to":              to.String(),
			}).Info("Circuit breaker state changed")
		},
	}
	return &BreakerSink{sink: sink, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name returns the wrapped sink's name
func (b *BreakerSink) Name() string {
	return b.sink.Name()
}

// Publish forwards the event unless the breaker is open
func (b *BreakerSink) Publish(ctx context.Context, event models.Event) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.sink.Publish(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State reports the breaker state
func (b *BreakerSink) State() gobreaker.State {
	return b.cb.State()
}
