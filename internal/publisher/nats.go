package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/tesseract-hub/platform-health-monitor/internal/config"
	"github.com/tesseract-hub/platform-health-monitor/internal/models"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes every event to <prefix>.<event-type>
type NATSSink struct {
	conn   natsConn
	prefix string
}

// NewNATSSink connects to NATS with reconnect handling
func NewNATSSink(cfg config.NATSConfig) (*NATSSink, error) {
	log.WithField("url", cfg.URL).Info("Connecting to NATS")

	opts := []nats.Option{
		nats.Name("platform-health-monitor"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(5 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSSink(conn, cfg.SubjectPrefix), nil
}

func newNATSSink(conn natsConn, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "platform.health"
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Name implements Sink
func (s *NATSSink) Name() string { return "nats" }

// Subject returns the subject an event type is published on
func (s *NATSSink) Subject(t models.EventType) string {
	return s.prefix + "." + string(t)
}

// Publish implements Sink
func (s *NATSSink) Publish(ctx context.Context, event models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.conn.Publish(s.Subject(event.Type), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
