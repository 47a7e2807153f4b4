package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/pmeyes/internal/config"
	"git.home.luguber.info/inful/pmeyes/internal/retry"
)

// HeaderEventType carries the event type on every published message.
const HeaderEventType = "Pmeyes-Event"

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// NATSPublisher publishes events to a single NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	pub     msgPublisher
	subject string
	retry   retry.Policy
	now     func() time.Time
}

// NewNATSPublisher connects to the configured server.
func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("pmeyes"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS event publisher initialized", "url", cfg.NATSURL, "subject", cfg.Subject)
	return &NATSPublisher{
		conn:    conn,
		pub:     conn,
		subject: cfg.Subject,
		retry:   retry.FromConfig(cfg.Retry),
		now:     time.Now,
	}, nil
}

// Publish sends one event and waits for the server to acknowledge the flush.
// Failed attempts are retried per the configured policy.
func (p *NATSPublisher) Publish(ctx context.Context, eventType string, data any) error {
	body, err := Encode(eventType, data, p.now())
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Header.Set(HeaderEventType, eventType)
	msg.Data = body
	return p.retry.Do(ctx, func() error {
		if err := p.pub.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish %s event: %w", eventType, err)
		}
		return p.pub.FlushWithContext(ctx)
	})
}

// Close drains and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// New returns a NATS publisher when events.nats_url is set, otherwise a NoopPublisher.
func New(cfg config.EventsConfig) (Publisher, error) {
	if cfg.NATSURL == "" {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(cfg)
}
