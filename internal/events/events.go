// Package events announces finished feed exports to downstream consumers
// (CDN purgers, marketplace pingers) over NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the subject export completion events are published on.
const DefaultSubject = "feeds.exported"

// DefaultFlushTimeout bounds a flush when the caller's context has no deadline.
const DefaultFlushTimeout = 5 * time.Second

// ExportCompleted is published once per successfully written feed file.
type ExportCompleted struct {
	RunID       string    `json:"run_id"`
	Profile     string    `json:"profile"`
	Format      string    `json:"format"`
	Path        string    `json:"path"`
	URL         string    `json:"url,omitempty"`
	Records     int       `json:"records"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Publisher sends export events.
type Publisher interface {
	PublishExport(ctx context.Context, evt ExportCompleted) error
	Close() error
}

// NoopPublisher drops every event. Used when NATS is not configured.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) PublishExport(context.Context, ExportCompleted) error { return nil }
func (NoopPublisher) Close() error                                         { return nil }

// NATSPublisher publishes events as JSON on a NATS subject.
type NATSPublisher struct {
	conn         *nats.Conn
	subject      string
	flushTimeout time.Duration
	logger       *slog.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// Connect dials NATS and returns a publisher for subject. A non-positive
// flushTimeout selects DefaultFlushTimeout.
func Connect(url, subject string, flushTimeout time.Duration, logger *slog.Logger) (*NATSPublisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(url,
		nats.Name("feedgen"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return NewNATSPublisher(conn, subject, flushTimeout, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn *nats.Conn, subject string, flushTimeout time.Duration, logger *slog.Logger) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if flushTimeout <= 0 {
		flushTimeout = DefaultFlushTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, subject: subject, flushTimeout: flushTimeout, logger: logger}
}

// PublishExport encodes evt and flushes it to the server. The flush waits
// until ctx expires, or for the flush timeout when ctx has no deadline.
func (p *NATSPublisher) PublishExport(ctx context.Context, evt ExportCompleted) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode export event: %w", err)
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set("Feed-Profile", evt.Profile)
	msg.Header.Set("Feed-Format", evt.Format)
	msg.Header.Set(nats.MsgIdHdr, evt.RunID+"/"+evt.Format+"/"+evt.Path)

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish export event: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.flushTimeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush export event: %w", err)
	}

	p.logger.Debug("export event published", "subject", p.subject, "profile", evt.Profile, "format", evt.Format)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Decode parses an event payload.
func Decode(data []byte) (ExportCompleted, error) {
	var evt ExportCompleted
	if err := json.Unmarshal(data, &evt); err != nil {
		return ExportCompleted{}, fmt.Errorf("failed to decode export event: %w", err)
	}
	return evt, nil
}
