package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"taxquery-backend/internal/conversation"
)

// Message is the payload published for every conversation change.
type Message struct {
	SessionID string              `json:"session_id"`
	Kind      string              `json:"kind"`
	Index     int                 `json:"index"`
	Entry     *conversation.Entry `json:"entry,omitempty"`
	Busy      bool                `json:"busy"`
	Timestamp string              `json:"timestamp"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher fans conversation events out to NATS subjects
// <prefix>.entry and <prefix>.busy.
type Publisher struct {
	conn   conn
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

func NewPublisher(_ context.Context, url, token, prefix string, logger *slog.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("taxquery-backend"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, nc: nc, prefix: prefix, logger: logger}, nil
}

func (p *Publisher) Subject(kind conversation.EventKind) string {
	return p.prefix + "." + string(kind)
}

func (p *Publisher) Publish(sessionID string, ev conversation.Event) error {
	msg := Message{
		SessionID: sessionID,
		Kind:      string(ev.Kind),
		Index:     ev.Index,
		Entry:     ev.Entry,
		Busy:      ev.Busy,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return p.conn.Publish(p.Subject(ev.Kind), payload)
}

// Attach publishes every event of state until the returned function is called.
func (p *Publisher) Attach(sessionID string, state *conversation.State) func() {
	return state.Subscribe(func(ev conversation.Event) {
		if err := p.Publish(sessionID, ev); err != nil {
			p.logger.Warn("failed to publish conversation event", "session", sessionID, "kind", ev.Kind, "error", err)
		}
	})
}

func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.logger.Warn("nats drain failed", "error", err)
		}
	}
}
