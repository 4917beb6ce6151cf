// SPDX-License-Identifier: Apache-2.0

// Package events announces finalized extractions on NATS so downstream
// services (the mapping UI backend, auditing) can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is where ExtractionCompleted events go unless configured
// otherwise.
const DefaultSubject = "sheetgpt.extraction.completed"

// ExtractionCompleted summarizes one finalized extraction. It carries the
// shape and classification, not the table itself.
type ExtractionCompleted struct {
	EventID        string    `json:"event_id"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Shape          string    `json:"shape"`
	Strategy       string    `json:"strategy"`
	Recovered      bool      `json:"recovered"`
	Columns        int       `json:"columns"`
	Rows           int       `json:"rows"`
	EntityType     string    `json:"entity_type,omitempty"`
	Confidence     float64   `json:"confidence"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewExtractionCompleted stamps an event with a fresh id and time.
func NewExtractionCompleted(messageID string) ExtractionCompleted {
	return ExtractionCompleted{
		EventID:    uuid.NewString(),
		MessageID:  messageID,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher sends ExtractionCompleted events somewhere.
type Publisher interface {
	Publish(ctx context.Context, evt ExtractionCompleted) error
}

// NATS publishes events as JSON on a single subject.
type NATS struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

// NewNATS connects to url. An empty token disables token auth. The
// connection keeps retrying in the background if the server is down.
func NewNATS(url, token, subject string, log *zap.Logger) (*NATS, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if subject == "" {
		subject = DefaultSubject
	}

	opts := []nats.Option{
		nats.Name("sheetgpt"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{conn: nc, subject: subject, log: log}, nil
}

// Publish marshals evt and hands it to the connection. Delivery is
// fire-and-forget; ctx only bounds the call.
func (p *NATS) Publish(ctx context.Context, evt ExtractionCompleted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATS) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
