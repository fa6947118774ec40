// Package events publishes book lifecycle notifications to NATS. Payloads are
// JSON; subjects are "<prefix>.<event>", e.g. "catalog.books.created".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// conn is the subset of *nats.Conn used by Publisher.
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// Publisher sends events over a NATS connection.
type Publisher struct {
	nc     conn
	prefix string
}

// Connect dials url and returns a Publisher that prefixes every subject.
func Connect(url, prefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("go-books-api"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return newPublisher(nc, prefix), nil
}

func newPublisher(nc conn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: strings.Trim(strings.TrimSpace(prefix), ".")}
}

// Subject returns the fully qualified subject for event.
func (p *Publisher) Subject(event string) string {
	if p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

// Publish encodes payload as JSON and publishes it on Subject(subject).
// It returns ctx.Err() without publishing when ctx is already done.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", subject, err)
	}
	return p.nc.Publish(p.Subject(subject), data)
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error { return p.nc.Drain() }
