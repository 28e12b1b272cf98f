package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher forwards bus events as JSON to "<subject>.<event type>".
type NATSPublisher struct {
	conn    Conn
	subject string
	logger  *zap.Logger
}

func NewNATSPublisher(conn Conn, subject string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject, logger: logger.Named("nats")}
}

// ConnectNATS dials a NATS server with reconnects enabled.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("candywrapper"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func (p *NATSPublisher) Handle(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := p.subject + "." + string(event.Type())
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	p.logger.Debug("Event published", zap.String("subject", subject))
	return nil
}

// Attach subscribes the publisher to every transaction event on bus.
func (p *NATSPublisher) Attach(bus *Bus) []Subscription {
	return []Subscription{
		bus.Subscribe(TransactionConfirmed, p),
		bus.Subscribe(TransactionFailed, p),
	}
}
