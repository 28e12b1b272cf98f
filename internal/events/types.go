// internal/events/types.go
package events

import (
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	TransactionConfirmed EventType = "transaction.confirmed"
	TransactionFailed    EventType = "transaction.failed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

func (e BaseEvent) Type() EventType {
	return e.EventType
}

func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// TransactionEvent describes the outcome of one transaction of a batch.
type TransactionEvent struct {
	BaseEvent
	Index        int    `json:"index"`
	Signature    string `json:"signature,omitempty"`
	Slot         uint64 `json:"slot,omitempty"`
	ExpiryHeight uint64 `json:"expiry_height"`
	Error        string `json:"error,omitempty"`
}
