package models

import "time"

// QueuedDelivery is one outbound message awaiting durable, at-least-once
// delivery through the Delivery Queue.
type QueuedDelivery struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	To          string    `json:"to"`
	Text        string    `json:"text"`
	AgentID     string    `json:"agentId,omitempty"`
	SessionKey  string    `json:"sessionKey,omitempty"`
	RetryCount  int       `json:"retryCount"`
	MaxRetries  int       `json:"maxRetries"`
	LastError   string    `json:"lastError,omitempty"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
	NextRetryAt time.Time `json:"nextRetryAt"`
	// NonRetryable marks a delivery that failed validation rather than
	// transport, so the worker routes it directly to the dead-letter
	// directory instead of rescheduling it.
	NonRetryable bool `json:"nonRetryable,omitempty"`
}

// DefaultMaxRetries is the default retry budget for a QueuedDelivery
// before it is moved to the dead-letter directory.
const DefaultMaxRetries = 5
