// Package audit records question/answer exchanges off the request path, so a
// slow or failing sink never adds latency to the chat loop.
package audit

import (
	"context"
	"time"
)

// EntryStatus represents the lifecycle of a log entry in the queue.
type EntryStatus string

const (
	// EntryStatusPending indicates the entry is waiting to be written.
	EntryStatusPending EntryStatus = "pending"
	// EntryStatusWritten indicates the entry reached its sink.
	EntryStatusWritten EntryStatus = "written"
	// EntryStatusFailed indicates the sink rejected the entry.
	EntryStatusFailed EntryStatus = "failed"
)

// QuestionLog is one question/answer exchange to be recorded.
type QuestionLog struct {
	// EntryID is the unique identifier for this log entry.
	EntryID string `json:"entry_id"`

	// SessionID is the chat session the exchange belongs to.
	SessionID string `json:"session_id"`

	// Question is the user's natural-language question.
	Question string `json:"question"`

	// Answer is the agent's answer text, empty when the agent failed.
	Answer string `json:"answer,omitempty"`

	// AgentError holds the agent failure, if any.
	AgentError string `json:"agent_error,omitempty"`

	// AskedAt is when the question was received.
	AskedAt time.Time `json:"asked_at"`

	// DurationMS is how long the agent took to answer.
	DurationMS int64 `json:"duration_ms"`

	// Status is the current queue status of the entry.
	Status EntryStatus `json:"status"`

	// SinkError holds the sink failure, if any.
	SinkError string `json:"sink_error,omitempty"`
}

// Publisher enqueues log entries for asynchronous recording.
type Publisher interface {
	// Publish enqueues a question log entry.
	Publish(ctx context.Context, entry *QuestionLog) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer drains the queue into a sink.
type Consumer interface {
	// Start begins consuming entries; the handler is called for each one.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight entries.
	Stop(ctx context.Context) error
}

// Handler writes one entry to a sink. A returned error marks the entry failed.
type Handler func(ctx context.Context, entry *QuestionLog) error

// Store keeps entry state so recent activity can be inspected over the API.
type Store interface {
	// Save saves or updates an entry.
	Save(ctx context.Context, entry *QuestionLog) error

	// Get retrieves an entry by ID.
	Get(ctx context.Context, entryID string) (*QuestionLog, error)

	// List retrieves entries with optional filtering.
	List(ctx context.Context, filter Filter) ([]*QuestionLog, error)
}

// Filter defines filtering criteria for listing entries.
type Filter struct {
	// SessionID filters entries by session.
	SessionID string

	// Status filters entries by queue status.
	Status EntryStatus

	// Limit limits the number of results.
	Limit int
}
