package storage

import "time"

const (
	KindExchange = "exchange"
	KindSave     = "save"
)

// Event is one line of the activity log: either a completed exchange or a
// saved conversation. Events are appended in chronological order.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	ChatID    int64     `json:"chat_id"`

	UserMessage string `json:"user_message,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Reply       string `json:"reply,omitempty"`
	Detailed    bool   `json:"detailed,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
	Model       string `json:"model,omitempty"`
	TotalTokens int    `json:"total_tokens,omitempty"`

	HistoryKey   string `json:"history_key,omitempty"`
	MessageCount int    `json:"message_count,omitempty"`
}

// Recorder persists activity events.
// LoadEvents returns events in the order they were appended.
// Implementations must be safe for concurrent use.
type Recorder interface {
	AppendEvent(event Event) error
	LoadEvents() ([]Event, error)
}
