// Package notify defines the progress event contract and its publishers.
// Events are advisory: a failed publish is logged and never fails the run.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	EventProcessingStarted     EventType = "processing_started"
	EventValidationProgress    EventType = "validation_progress"
	EventValidationFailed      EventType = "validation_failed"
	EventBookIdentified        EventType = "book_identified"
	EventPreprocessingComplete EventType = "preprocessing_complete"
	EventCharactersExtracted   EventType = "characters_extracted"
	EventProcessingCompleted   EventType = "processing_completed"
	EventProcessingFailed      EventType = "processing_failed"
	EventProcessingCancelled   EventType = "processing_cancelled"
	EventUnexpectedError       EventType = "unexpected_error"
)

// StatusProgress et al. classify the event for consumers that only care
// about coarse outcome.
const (
	StatusProgress  = "progress"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

// Event is the envelope pushed to the notification channel.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType EventType      `json:"event_type"`
	Status    string         `json:"status"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(runID string, typ EventType, status string, data map[string]any) Event {
	return Event{
		EventID:   uuid.NewString(),
		EventType: typ,
		Status:    status,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// UnexpectedError builds the non-fatal error event: a generic user-facing
// message in the payload, while the diagnostic detail stays in the logs.
func UnexpectedError(runID, userMessage string) Event {
	return NewEvent(runID, EventUnexpectedError, StatusError, map[string]any{
		"message": userMessage,
	})
}

// Publisher pushes events toward the outbound notification channel.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
