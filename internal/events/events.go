package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the kinds of domain events this service emits
type EventType string

const (
	// Test events
	EventTestCreated EventType = "test.created"

	// Attempt events
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptSubmitted EventType = "attempt.submitted"

	// Catalog events
	EventQuestionsImported EventType = "questions.imported"
)

const (
	eventSource  = "exam-service"
	eventVersion = "1.0"
)

// Event is the envelope shared by every published event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Event payloads

type TestCreatedEvent struct {
	TestID        uuid.UUID `json:"test_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	SelectionMode string    `json:"selection_mode"`
	QuestionCount int       `json:"question_count"`
	CreatedBy     uuid.UUID `json:"created_by"`
}

type AttemptStartedEvent struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	TestID       uuid.UUID `json:"test_id"`
	TestName     string    `json:"test_name"`
	StudentID    uuid.UUID `json:"student_id"`
	StartedAt    time.Time `json:"started_at"`
	DurationMins int       `json:"duration_mins"`
}

type AttemptSubmittedEvent struct {
	AttemptID   uuid.UUID `json:"attempt_id"`
	TestID      uuid.UUID `json:"test_id"`
	StudentID   uuid.UUID `json:"student_id"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	TotalScore  float64   `json:"total_score"`
	MaxScore    float64   `json:"max_score"`
}

type QuestionsImportedEvent struct {
	ImportedBy    uuid.UUID `json:"imported_by"`
	QuestionCount int       `json:"question_count"`
	Subjects      []string  `json:"subjects,omitempty"`
}

// Event factory functions

func newEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

func NewTestCreatedEvent(data TestCreatedEvent) *Event {
	return newEvent(EventTestCreated, data)
}

func NewAttemptStartedEvent(data AttemptStartedEvent) *Event {
	return newEvent(EventAttemptStarted, data)
}

func NewAttemptSubmittedEvent(data AttemptSubmittedEvent) *Event {
	return newEvent(EventAttemptSubmitted, data)
}

func NewQuestionsImportedEvent(data QuestionsImportedEvent) *Event {
	return newEvent(EventQuestionsImported, data)
}

// GenerateEventID returns a fresh, time-sortable event id
func GenerateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
