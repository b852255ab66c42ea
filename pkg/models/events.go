package models

import "time"

type EventType string

const (
	EventTypePredictionCompleted EventType = "prediction_completed"
	EventTypePredictionFailed    EventType = "prediction_failed"
	EventTypeBatchStarted        EventType = "batch_started"
	EventTypeBatchRowScored      EventType = "batch_row_scored"
	EventTypeBatchCompleted      EventType = "batch_completed"
	EventTypeOracleStateChanged  EventType = "oracle_state_changed"
	EventTypeError               EventType = "error"
)

type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityCritical EventSeverity = "critical"
)

// Event represents an internal system event
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Severity  EventSeverity `json:"severity"`
	RunID     string        `json:"run_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message"`
	Data      interface{}   `json:"data,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, runID, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		RunID:     runID,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity EventSeverity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}

// RowProgress is the payload of EventTypeBatchRowScored.
type RowProgress struct {
	Index int       `json:"index"`
	Done  int       `json:"done"`
	Total int       `json:"total"`
	Row   ScoredRow `json:"row"`
}
