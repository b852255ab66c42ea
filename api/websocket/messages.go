package websocket

import (
	"encoding/json"
	"time"

	"github.com/OldStager01/car-price-predictor/pkg/models"
)

type MessageType string

const (
	MessageTypeBatchStarted        MessageType = "batch_started"
	MessageTypeBatchRow            MessageType = "batch_row"
	MessageTypeBatchCompleted      MessageType = "batch_completed"
	MessageTypePredictionCompleted MessageType = "prediction_completed"
	MessageTypePredictionFailed    MessageType = "prediction_failed"
	MessageTypeOracleState         MessageType = "oracle_state"
	MessageTypeSubscription        MessageType = "subscription_update"
	MessageTypeError               MessageType = "error"
)

type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	RunID     string      `json:"run_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func NewMessage(msgType MessageType, runID string, data interface{}) *OutgoingMessage {
	return &OutgoingMessage{
		Type:      msgType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewSubscriptionMessage(action, runID string) *OutgoingMessage {
	return NewMessage(MessageTypeSubscription, runID, map[string]string{"action": action})
}

// FromEvent converts a bus event; nil means the event is not streamed.
func FromEvent(event *models.Event) *OutgoingMessage {
	msgType := mapEventType(event.Type)
	if msgType == "" {
		return nil
	}

	return &OutgoingMessage{
		Type:      msgType,
		RunID:     event.RunID,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	}
}

func (m *OutgoingMessage) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}

func mapEventType(eventType models.EventType) MessageType {
	switch eventType {
	case models.EventTypeBatchStarted:
		return MessageTypeBatchStarted
	case models.EventTypeBatchRowScored:
		return MessageTypeBatchRow
	case models.EventTypeBatchCompleted:
		return MessageTypeBatchCompleted
	case models.EventTypePredictionCompleted:
		return MessageTypePredictionCompleted
	case models.EventTypePredictionFailed:
		return MessageTypePredictionFailed
	case models.EventTypeOracleStateChanged:
		return MessageTypeOracleState
	case models.EventTypeError:
		return MessageTypeError
	default:
		return ""
	}
}
