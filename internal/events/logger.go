package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

// RunStore persists finished prediction runs.
type RunStore interface {
	Save(ctx context.Context, run *models.PredictionRun) error
}

// EventLogger logs every event it receives and stores finished runs when a
// RunStore is configured.
type EventLogger struct {
	store     RunStore
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewEventLogger(store RunStore, eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		store:     store,
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	go l.run()
}

// Stop ends the logger and waits for the event in flight to finish.
func (l *EventLogger) Stop() {
	l.cancel()
	<-l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	entry := logger.WithFields(logger.Fields{
		"event_type": event.Type,
		"run_id":     event.RunID,
		"severity":   event.Severity,
		"trace_id":   event.TraceID,
	})

	switch {
	case event.Type == models.EventTypeBatchRowScored:
		entry.Debug(event.Message)
	case event.Severity == models.SeverityCritical:
		entry.Error(event.Message)
	case event.Severity == models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	switch event.Type {
	case models.EventTypePredictionCompleted,
		models.EventTypePredictionFailed,
		models.EventTypeBatchCompleted:
		l.persistRun(event)
	}
}

func (l *EventLogger) persistRun(event *models.Event) {
	if l.store == nil {
		return
	}
	run, ok := event.Data.(*models.PredictionRun)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(l.ctx, 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, run); err != nil {
		logger.WithRun(run.ID).WithError(err).Error("Failed to persist prediction run")
	}
}

func (l *EventLogger) LogToJSON(event *models.Event) string {
	data, _ := json.Marshal(event)
	return string(data)
}
