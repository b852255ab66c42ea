package events

import (
	"fmt"

	"github.com/OldStager01/car-price-predictor/pkg/models"
)

type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

// WithTraceID returns a copy that stamps traceID on every event. A nil
// Publisher stays nil.
func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) PredictionCompleted(run *models.PredictionRun) {
	msg := fmt.Sprintf("Predicted %d years", len(run.Results))
	event := models.NewEvent(models.EventTypePredictionCompleted, run.ID, msg).
		WithData(run)
	p.publish(event)
}

func (p *Publisher) PredictionFailed(run *models.PredictionRun) {
	event := models.NewEvent(models.EventTypePredictionFailed, run.ID, "Prediction failed: "+run.Error).
		WithSeverity(models.SeverityWarning).
		WithData(run)
	p.publish(event)
}

func (p *Publisher) BatchStarted(runID string, rows int) {
	msg := fmt.Sprintf("Batch started with %d rows", rows)
	event := models.NewEvent(models.EventTypeBatchStarted, runID, msg).
		WithData(map[string]interface{}{
			"rows": rows,
		})
	p.publish(event)
}

func (p *Publisher) BatchRowScored(runID string, progress models.RowProgress) {
	msg := fmt.Sprintf("Row %d scored (%d/%d)", progress.Index, progress.Done, progress.Total)
	event := models.NewEvent(models.EventTypeBatchRowScored, runID, msg).
		WithData(progress)

	if !progress.Row.OK() {
		event.WithSeverity(models.SeverityWarning)
	}

	p.publish(event)
}

func (p *Publisher) BatchCompleted(run *models.PredictionRun) {
	msg := fmt.Sprintf("Batch %s: %d rows, %d failed", run.Status, run.Rows, run.Failed)
	event := models.NewEvent(models.EventTypeBatchCompleted, run.ID, msg).
		WithData(run)

	switch run.Status {
	case models.RunStatusPartial, models.RunStatusCanceled:
		event.WithSeverity(models.SeverityWarning)
	case models.RunStatusFailed:
		event.WithSeverity(models.SeverityCritical)
	}

	p.publish(event)
}

func (p *Publisher) OracleStateChanged(from, to string) {
	msg := fmt.Sprintf("Oracle circuit %s -> %s", from, to)
	event := models.NewEvent(models.EventTypeOracleStateChanged, "", msg).
		WithData(map[string]interface{}{
			"from": from,
			"to":   to,
		})

	if to == "open" {
		event.WithSeverity(models.SeverityCritical)
	}

	p.publish(event)
}

func (p *Publisher) Error(runID string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, runID, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
