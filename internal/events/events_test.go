package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/car-price-predictor/pkg/models"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	completed := bus.Subscribe(models.EventTypePredictionCompleted)
	all := bus.SubscribeAll()

	NewPublisher(bus).WithTraceID("trace-1").BatchStarted("run-1", 3)

	select {
	case e := <-all:
		assert.Equal(t, models.EventTypeBatchStarted, e.Type)
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, "trace-1", e.TraceID)
	case <-time.After(time.Second):
		t.Fatal("expected event on SubscribeAll channel")
	}

	select {
	case e := <-completed:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	ch := bus.Subscribe(models.EventTypeError)
	pub := NewPublisher(bus)
	pub.Error("run-1", "first", errors.New("a"))
	pub.Error("run-1", "second", errors.New("b"))

	e := <-ch
	assert.Equal(t, "first", e.Message)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %s", e.Message)
	default:
	}
}

func TestEventBus_CloseIsIdempotent(t *testing.T) {
	bus := NewEventBus(1)
	ch := bus.SubscribeAll()
	single := bus.Subscribe(models.EventTypeError)

	bus.Close()
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)
	_, ok = <-single
	assert.False(t, ok)

	NewPublisher(bus).Error("", "after close", errors.New("x"))
}

func TestPublisher_Severities(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()
	ch := bus.SubscribeAll()
	pub := NewPublisher(bus)

	partial := models.NewPredictionRun(models.RunKindBatch)
	partial.Status = models.RunStatusPartial
	pub.BatchCompleted(partial)
	pub.OracleStateChanged("closed", "open")
	pub.BatchRowScored("run-1", models.RowProgress{Row: models.ScoredRow{Error: &models.RowError{Kind: models.RowErrorValidation}}})

	assert.Equal(t, models.SeverityWarning, (<-ch).Severity)
	assert.Equal(t, models.SeverityCritical, (<-ch).Severity)
	assert.Equal(t, models.SeverityWarning, (<-ch).Severity)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var pub *Publisher
	assert.NotPanics(t, func() {
		pub.BatchStarted("run-1", 1)
	})
}

func TestPublisher_NilWithTraceID(t *testing.T) {
	var pub *Publisher
	run := models.NewPredictionRun(models.RunKindBatch)

	assert.NotPanics(t, func() {
		traced := pub.WithTraceID("trace-1")
		assert.Nil(t, traced)
		traced.PredictionCompleted(run)
		traced.BatchCompleted(run)
	})
}

func TestPublisher_WithTraceIDStampsEvents(t *testing.T) {
	bus := NewEventBus(10)
	ch := bus.SubscribeAll()
	pub := NewPublisher(bus).WithTraceID("trace-1")

	pub.BatchStarted("run-1", 3)

	event := <-ch
	assert.Equal(t, "trace-1", event.TraceID)
	assert.Equal(t, "run-1", event.RunID)
}

type recordingStore struct {
	mu   sync.Mutex
	runs []*models.PredictionRun
}

func (s *recordingStore) Save(_ context.Context, run *models.PredictionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func TestEventLogger_PersistsFinishedRuns(t *testing.T) {
	bus := NewEventBus(10)
	store := &recordingStore{}
	l := NewEventLogger(store, bus.SubscribeAll())
	l.Start()

	pub := NewPublisher(bus)
	pub.BatchStarted("run-1", 2)
	pub.PredictionCompleted(models.NewPredictionRun(models.RunKindSingle))
	pub.BatchCompleted(models.NewPredictionRun(models.RunKindBatch))

	require.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 10*time.Millisecond)

	l.Stop()
	bus.Close()
}
