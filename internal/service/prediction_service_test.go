package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/car-price-predictor/internal/events"
	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/internal/metrics"
	"github.com/OldStager01/car-price-predictor/internal/oracle"
	"github.com/OldStager01/car-price-predictor/internal/predictor"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

func newTestService(t *testing.T, o oracle.Oracle, cfg Config) (*PredictionService, <-chan *models.Event, *metrics.Metrics) {
	t.Helper()
	bus := events.NewEventBus(100)
	t.Cleanup(bus.Close)
	ch := bus.SubscribeAll()
	m := metrics.New()
	return NewPredictionService(o, events.NewPublisher(bus), m, cfg), ch, m
}

func drain(ch <-chan *models.Event) []*models.Event {
	var out []*models.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func car() models.CarAttributes {
	return models.CarAttributes{
		Brand: "Honda", Fuel: models.FuelGasoline, Gear: models.GearAuto, EngineSize: 1.5, YearModel: 2020,
	}
}

func TestPredictionService_Predict(t *testing.T) {
	mock := oracle.NewMockOracle(nil)
	svc, ch, m := newTestService(t, mock, Config{Horizon: 4, Workers: 2})

	ctx := WithClientID(logger.WithTraceID(context.Background(), "trace-1"), "dealer")
	run, err := svc.Predict(ctx, car(), svc.DefaultHorizon())
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	assert.Equal(t, "trace-1", run.TraceID)
	assert.Equal(t, "dealer", run.ClientID)
	assert.Equal(t, "honda", run.Request.Brand)
	require.Len(t, run.Results, 4)
	assert.Equal(t, 2025, run.Results[0].Year)

	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventTypePredictionCompleted, evs[0].Type)
	assert.Equal(t, run.ID, evs[0].RunID)
	assert.Contains(t, m.Render(), `predictor_predictions_total{kind="single"} 1`)
}

func TestPredictionService_PredictFailure(t *testing.T) {
	mock := oracle.NewMockOracle(nil)
	mock.SetShouldFail(true, oracle.ErrUnavailable)
	svc, ch, m := newTestService(t, mock, Config{Horizon: 4})

	run, err := svc.Predict(context.Background(), car(), 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, predictor.ErrInference)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.Empty(t, run.Results)

	evs := drain(ch)
	require.Len(t, evs, 1)
	assert.Equal(t, models.EventTypePredictionFailed, evs[0].Type)
	assert.Contains(t, m.Render(), `reason="inference"`)
}

func TestPredictionService_PredictBatch(t *testing.T) {
	svc, ch, m := newTestService(t, oracle.NewMockOracle(nil), Config{MaxBatchRows: 10, PublishRows: true})

	rows := []models.BatchRow{
		models.NewBatchRow(car().Columns()),
		models.NewBatchRow(map[string]string{"brand": "fiat"}),
	}
	runID := models.NewUUID()

	result, run, err := svc.PredictBatch(context.Background(), runID, rows)
	require.NoError(t, err)
	assert.Equal(t, runID, result.ID)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, models.RunStatusPartial, run.Status)
	assert.Equal(t, 2, run.Rows)
	assert.Equal(t, 1, run.Failed)

	var types []models.EventType
	for _, e := range drain(ch) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []models.EventType{
		models.EventTypeBatchStarted,
		models.EventTypeBatchRowScored,
		models.EventTypeBatchRowScored,
		models.EventTypeBatchCompleted,
	}, types)

	out := m.Render()
	assert.Contains(t, out, `predictor_batch_rows_total{outcome="failed"} 1`)
	assert.Contains(t, out, `predictor_batch_rows_total{outcome="scored"} 1`)
	assert.Contains(t, out, "predictor_active_batches 0")
}

func TestPredictionService_PredictBatchStatus(t *testing.T) {
	svc, _, _ := newTestService(t, oracle.NewMockOracle(nil), Config{})

	_, run, err := svc.PredictBatch(context.Background(), "", []models.BatchRow{models.NewBatchRow(car().Columns())})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
	assert.True(t, models.IsUUID(run.ID))

	_, run, err = svc.PredictBatch(context.Background(), "", []models.BatchRow{models.NewBatchRow(nil)})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)

	_, run, err = svc.PredictBatch(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSucceeded, run.Status)
}

func TestPredictionService_PredictBatchRejected(t *testing.T) {
	mock := oracle.NewMockOracle(nil)
	svc, ch, _ := newTestService(t, mock, Config{MaxBatchRows: 1})

	rows := []models.BatchRow{models.NewBatchRow(car().Columns()), models.NewBatchRow(car().Columns())}
	_, _, err := svc.PredictBatch(context.Background(), "", rows)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, _, err = svc.PredictBatch(context.Background(), "not-a-uuid", rows[:1])
	assert.ErrorIs(t, err, predictor.ErrValidation)

	assert.Zero(t, mock.CallCount())
	assert.Empty(t, drain(ch))
}

func TestPredictionService_PredictBatchTimeout(t *testing.T) {
	slow := oracle.NewMockOracle(nil)
	slow.FailWhen(func(models.CarAttributes) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	})
	svc, _, _ := newTestService(t, slow, Config{BatchTimeout: 10 * time.Millisecond})

	rows := make([]models.BatchRow, 5)
	for i := range rows {
		rows[i] = models.NewBatchRow(car().Columns())
	}

	result, run, err := svc.PredictBatch(context.Background(), "", rows)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, models.RunStatusCanceled, run.Status)
	assert.Len(t, result.Rows, 5)
	assert.Equal(t, 1, slow.CallCount())
}

func TestPredictionService_NilPublisher(t *testing.T) {
	svc := NewPredictionService(oracle.NewMockOracle(nil), nil, metrics.New(), Config{Horizon: 2, PublishRows: true})
	ctx := logger.WithTraceID(context.Background(), "trace-1")

	require.NotPanics(t, func() {
		run, err := svc.Predict(ctx, car(), 2)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSucceeded, run.Status)

		_, run, err = svc.PredictBatch(ctx, "", []models.BatchRow{models.NewBatchRow(car().Columns())})
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSucceeded, run.Status)
	})
}
