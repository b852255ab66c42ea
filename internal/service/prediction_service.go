package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/events"
	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/internal/metrics"
	"github.com/OldStager01/car-price-predictor/internal/oracle"
	"github.com/OldStager01/car-price-predictor/internal/predictor"
	"github.com/OldStager01/car-price-predictor/pkg/models"
	"github.com/OldStager01/car-price-predictor/pkg/validation"
)

var ErrBatchTooLarge = errors.New("batch exceeds maximum row count")

type Config struct {
	Horizon      int
	Workers      int
	MaxBatchRows int
	BatchTimeout time.Duration
	PublishRows  bool
}

// PredictionService runs predictions on behalf of API clients: it assigns
// run IDs, records metrics and publishes lifecycle events.
type PredictionService struct {
	oracle    oracle.Oracle
	publisher *events.Publisher
	metrics   *metrics.Metrics
	config    Config
}

func NewPredictionService(o oracle.Oracle, publisher *events.Publisher, m *metrics.Metrics, cfg Config) *PredictionService {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if m == nil {
		m = metrics.New()
	}
	return &PredictionService{
		oracle:    o,
		publisher: publisher,
		metrics:   m,
		config:    cfg,
	}
}

func (s *PredictionService) DefaultHorizon() int {
	return s.config.Horizon
}

func (s *PredictionService) MaxBatchRows() int {
	return s.config.MaxBatchRows
}

// Predict prices one car over horizon model years. The returned run is
// populated even when err is non-nil.
func (s *PredictionService) Predict(ctx context.Context, req models.CarAttributes, horizon int) (*models.PredictionRun, error) {
	run := s.newRun(ctx, models.RunKindSingle)
	ctx = logger.WithRunID(ctx, run.ID)

	req.Brand = validation.NormalizeBrand(req.Brand)
	run.Request = &req
	run.Horizon = horizon
	run.Rows = 1

	p := predictor.New(s.oracle, predictor.Options{Workers: s.config.Workers})
	results, err := p.Predict(ctx, req, horizon)
	run.FinishedAt = time.Now()

	pub := s.publisher.WithTraceID(run.TraceID)
	if err != nil {
		run.Status = statusFor(ctx, err)
		run.Failed = 1
		run.Error = err.Error()
		s.metrics.IncPredictionErrors(string(run.Kind), reason(err))
		logger.FromContext(ctx).WithError(err).Warn("Prediction failed")
		pub.PredictionFailed(run)
		return run, err
	}

	run.Status = models.RunStatusSucceeded
	run.Results = results
	s.metrics.IncPredictions(string(run.Kind))
	logger.FromContext(ctx).WithField("duration_ms", run.Duration().Milliseconds()).Debug("Prediction completed")
	pub.PredictionCompleted(run)

	return run, nil
}

// PredictBatch scores rows under runID, generating one when empty. Row
// failures are reported on the rows; err is non-nil only when the batch was
// rejected or cut short.
func (s *PredictionService) PredictBatch(ctx context.Context, runID string, rows []models.BatchRow) (*models.BatchResult, *models.PredictionRun, error) {
	if s.config.MaxBatchRows > 0 && len(rows) > s.config.MaxBatchRows {
		return nil, nil, fmt.Errorf("%w: %d rows, limit %d", ErrBatchTooLarge, len(rows), s.config.MaxBatchRows)
	}

	run := s.newRun(ctx, models.RunKindBatch)
	if runID != "" {
		if !models.IsUUID(runID) {
			return nil, nil, &predictor.ValidationError{Field: "run_id", Value: runID, Reason: "must be a UUID"}
		}
		run.ID = runID
	}
	run.Rows = len(rows)
	ctx = logger.WithRunID(ctx, run.ID)

	if s.config.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.BatchTimeout)
		defer cancel()
	}

	pub := s.publisher.WithTraceID(run.TraceID)
	pub.BatchStarted(run.ID, len(rows))
	s.metrics.BatchStarted()
	defer s.metrics.BatchFinished()

	opts := predictor.Options{Workers: s.config.Workers}
	if s.config.PublishRows {
		opts.OnRowScored = func(progress models.RowProgress) {
			pub.BatchRowScored(run.ID, progress)
		}
	}

	result, err := predictor.New(s.oracle, opts).PredictBatch(ctx, rows)
	result.ID = run.ID
	run.FinishedAt = time.Now()
	run.Failed = result.Failed

	switch {
	case err != nil:
		run.Status = models.RunStatusCanceled
		run.Error = err.Error()
		s.metrics.IncPredictionErrors(string(run.Kind), reason(err))
	case result.Failed == 0:
		run.Status = models.RunStatusSucceeded
	case result.Succeeded == 0:
		run.Status = models.RunStatusFailed
	default:
		run.Status = models.RunStatusPartial
	}

	s.metrics.IncPredictions(string(run.Kind))
	s.metrics.AddBatchRows(result.Succeeded, result.Failed)
	logger.FromContext(ctx).WithFields(logger.Fields{
		"rows":        run.Rows,
		"failed":      run.Failed,
		"status":      run.Status,
		"duration_ms": run.Duration().Milliseconds(),
	}).Info("Batch finished")
	pub.BatchCompleted(run)

	return result, run, err
}

func (s *PredictionService) HealthCheck(ctx context.Context) error {
	return s.oracle.HealthCheck(ctx)
}

func (s *PredictionService) newRun(ctx context.Context, kind models.RunKind) *models.PredictionRun {
	run := models.NewPredictionRun(kind)
	run.TraceID = logger.TraceIDFromContext(ctx)
	run.ClientID = ClientIDFromContext(ctx)
	return run
}

func statusFor(ctx context.Context, err error) models.RunStatus {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return models.RunStatusCanceled
	}
	return models.RunStatusFailed
}

func reason(err error) string {
	switch {
	case errors.Is(err, predictor.ErrValidation):
		return "validation"
	case errors.Is(err, predictor.ErrInference):
		return "inference"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
