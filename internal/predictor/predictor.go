package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/OldStager01/car-price-predictor/pkg/models"
	"github.com/OldStager01/car-price-predictor/pkg/validation"
)

const (
	// DefaultHorizon is the number of model years priced by Predict.
	DefaultHorizon = 4

	// DisplayYearOffset is added to the model year sent to the oracle to
	// obtain the year shown next to each price. It compensates for the way
	// years were encoded in the training data.
	DisplayYearOffset = 5
)

// Scorer is the part of the inference oracle the predictor needs.
type Scorer interface {
	Score(ctx context.Context, attrs models.CarAttributes) (float64, error)
}

type Options struct {
	// Workers bounds concurrent oracle calls. Values below 2 score strictly
	// sequentially.
	Workers int
	// OnRowScored is called once per finished batch row. Calls are
	// serialized.
	OnRowScored func(progress models.RowProgress)
}

type Predictor struct {
	scorer      Scorer
	workers     int
	onRowScored func(models.RowProgress)
}

func New(scorer Scorer, opts Options) *Predictor {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Predictor{
		scorer:      scorer,
		workers:     workers,
		onRowScored: opts.OnRowScored,
	}
}

// Predict prices req for horizon consecutive model years counting down from
// req.YearModel. It is all-or-nothing: the first failure aborts the call.
func Predict(ctx context.Context, scorer Scorer, req models.CarAttributes, horizon int) ([]models.YearPrice, error) {
	return New(scorer, Options{}).Predict(ctx, req, horizon)
}

// PredictBatch scores every row, isolating failures per row.
func PredictBatch(ctx context.Context, scorer Scorer, rows []models.BatchRow) (*models.BatchResult, error) {
	return New(scorer, Options{}).PredictBatch(ctx, rows)
}

func (p *Predictor) Predict(ctx context.Context, req models.CarAttributes, horizon int) ([]models.YearPrice, error) {
	if horizon < 0 {
		return nil, &ValidationError{Field: "horizon", Value: strconv.Itoa(horizon), Reason: "must not be negative"}
	}
	if err := validation.ValidateAttributes(req); err != nil {
		return nil, err
	}

	results := make([]models.YearPrice, horizon)
	if horizon == 0 {
		return results, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)

	forEach(runCtx, horizon, p.workers, func(ctx context.Context, i int) {
		if ctx.Err() != nil {
			return
		}

		derived := req.WithYearModel(req.YearModel - i)
		price, err := p.score(ctx, derived)
		if err != nil {
			once.Do(func() {
				firstErr = err
				cancel()
			})
			return
		}

		results[i] = models.YearPrice{
			Year:  derived.YearModel + DisplayYearOffset,
			Price: price,
		}
	})

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func (p *Predictor) PredictBatch(ctx context.Context, rows []models.BatchRow) (*models.BatchResult, error) {
	result := &models.BatchResult{
		ID:   models.NewUUID(),
		Rows: make([]models.ScoredRow, len(rows)),
	}
	if len(rows) == 0 {
		return result, nil
	}

	var (
		mu        sync.Mutex
		done      int
		processed = make([]bool, len(rows))
	)

	forEach(ctx, len(rows), p.workers, func(ctx context.Context, i int) {
		if ctx.Err() != nil {
			return
		}

		scored := p.scoreRow(ctx, i, rows[i])
		result.Rows[i] = scored

		mu.Lock()
		defer mu.Unlock()
		processed[i] = true
		done++
		if p.onRowScored != nil {
			p.onRowScored(models.RowProgress{Index: i, Done: done, Total: len(rows), Row: scored})
		}
	})

	for i, ok := range processed {
		if !ok {
			result.Rows[i] = models.ScoredRow{
				Index:  i,
				Values: rows[i].Clone(),
				Error:  &models.RowError{Kind: models.RowErrorCanceled, Message: "batch canceled before row was scored"},
			}
		}
	}
	result.Tally()

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Predictor) scoreRow(ctx context.Context, index int, row models.BatchRow) models.ScoredRow {
	scored := models.ScoredRow{Index: index, Values: row.Clone()}

	// The year is normalised even when a later column fails.
	attrs, err := validation.AttributesFromRow(row.Values)
	if attrs.YearModel != 0 {
		scored.Values[models.ColumnYearModel] = strconv.Itoa(attrs.YearModel)
	}
	if err != nil {
		rowErr := &models.RowError{Kind: models.RowErrorValidation, Message: err.Error()}
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			rowErr.Field = vErr.Field
		}
		scored.Error = rowErr
		return scored
	}

	price, err := p.score(ctx, attrs)
	if err != nil {
		kind := models.RowErrorInference
		if isContextErr(err) {
			kind = models.RowErrorCanceled
		}
		scored.Error = &models.RowError{Kind: kind, Message: err.Error()}
		return scored
	}

	scored.Values[models.ColumnPredictedValue] = models.FormatPrice(price)
	return scored
}

// score calls the oracle and rounds its estimate. Cancellation is returned
// unwrapped; every other failure becomes an InferenceError.
func (p *Predictor) score(ctx context.Context, attrs models.CarAttributes) (float64, error) {
	price, err := p.scorer.Score(ctx, attrs)
	if err != nil {
		// A call cut short by the caller is a cancellation whatever the
		// oracle reported.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &InferenceError{Request: attrs, Err: err}
	}

	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, &InferenceError{Request: attrs, Err: fmt.Errorf("%w: %v", ErrUnusableEstimate, price)}
	}

	return models.RoundPrice(price), nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
