package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/OldStager01/car-price-predictor/pkg/models"
)

var (
	ErrScoringFailed   = errors.New("scoring failed")
	ErrTimeout         = errors.New("scoring timeout")
	ErrRejected        = errors.New("oracle rejected attributes")
	ErrInvalidResponse = errors.New("invalid response from oracle")
	ErrUnavailable     = errors.New("oracle unavailable")
)

// Oracle is a trained regression model that prices a car.
type Oracle interface {
	// Score returns the model's price estimate for attrs
	Score(ctx context.Context, attrs models.CarAttributes) (float64, error)

	// HealthCheck verifies the oracle can be reached
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the oracle
	Close() error
}

// Observer receives the latency and outcome of every Score call.
type Observer func(latency time.Duration, err error)

type observedOracle struct {
	Oracle
	observe Observer
}

// WithObserver decorates o so that every Score call is reported to observe.
func WithObserver(o Oracle, observe Observer) Oracle {
	if observe == nil {
		return o
	}
	return &observedOracle{Oracle: o, observe: observe}
}

func (o *observedOracle) Score(ctx context.Context, attrs models.CarAttributes) (float64, error) {
	start := time.Now()
	price, err := o.Oracle.Score(ctx, attrs)
	o.observe(time.Since(start), err)
	return price, err
}
