package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/OldStager01/car-price-predictor/internal/logger"
	"github.com/OldStager01/car-price-predictor/internal/resilience"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

// ResilientOracle guards an Oracle with a circuit breaker. Calls are never
// retried: a failed score is reported to the caller as is.
type ResilientOracle struct {
	oracle         Oracle
	circuitBreaker *resilience.CircuitBreaker
}

type ResilientOracleConfig struct {
	Oracle        Oracle
	MaxFailures   int
	Timeout       time.Duration
	HalfOpenMax   int
	OnStateChange func(name string, from, to resilience.State)
}

func NewResilientOracle(cfg ResilientOracleConfig) *ResilientOracle {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:          "oracle",
		MaxFailures:   cfg.MaxFailures,
		Timeout:       cfg.Timeout,
		HalfOpenMax:   cfg.HalfOpenMax,
		IsFailure:     countsAgainstBackend,
		OnStateChange: cfg.OnStateChange,
	})

	return &ResilientOracle{
		oracle:         cfg.Oracle,
		circuitBreaker: cb,
	}
}

// A rejected request says nothing about the backend's health.
func countsAgainstBackend(err error) bool {
	return !errors.Is(err, ErrRejected)
}

func (o *ResilientOracle) Score(ctx context.Context, attrs models.CarAttributes) (float64, error) {
	var price float64

	err := o.circuitBreaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		price, err = o.oracle.Score(ctx, attrs)
		return err
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			logger.FromContext(ctx).Debugf("Oracle call short-circuited for %s", attrs)
		}
		return 0, err
	}

	return price, nil
}

func (o *ResilientOracle) HealthCheck(ctx context.Context) error {
	return o.oracle.HealthCheck(ctx)
}

func (o *ResilientOracle) Close() error {
	return o.oracle.Close()
}

func (o *ResilientOracle) CircuitState() resilience.State {
	return o.circuitBreaker.State()
}

func (o *ResilientOracle) ResetCircuit() {
	o.circuitBreaker.Reset()
}
