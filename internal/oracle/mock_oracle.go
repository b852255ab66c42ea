package oracle

import (
	"context"
	"sync"

	"github.com/OldStager01/car-price-predictor/pkg/models"
)

// PriceFunc computes a deterministic estimate for the mock oracle.
type PriceFunc func(attrs models.CarAttributes) float64

// LinearPrice is a rough FIPE-like price curve: newer, larger engines cost more.
func LinearPrice(attrs models.CarAttributes) float64 {
	price := 15000.0 + 9000.0*attrs.EngineSize + 1750.0*float64(attrs.YearModel-2000)
	if attrs.Fuel == models.FuelDiesel {
		price *= 1.18
	}
	if attrs.Gear == models.GearAuto {
		price *= 1.07
	}
	if price < 0 {
		return 0
	}
	return price
}

// MockOracle is an in-process Oracle with failure injection.
type MockOracle struct {
	mu           sync.Mutex
	price        PriceFunc
	shouldFail   bool
	failureError error
	failWhen     func(attrs models.CarAttributes) error
	calls        []models.CarAttributes
}

func NewMockOracle(price PriceFunc) *MockOracle {
	if price == nil {
		price = LinearPrice
	}
	return &MockOracle{price: price}
}

func (o *MockOracle) SetShouldFail(shouldFail bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shouldFail = shouldFail
	o.failureError = err
}

// FailWhen installs a per-request failure hook; a nil return lets the call through.
func (o *MockOracle) FailWhen(fn func(attrs models.CarAttributes) error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failWhen = fn
}

func (o *MockOracle) Score(ctx context.Context, attrs models.CarAttributes) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	o.mu.Lock()
	o.calls = append(o.calls, attrs)
	shouldFail, failureError, failWhen, price := o.shouldFail, o.failureError, o.failWhen, o.price
	o.mu.Unlock()

	if shouldFail {
		if failureError != nil {
			return 0, failureError
		}
		return 0, ErrScoringFailed
	}
	if failWhen != nil {
		if err := failWhen(attrs); err != nil {
			return 0, err
		}
	}

	return price(attrs), nil
}

// Calls returns every request scored so far, in arrival order.
func (o *MockOracle) Calls() []models.CarAttributes {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.CarAttributes, len(o.calls))
	copy(out, o.calls)
	return out
}

func (o *MockOracle) CallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

func (o *MockOracle) HealthCheck(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shouldFail {
		return ErrUnavailable
	}
	return nil
}

func (o *MockOracle) Close() error {
	return nil
}
