package simulator

import (
	"math"
	"strings"

	"github.com/OldStager01/car-price-predictor/internal/oracle"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

// Curve turns car attributes into a synthetic price.
type Curve interface {
	Price(req oracle.ScoreRequest) float64
	Name() string
}

var (
	CurveLinear       Curve = &LinearCurve{}
	CurveDepreciating Curve = &DepreciatingCurve{ReferenceYear: 2024, NewPrice: 95000, Rate: 0.11}
)

func ParseCurve(name string) Curve {
	switch name {
	case "depreciating":
		return CurveDepreciating
	default:
		return CurveLinear
	}
}

// LinearCurve matches the in-process mock oracle, so either can back a
// local run and produce the same numbers.
type LinearCurve struct{}

func (c *LinearCurve) Price(req oracle.ScoreRequest) float64 {
	return oracle.LinearPrice(toAttributes(req))
}

func (c *LinearCurve) Name() string {
	return "linear"
}

// DepreciatingCurve loses Rate of its value per year of age, scaled by
// engine size and a per-brand premium.
type DepreciatingCurve struct {
	ReferenceYear int
	NewPrice      float64
	Rate          float64
}

// brandPremium is relative to an average brand.
var brandPremium = map[string]float64{
	"bmw":             1.55,
	"mercedes-benz":   1.6,
	"audi":            1.45,
	"toyota":          1.15,
	"honda":           1.1,
	"vw - volkswagen": 1.0,
	"gm - chevrolet":  0.95,
	"ford":            0.92,
	"hyundai":         0.95,
	"fiat":            0.85,
	"renault":         0.82,
}

func (c *DepreciatingCurve) Price(req oracle.ScoreRequest) float64 {
	age := float64(c.ReferenceYear - req.YearModel)
	if age < 0 {
		age = 0
	}

	price := c.NewPrice * math.Pow(1-c.Rate, age)
	price *= 0.6 + 0.25*req.EngineSize

	if premium, ok := brandPremium[strings.ToLower(req.Brand)]; ok {
		price *= premium
	}
	if req.Fuel == string(models.FuelDiesel) {
		price *= 1.2
	}
	if req.Gear == string(models.GearAuto) {
		price *= 1.08
	}
	return price
}

func (c *DepreciatingCurve) Name() string {
	return "depreciating"
}

func toAttributes(req oracle.ScoreRequest) models.CarAttributes {
	return models.CarAttributes{
		Brand:      req.Brand,
		Fuel:       models.Fuel(req.Fuel),
		Gear:       models.Gear(req.Gear),
		EngineSize: req.EngineSize,
		YearModel:  req.YearModel,
	}
}
