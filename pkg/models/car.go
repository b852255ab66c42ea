package models

import (
	"strconv"
	"strings"
)

type Fuel string

const (
	FuelDiesel   Fuel = "diesel"
	FuelGasoline Fuel = "gasoline"
)

func (f Fuel) IsValid() bool {
	return f == FuelDiesel || f == FuelGasoline
}

type Gear string

const (
	GearAuto   Gear = "auto"
	GearManual Gear = "manual"
)

func (g Gear) IsValid() bool {
	return g == GearAuto || g == GearManual
}

// Column names of the scoring schema, as they appear in batch rows and on
// the oracle wire.
const (
	ColumnBrand          = "brand"
	ColumnFuel           = "fuel"
	ColumnGear           = "gear"
	ColumnEngineSize     = "engine_size"
	ColumnYearModel      = "year_model"
	ColumnPredictedValue = "predicted_value"
)

// ScoringColumns lists the only fields ever sent to the oracle.
var ScoringColumns = []string{
	ColumnBrand,
	ColumnFuel,
	ColumnGear,
	ColumnEngineSize,
	ColumnYearModel,
}

// CarAttributes is the input schema of the price model.
type CarAttributes struct {
	Brand      string  `json:"brand"`
	Fuel       Fuel    `json:"fuel"`
	Gear       Gear    `json:"gear"`
	EngineSize float64 `json:"engine_size"`
	YearModel  int     `json:"year_model"`
}

// WithYearModel returns a copy of a with only the model year replaced.
func (a CarAttributes) WithYearModel(year int) CarAttributes {
	a.YearModel = year
	return a
}

// Columns renders the attributes in batch-row form.
func (a CarAttributes) Columns() map[string]string {
	return map[string]string{
		ColumnBrand:      a.Brand,
		ColumnFuel:       string(a.Fuel),
		ColumnGear:       string(a.Gear),
		ColumnEngineSize: strconv.FormatFloat(a.EngineSize, 'f', -1, 64),
		ColumnYearModel:  strconv.Itoa(a.YearModel),
	}
}

func (a CarAttributes) String() string {
	var b strings.Builder
	b.WriteString(a.Brand)
	b.WriteString("/")
	b.WriteString(string(a.Fuel))
	b.WriteString("/")
	b.WriteString(string(a.Gear))
	b.WriteString("/")
	b.WriteString(strconv.FormatFloat(a.EngineSize, 'f', -1, 64))
	b.WriteString("/")
	b.WriteString(strconv.Itoa(a.YearModel))
	return b.String()
}
