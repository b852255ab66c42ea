package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		expected float64
		text     string
	}{
		{"rounds down", 45123.454, 45123.45, "45123.45"},
		{"rounds up", 45123.456, 45123.46, "45123.46"},
		{"whole number", 20000, 20000, "20000.00"},
		{"zero", 0, 0, "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, RoundPrice(tt.in), 1e-9)
			assert.Equal(t, tt.text, FormatPrice(tt.in))
		})
	}
}

func TestCarAttributes_Columns(t *testing.T) {
	a := CarAttributes{Brand: "fiat", Fuel: FuelDiesel, Gear: GearManual, EngineSize: 1.6, YearModel: 2019}

	assert.Equal(t, map[string]string{
		ColumnBrand:      "fiat",
		ColumnFuel:       "diesel",
		ColumnGear:       "manual",
		ColumnEngineSize: "1.6",
		ColumnYearModel:  "2019",
	}, a.Columns())
	assert.Equal(t, "fiat/diesel/manual/1.6/2019", a.String())

	older := a.WithYearModel(2015)
	assert.Equal(t, 2015, older.YearModel)
	assert.Equal(t, 2019, a.YearModel, "original is untouched")
}

func TestFuelAndGear_IsValid(t *testing.T) {
	assert.True(t, FuelDiesel.IsValid())
	assert.True(t, FuelGasoline.IsValid())
	assert.False(t, Fuel("Diesel").IsValid())
	assert.True(t, GearAuto.IsValid())
	assert.False(t, Gear("cvt").IsValid())
}

func TestBatchRow_Clone(t *testing.T) {
	row := NewBatchRow(map[string]string{"brand": "fiat"})
	clone := row.Clone()
	clone["brand"] = "ford"
	clone[ColumnPredictedValue] = "1.00"

	assert.Equal(t, "fiat", row.Values["brand"])
	assert.NotContains(t, row.Values, ColumnPredictedValue)
}

func TestBatchResult_Tally(t *testing.T) {
	result := &BatchResult{Rows: []ScoredRow{
		{Index: 0, Values: map[string]string{ColumnPredictedValue: "1.00"}},
		{Index: 1, Error: &RowError{Kind: RowErrorValidation}},
		{Index: 2, Error: &RowError{Kind: RowErrorCanceled}},
	}}
	result.Tally()

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)

	v, ok := result.Rows[0].PredictedValue()
	assert.True(t, ok)
	assert.Equal(t, "1.00", v)
	_, ok = result.Rows[1].PredictedValue()
	assert.False(t, ok)
}

func TestPredictionRun_Duration(t *testing.T) {
	run := NewPredictionRun(RunKindSingle)
	assert.True(t, IsUUID(run.ID))
	assert.Zero(t, run.Duration())

	run.FinishedAt = run.StartedAt.Add(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, run.Duration())
}

func TestEvent_Builders(t *testing.T) {
	e := NewEvent(EventTypeBatchStarted, "run-1", "started").
		WithSeverity(SeverityWarning).
		WithData(map[string]int{"rows": 3}).
		WithTraceID("trace-1")

	assert.Equal(t, SeverityWarning, e.Severity)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, "trace-1", e.TraceID)
	assert.NotEmpty(t, e.ID)
}
