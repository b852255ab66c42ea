package models

import (
	"math"
	"strconv"
	"time"
)

// YearPrice is one entry of a multi-year prediction.
type YearPrice struct {
	Year  int     `json:"year"`
	Price float64 `json:"price"`
}

// RoundPrice rounds an estimate to two decimal places, half away from zero.
func RoundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatPrice renders a rounded price with exactly two decimals.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(RoundPrice(v), 'f', 2, 64)
}

type RunKind string

const (
	RunKindSingle RunKind = "single"
	RunKindBatch  RunKind = "batch"
)

type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// PredictionRun is the persisted record of one call into the predictor.
type PredictionRun struct {
	ID         string         `json:"id"`
	Kind       RunKind        `json:"kind"`
	Status     RunStatus      `json:"status"`
	Request    *CarAttributes `json:"request,omitempty"`
	Horizon    int            `json:"horizon,omitempty"`
	Rows       int            `json:"rows"`
	Failed     int            `json:"failed"`
	Error      string         `json:"error,omitempty"`
	ClientID   string         `json:"client_id,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []YearPrice    `json:"results,omitempty"`
}

func NewPredictionRun(kind RunKind) *PredictionRun {
	return &PredictionRun{
		ID:        NewUUID(),
		Kind:      kind,
		StartedAt: time.Now(),
	}
}

func (r *PredictionRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
