package models

// BatchRow is one input row of a batch: the scoring columns plus any
// passthrough columns, all as raw strings.
type BatchRow struct {
	Values map[string]string `json:"values"`
}

func NewBatchRow(values map[string]string) BatchRow {
	return BatchRow{Values: values}
}

// Clone returns a copy whose map can be modified freely.
func (r BatchRow) Clone() map[string]string {
	out := make(map[string]string, len(r.Values)+1)
	for k, v := range r.Values {
		out[k] = v
	}
	return out
}

type RowErrorKind string

const (
	RowErrorValidation RowErrorKind = "validation"
	RowErrorInference  RowErrorKind = "inference"
	RowErrorCanceled   RowErrorKind = "canceled"
)

// RowError marks a batch row that could not be scored.
type RowError struct {
	Kind    RowErrorKind `json:"kind"`
	Field   string       `json:"field,omitempty"`
	Message string       `json:"message"`
}

// ScoredRow is an input row augmented with its prediction.
type ScoredRow struct {
	Index  int               `json:"index"`
	Values map[string]string `json:"values"`
	Error  *RowError         `json:"error,omitempty"`
}

func (r ScoredRow) OK() bool {
	return r.Error == nil
}

// PredictedValue returns the formatted prediction, if any.
func (r ScoredRow) PredictedValue() (string, bool) {
	v, ok := r.Values[ColumnPredictedValue]
	return v, ok
}

type BatchResult struct {
	ID        string      `json:"id"`
	Rows      []ScoredRow `json:"rows"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// Tally recomputes Succeeded and Failed from the rows.
func (b *BatchResult) Tally() {
	b.Succeeded, b.Failed = 0, 0
	for _, row := range b.Rows {
		if row.OK() {
			b.Succeeded++
		} else {
			b.Failed++
		}
	}
}
