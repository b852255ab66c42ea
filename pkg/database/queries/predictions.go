package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OldStager01/car-price-predictor/pkg/database"
	"github.com/OldStager01/car-price-predictor/pkg/models"
)

var ErrRunNotFound = errors.New("prediction run not found")

type PredictionRepository struct {
	db *sql.DB
}

func NewPredictionRepository(db *sql.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Save stores a finished run together with its multi-year results.
func (r *PredictionRepository) Save(ctx context.Context, run *models.PredictionRun) error {
	var request []byte
	if run.Request != nil {
		var err error
		if request, err = json.Marshal(run.Request); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	return database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO prediction_runs
				(id, kind, status, request, horizon, row_count, failed, error,
				 client_id, trace_id, started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			run.ID, run.Kind, run.Status, nullableJSON(request), run.Horizon, run.Rows,
			run.Failed, run.Error, run.ClientID, run.TraceID, run.StartedAt, run.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		for i, result := range run.Results {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO prediction_results (run_id, position, year, price) VALUES ($1, $2, $3, $4)`,
				run.ID, i, result.Year, result.Price,
			)
			if err != nil {
				return fmt.Errorf("failed to insert result %d: %w", i, err)
			}
		}
		return nil
	})
}

func (r *PredictionRepository) GetByID(ctx context.Context, id string) (*models.PredictionRun, error) {
	query := `
		SELECT id, kind, status, request, horizon, row_count, failed, error,
			   client_id, trace_id, started_at, finished_at
		FROM prediction_runs
		WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT year, price FROM prediction_results WHERE run_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var yp models.YearPrice
		if err := rows.Scan(&yp.Year, &yp.Price); err != nil {
			return nil, err
		}
		run.Results = append(run.Results, yp)
	}

	return run, rows.Err()
}

// GetRecent lists runs newest first, without their results.
func (r *PredictionRepository) GetRecent(ctx context.Context, limit int) ([]*models.PredictionRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, kind, status, request, horizon, row_count, failed, error,
			   client_id, trace_id, started_at, finished_at
		FROM prediction_runs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*models.PredictionRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*models.PredictionRun, error) {
	var (
		run     models.PredictionRun
		request []byte
	)
	err := s.Scan(
		&run.ID, &run.Kind, &run.Status, &request, &run.Horizon, &run.Rows,
		&run.Failed, &run.Error, &run.ClientID, &run.TraceID, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(request) > 0 {
		var attrs models.CarAttributes
		if err := json.Unmarshal(request, &attrs); err != nil {
			return nil, fmt.Errorf("failed to decode request of run %s: %w", run.ID, err)
		}
		run.Request = &attrs
	}

	return &run, nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
