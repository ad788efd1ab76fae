// Package store archives calibration runs in PostgreSQL so later readers can
// see which parameters were derived, when, and which stages failed.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/macrocal/internal/calibration"
)

// ErrNotFound is returned when no archived run matches
var ErrNotFound = errors.New("calibration run not found")

// Run is one archived calibration run
type Run struct {
	RunID         string                     `json:"run_id"`
	Country       string                     `json:"country"`
	Start         time.Time                  `json:"start"`
	End           time.Time                  `json:"end"`
	Params        *calibration.Params        `json:"params"`
	Outcomes      []calibration.StageOutcome `json:"outcomes"`
	ReferenceHash string                     `json:"reference_hash,omitempty"`
	Duration      time.Duration              `json:"duration_ns"`
	CreatedAt     time.Time                  `json:"created_at"`
}

// Repository handles calibration run persistence
// ⭐ SSOT: 캘리브레이션 결과 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new run repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS calibration;

	CREATE TABLE IF NOT EXISTS calibration.runs (
		run_id         UUID PRIMARY KEY,
		country        CHAR(3) NOT NULL,
		start_date     DATE NOT NULL,
		end_date       DATE NOT NULL,
		params         JSONB NOT NULL,
		outcomes       JSONB NOT NULL,
		reference_hash TEXT NOT NULL DEFAULT '',
		duration_ms    BIGINT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_runs_country_created
		ON calibration.runs (country, created_at DESC);
`

// EnsureSchema creates the calibration schema if it does not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create calibration schema: %w", err)
	}
	return nil
}

// SaveRun archives a calibration result. Runs with update disabled carry no
// parameters and are not archived.
func (r *Repository) SaveRun(ctx context.Context, result *calibration.Result, referenceHash string) error {
	if !result.Request.Update {
		return nil
	}

	paramsJSON, err := json.Marshal(result.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	outcomesJSON, err := json.Marshal(result.Outcomes)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO calibration.runs (
			run_id, country, start_date, end_date, params, outcomes, reference_hash, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		result.RunID, result.Request.Country, result.Request.Start, result.Request.End,
		paramsJSON, outcomesJSON, referenceHash, result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

const selectRun = `
	SELECT run_id::text, country, start_date, end_date, params, outcomes,
	       reference_hash, duration_ms, created_at
	FROM calibration.runs
`

// LatestRun returns the most recent archived run for country
func (r *Repository) LatestRun(ctx context.Context, country string) (*Run, error) {
	row := r.pool.QueryRow(ctx, selectRun+`
		WHERE country = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, country)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w for %s", ErrNotFound, country)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return run, nil
}

// ListRuns returns up to limit archived runs for country, newest first
func (r *Repository) ListRuns(ctx context.Context, country string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.pool.Query(ctx, selectRun+`
		WHERE country = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, country, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// PruneRuns deletes runs archived before cutoff and returns how many were removed
func (r *Repository) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM calibration.runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var (
		run          Run
		paramsJSON   []byte
		outcomesJSON []byte
		durationMs   int64
	)

	err := row.Scan(
		&run.RunID, &run.Country, &run.Start, &run.End, &paramsJSON, &outcomesJSON,
		&run.ReferenceHash, &durationMs, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Params = calibration.NewParams()
	if err := json.Unmarshal(paramsJSON, run.Params); err != nil {
		return nil, fmt.Errorf("failed to unmarshal params: %w", err)
	}
	if err := json.Unmarshal(outcomesJSON, &run.Outcomes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond

	return &run, nil
}
