package export

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GoSim-25-26J-441/contact-calibration/internal/calibration"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/models"
)

// schema.sql creates the run, progress and comparison tables.
//
//go:embed schema.sql
var schemaSQL string

// ErrRunNotStored is returned when a run id has no row in the store
var ErrRunNotStored = errors.New("run not stored")

// SQLiteStore keeps calibration runs, their progress history and comparison rows in a
// sqlite database. It is safe for concurrent use.
type SQLiteStore struct {
	*sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db}, nil
}

// SaveRun inserts or replaces the run row
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.Run) error {
	var best sql.NullFloat64
	resultJSON := ""
	if run.Result != nil {
		best = sql.NullFloat64{Float64: run.Result.BestValue, Valid: true}
		data, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("failed to encode run result: %w", err)
		}
		resultJSON = string(data)
	}
	query := `
		INSERT INTO calibration_runs (id, status, config_yaml, start_time_ns, end_time_ns, best_objective, result_json, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			config_yaml = excluded.config_yaml,
			start_time_ns = excluded.start_time_ns,
			end_time_ns = excluded.end_time_ns,
			best_objective = excluded.best_objective,
			result_json = excluded.result_json,
			error = excluded.error,
			updated_at = UNIXEPOCH('subsec')
	`
	_, err := s.ExecContext(ctx, query, run.ID, string(run.Status), run.ConfigYAML,
		unixNano(run.StartTime), unixNano(run.EndTime), best, resultJSON, run.Error)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run row
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	row := s.QueryRowContext(ctx, `
		SELECT id, status, config_yaml, start_time_ns, end_time_ns, result_json, error
		FROM calibration_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotStored, runID)
	}
	return run, err
}

// ListRuns returns every stored run, oldest first
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]*models.Run, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, status, config_yaml, start_time_ns, end_time_ns, result_json, error
		FROM calibration_runs ORDER BY start_time_ns, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()
	var out []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.Run, error) {
	var (
		run                  models.Run
		status, resultJSON   string
		startNanos, endNanos int64
	)
	if err := sc.Scan(&run.ID, &status, &run.ConfigYAML, &startNanos, &endNanos, &resultJSON, &run.Error); err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.StartTime = fromUnixNano(startNanos)
	run.EndTime = fromUnixNano(endNanos)
	if !run.StartTime.IsZero() && !run.EndTime.IsZero() {
		run.Duration = run.EndTime.Sub(run.StartTime)
	}
	if resultJSON != "" {
		run.Result = &models.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON), run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// RecordProgress stores one iteration record for runID
func (s *SQLiteStore) RecordProgress(ctx context.Context, runID string, rec calibration.ProgressRecord) error {
	vars, err := json.Marshal(rec.BestVariables)
	if err != nil {
		return fmt.Errorf("failed to encode best variables: %w", err)
	}
	_, err = s.ExecContext(ctx, `
		INSERT OR REPLACE INTO calibration_progress
			(run_id, iteration, best_objective, population_best, population_mean, population_std,
			 failures, sigma, evaluations, elapsed_ns, best_variables_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Iteration, rec.BestValue, rec.PopulationBest, rec.PopulationMean, rec.PopulationStd,
		rec.Failures, rec.Sigma, rec.Evaluations, int64(rec.Elapsed), string(vars))
	if err != nil {
		return fmt.Errorf("failed to record progress for run %s: %w", runID, err)
	}
	return nil
}

// LoadProgress returns the stored records of runID in iteration order
func (s *SQLiteStore) LoadProgress(ctx context.Context, runID string) ([]calibration.ProgressRecord, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT iteration, best_objective, population_best, population_mean, population_std,
		       failures, sigma, evaluations, elapsed_ns, best_variables_json
		FROM calibration_progress WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	defer rows.Close()
	var out []calibration.ProgressRecord
	for rows.Next() {
		var (
			rec     calibration.ProgressRecord
			elapsed int64
			vars    string
		)
		if err := rows.Scan(&rec.Iteration, &rec.BestValue, &rec.PopulationBest, &rec.PopulationMean,
			&rec.PopulationStd, &rec.Failures, &rec.Sigma, &rec.Evaluations, &elapsed, &vars); err != nil {
			return nil, err
		}
		rec.Elapsed = time.Duration(elapsed)
		if err := json.Unmarshal([]byte(vars), &rec.BestVariables); err != nil {
			return nil, fmt.Errorf("failed to decode best variables: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveComparison replaces the comparison rows of runID in one transaction
func (s *SQLiteStore) SaveComparison(ctx context.Context, runID string, rows []calibration.ComparisonRow) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM calibration_comparison WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear comparison: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO calibration_comparison (run_id, row_index, time, simulation, experiment)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare comparison insert: %w", err)
	}
	defer stmt.Close()
	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, i, r.Time, r.Simulated, r.Reference); err != nil {
			return fmt.Errorf("failed to insert comparison row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadComparison returns the stored comparison rows of runID
func (s *SQLiteStore) LoadComparison(ctx context.Context, runID string) ([]calibration.ComparisonRow, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT time, simulation, experiment FROM calibration_comparison
		WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comparison: %w", err)
	}
	defer rows.Close()
	var out []calibration.ComparisonRow
	for rows.Next() {
		var r calibration.ComparisonRow
		if err := rows.Scan(&r.Time, &r.Simulated, &r.Reference); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ComparisonSink returns a sink that stores rows under runID
func (s *SQLiteStore) ComparisonSink(runID string) calibration.ComparisonSink {
	return calibration.ComparisonSinkFunc(func(ctx context.Context, rows []calibration.ComparisonRow) error {
		return s.SaveComparison(ctx, runID, rows)
	})
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
