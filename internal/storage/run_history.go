package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
)

// RunHistoryStorage defines the interface for persisting collection
// run reports. History is reporting only; resilience state (breakers,
// health windows) is never persisted and rebuilds from scratch.
type RunHistoryStorage interface {
	// Store stores a finished run report
	Store(ctx context.Context, report *model.CollectionReport) error

	// Get retrieves a run report by run ID
	Get(ctx context.Context, runID string) (*model.CollectionReport, error)

	// List retrieves run reports newest first with pagination
	List(ctx context.Context, offset, limit int) ([]*model.CollectionReport, error)

	// Count returns the total number of stored runs
	Count(ctx context.Context) (int, error)

	// DeleteBefore deletes runs started before the specified time
	DeleteBefore(ctx context.Context, before time.Time) error

	// Close releases the underlying store
	Close() error
}

// SQLiteRunHistory implements RunHistoryStorage using SQLite
type SQLiteRunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteRunHistory opens (or creates) the run history database
func NewSQLiteRunHistory(logger *zap.Logger, dbPath string) (*SQLiteRunHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteRunHistory{
		logger: logger.Named("run-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteRunHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_history (
			run_id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			completed_at DATETIME NOT NULL,
			total_sources INTEGER NOT NULL,
			successful_sources INTEGER NOT NULL,
			failed_sources INTEGER NOT NULL,
			degraded_sources INTEGER NOT NULL,
			success_rate REAL NOT NULL,
			healthy INTEGER NOT NULL,
			tasks TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_run_history_started_at ON run_history(started_at);
		CREATE INDEX IF NOT EXISTS idx_run_history_healthy ON run_history(healthy);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements RunHistoryStorage.Store
func (s *SQLiteRunHistory) Store(ctx context.Context, report *model.CollectionReport) error {
	tasks, err := json.Marshal(report.Tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal task summaries: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_history (
			run_id, started_at, completed_at, total_sources,
			successful_sources, failed_sources, degraded_sources,
			success_rate, healthy, tasks
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.StartedAt,
		report.CompletedAt,
		report.TotalSources,
		report.SuccessfulSources,
		report.FailedSources,
		report.DegradedSources,
		report.SuccessRate,
		report.Healthy,
		string(tasks),
	)
	if err != nil {
		return fmt.Errorf("failed to store run report: %w", err)
	}
	return nil
}

// Get implements RunHistoryStorage.Get
func (s *SQLiteRunHistory) Get(ctx context.Context, runID string) (*model.CollectionReport, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			run_id, started_at, completed_at, total_sources,
			successful_sources, failed_sources, degraded_sources,
			success_rate, healthy, tasks
		FROM run_history
		WHERE run_id = ?`, runID)

	report, err := scanReport(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return report, nil
}

// List implements RunHistoryStorage.List
func (s *SQLiteRunHistory) List(ctx context.Context, offset, limit int) ([]*model.CollectionReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			run_id, started_at, completed_at, total_sources,
			successful_sources, failed_sources, degraded_sources,
			success_rate, healthy, tasks
		FROM run_history
		ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list run history: %w", err)
	}
	defer rows.Close()

	var reports []*model.CollectionReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return reports, nil
}

// Count implements RunHistoryStorage.Count
func (s *SQLiteRunHistory) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_history").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count run history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements RunHistoryStorage.DeleteBefore
func (s *SQLiteRunHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM run_history WHERE started_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete run history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old run history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteRunHistory) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanReport reads one run_history row back into a report
func scanReport(row scanner) (*model.CollectionReport, error) {
	var report model.CollectionReport
	var tasksJSON string

	err := row.Scan(
		&report.RunID,
		&report.StartedAt,
		&report.CompletedAt,
		&report.TotalSources,
		&report.SuccessfulSources,
		&report.FailedSources,
		&report.DegradedSources,
		&report.SuccessRate,
		&report.Healthy,
		&tasksJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run report: %w", err)
	}

	if err := json.Unmarshal([]byte(tasksJSON), &report.Tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task summaries: %w", err)
	}

	return &report, nil
}
