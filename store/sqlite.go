package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCoverageStore is a SQLite-backed CoverageStore.
//
// Designed for zero-setup local runs: a single file database, auto-migrated
// on first use, with WAL mode enabled for concurrent readers while reports
// are still being exported.
type SQLiteCoverageStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteCoverageStore opens (creating if necessary) a SQLite database at
// path and ensures its schema exists. Use ":memory:" for an ephemeral,
// process-local database.
func NewSQLiteCoverageStore(path string) (*SQLiteCoverageStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %q: %w", pragma, err)
		}
	}

	s := &SQLiteCoverageStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteCoverageStore) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS coverage_reports (
			iteration_id INTEGER PRIMARY KEY,
			captured_at TIMESTAMP NOT NULL,
			node_count INTEGER NOT NULL,
			call_site_frequencies TEXT NOT NULL,
			coverage_edges TEXT NOT NULL
		)
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Export persists report, overwriting any existing report for the same
// IterationID.
func (s *SQLiteCoverageStore) Export(ctx context.Context, report CoverageReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sqlite store is closed")
	}

	freqJSON, err := json.Marshal(report.CallSiteFrequencies)
	if err != nil {
		return fmt.Errorf("marshal call site frequencies: %w", err)
	}
	edgesJSON, err := json.Marshal(report.CoverageEdges)
	if err != nil {
		return fmt.Errorf("marshal coverage edges: %w", err)
	}

	const upsert = `
		INSERT INTO coverage_reports (iteration_id, captured_at, node_count, call_site_frequencies, coverage_edges)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(iteration_id) DO UPDATE SET
			captured_at = excluded.captured_at,
			node_count = excluded.node_count,
			call_site_frequencies = excluded.call_site_frequencies,
			coverage_edges = excluded.coverage_edges
	`
	_, err = s.db.ExecContext(ctx, upsert, report.IterationID, report.CapturedAt, report.NodeCount, freqJSON, edgesJSON)
	return err
}

// LoadReport retrieves a previously exported report.
func (s *SQLiteCoverageStore) LoadReport(ctx context.Context, iterationID uint32) (CoverageReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT iteration_id, captured_at, node_count, call_site_frequencies, coverage_edges
		FROM coverage_reports WHERE iteration_id = ?
	`
	row := s.db.QueryRowContext(ctx, query, iterationID)
	return scanReport(row)
}

// Reports returns up to limit exported reports ordered by IterationID
// ascending.
func (s *SQLiteCoverageStore) Reports(ctx context.Context, limit int) ([]CoverageReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT iteration_id, captured_at, node_count, call_site_frequencies, coverage_edges
		FROM coverage_reports ORDER BY iteration_id ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []CoverageReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, report)
	}
	return out, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteCoverageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (CoverageReport, error) {
	var (
		report    CoverageReport
		capturedAt time.Time
		freqJSON  string
		edgesJSON string
	)
	if err := row.Scan(&report.IterationID, &capturedAt, &report.NodeCount, &freqJSON, &edgesJSON); err != nil {
		if err == sql.ErrNoRows {
			return CoverageReport{}, ErrNotFound
		}
		return CoverageReport{}, err
	}
	report.CapturedAt = capturedAt
	if err := json.Unmarshal([]byte(freqJSON), &report.CallSiteFrequencies); err != nil {
		return CoverageReport{}, fmt.Errorf("unmarshal call site frequencies: %w", err)
	}
	if err := json.Unmarshal([]byte(edgesJSON), &report.CoverageEdges); err != nil {
		return CoverageReport{}, fmt.Errorf("unmarshal coverage edges: %w", err)
	}
	return report, nil
}

var _ CoverageStore = (*SQLiteCoverageStore)(nil)
