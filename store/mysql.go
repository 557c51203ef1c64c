package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLCoverageStore is a MySQL/MariaDB-backed CoverageStore.
//
// Designed for shared or CI environments where coverage reports from
// multiple runs need to be compared or retained beyond a single process.
type MySQLCoverageStore struct {
	db *sql.DB
}

// NewMySQLCoverageStore opens a connection pool against dsn and ensures the
// schema exists.
//
// dsn follows the go-sql-driver/mysql format:
//
//	user:password@tcp(host:3306)/dbname?parseTime=true
//
// Never hardcode credentials; source the DSN from the environment.
func NewMySQLCoverageStore(dsn string) (*MySQLCoverageStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLCoverageStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLCoverageStore) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS coverage_reports (
			iteration_id BIGINT UNSIGNED PRIMARY KEY,
			captured_at TIMESTAMP NOT NULL,
			node_count INT NOT NULL,
			call_site_frequencies JSON NOT NULL,
			coverage_edges JSON NOT NULL
		)
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Export persists report, overwriting any existing report for the same
// IterationID.
func (s *MySQLCoverageStore) Export(ctx context.Context, report CoverageReport) error {
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
		ON DUPLICATE KEY UPDATE
			captured_at = VALUES(captured_at),
			node_count = VALUES(node_count),
			call_site_frequencies = VALUES(call_site_frequencies),
			coverage_edges = VALUES(coverage_edges)
	`
	_, err = s.db.ExecContext(ctx, upsert, report.IterationID, report.CapturedAt, report.NodeCount, freqJSON, edgesJSON)
	return err
}

// LoadReport retrieves a previously exported report.
func (s *MySQLCoverageStore) LoadReport(ctx context.Context, iterationID uint32) (CoverageReport, error) {
	const query = `
		SELECT iteration_id, captured_at, node_count, call_site_frequencies, coverage_edges
		FROM coverage_reports WHERE iteration_id = ?
	`
	row := s.db.QueryRowContext(ctx, query, iterationID)
	return scanReport(row)
}

// Reports returns up to limit exported reports ordered by IterationID
// ascending.
func (s *MySQLCoverageStore) Reports(ctx context.Context, limit int) ([]CoverageReport, error) {
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

// Close closes the underlying connection pool.
func (s *MySQLCoverageStore) Close() error {
	return s.db.Close()
}

var _ CoverageStore = (*MySQLCoverageStore)(nil)
