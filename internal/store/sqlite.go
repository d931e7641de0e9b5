// SPDX-License-Identifier: AGPL-3.0-only
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ksr-verse/MCP/internal/model"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339Nano

// SQLiteStore implements model.AuditStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure the parent directory exists.
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveInvocation persists a single tool invocation record.
func (s *SQLiteStore) SaveInvocation(record *model.InvocationRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO invocations (id, tool, user_id, arguments, status, output, error, start_time, end_time, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Tool,
		record.UserID,
		record.Arguments,
		record.Status,
		record.Output,
		record.Error,
		record.StartTime.Format(timeFormat),
		record.EndTime.Format(timeFormat),
		record.Duration,
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	return nil
}

// GetInvocations returns up to limit records for the given tool name,
// ordered by start_time descending (most recent first). An empty tool
// name matches all tools.
func (s *SQLiteStore) GetInvocations(tool string, limit int) ([]*model.InvocationRecord, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT id, tool, user_id, arguments, status, output, error, start_time, end_time, duration
		FROM invocations`
	args := []interface{}{}
	if tool != "" {
		query += " WHERE tool = ?"
		args = append(args, tool)
	}
	query += " ORDER BY start_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var records []*model.InvocationRecord
	for rows.Next() {
		var r model.InvocationRecord
		var startStr, endStr string
		if err := rows.Scan(
			&r.ID, &r.Tool, &r.UserID, &r.Arguments, &r.Status,
			&r.Output, &r.Error, &startStr, &endStr, &r.Duration,
		); err != nil {
			return nil, fmt.Errorf("scan invocation row: %w", err)
		}
		r.StartTime, _ = time.Parse(timeFormat, startStr)
		r.EndTime, _ = time.Parse(timeFormat, endStr)
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocation rows: %w", err)
	}

	return records, nil
}

// Prune deletes records whose start time is before cutoff and returns
// the number of rows removed.
func (s *SQLiteStore) Prune(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		"DELETE FROM invocations WHERE start_time < ?",
		cutoff.Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("prune invocations: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check prune result: %w", err)
	}
	return removed, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
