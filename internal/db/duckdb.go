// Package db wraps the DuckDB connection used to mirror cached features for
// ad hoc SQL inspection.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-slackmap/internal/logging"
)

// ErrUnavailable is returned when the database could not be opened.
var ErrUnavailable = errors.New("database not available")

// Config holds database configuration.
type Config struct {
	DataDir string
	// DBName names <DataDir>/duckdb/<DBName>.duckdb. Empty opens an
	// in-memory database.
	DBName string
	// Extensions are installed and loaded on open. Failures are logged.
	Extensions []string
}

// DB is a DuckDB connection.
type DB struct {
	sql *sql.DB
	log zerolog.Logger
}

// Open connects to DuckDB and prepares the mirror table.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	dsn := ""
	if cfg.DBName != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	d := &DB{sql: conn, log: logging.With("db")}

	for _, ext := range cfg.Extensions {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			d.log.Debug().Err(err).Str("extension", ext).Msg("duckdb extension not loaded")
		}
	}

	if err := d.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// SQL exposes the underlying connection.
func (d *DB) SQL() *sql.DB {
	return d.sql
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Tables lists the tables of the main schema.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	if d == nil {
		return nil, ErrUnavailable
	}
	rows, err := d.sql.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil {
			tables = append(tables, name)
		}
	}
	return tables, rows.Err()
}

// Result is a fully read query result.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Query runs q and reads every row.
func (d *DB) Query(ctx context.Context, q string, args ...any) (*Result, error) {
	if d == nil {
		return nil, ErrUnavailable
	}
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	res := &Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			continue
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}
