// Package datastore probes the shared MariaDB server for tenant databases.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
)

// validNameRe matches only alphanumeric characters and underscores.
var validNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var systemSchemas = map[string]bool{
	"mysql":              true,
	"information_schema": true,
	"performance_schema": true,
	"sys":                true,
}

// MySQLProber answers existence questions about logical databases. It never
// modifies the server.
type MySQLProber struct {
	logger zerolog.Logger
	db     *sql.DB
}

// NewMySQLProber opens a small connection pool for dsn, in the Go MySQL
// driver format (user:pass@tcp(host:port)/). Connections are made lazily.
func NewMySQLProber(logger zerolog.Logger, dsn string) (*MySQLProber, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newMySQLProber(logger, db), nil
}

func newMySQLProber(logger zerolog.Logger, db *sql.DB) *MySQLProber {
	return &MySQLProber{
		logger: logger.With().Str("component", "datastore-prober").Logger(),
		db:     db,
	}
}

// DatabaseExists reports whether the named schema exists.
func (p *MySQLProber) DatabaseExists(ctx context.Context, name string) (bool, error) {
	if !validNameRe.MatchString(name) {
		return false, fmt.Errorf("invalid database name %q: only alphanumeric and underscore allowed", name)
	}

	var found string
	err := p.db.QueryRowContext(ctx,
		`SELECT SCHEMA_NAME FROM information_schema.SCHEMATA WHERE SCHEMA_NAME = ?`, name,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query schema %s: %w", name, err)
	}
	return true, nil
}

// CountDatabases counts tenant databases: every schema that is neither a
// server schema nor prefixed with an underscore.
func (p *MySQLProber) CountDatabases(ctx context.Context) (int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT SCHEMA_NAME FROM information_schema.SCHEMATA`)
	if err != nil {
		return 0, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return 0, fmt.Errorf("scan schema: %w", err)
		}
		if systemSchemas[name] || strings.HasPrefix(name, "_") {
			continue
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("list schemas: %w", err)
	}
	return count, nil
}

// Close closes the connection pool.
func (p *MySQLProber) Close() error {
	return p.db.Close()
}
