// Package sqlstate persists trigger configs through database/sql, using
// SQLite for a single local agent or PostgreSQL when several agents share the
// same records.
package sqlstate

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	serverstate "github.com/hashicorp-forge/build-trigger/internal/controller/server/state"
	"github.com/hashicorp-forge/build-trigger/internal/helper"
	"github.com/hashicorp-forge/build-trigger/internal/pkg/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultSQLitePath = "build-trigger.db"
)

type Config struct {
	Driver string `hcl:"driver,optional"`

	// Path is used when Driver is sqlite.
	Path string `hcl:"path,optional"`

	// DSN is used when Driver is postgres.
	DSN string `hcl:"dsn,optional"`
}

type State struct {
	db     *sql.DB
	driver string
	path   string
	logger *zap.Logger

	// slugLocks serializes read-modify-write sequences within this process;
	// the transaction covers other processes sharing the database.
	slugLocks *helper.KeyedMutex
}

func New(cfg *Config, zLogger *zap.Logger) (serverstate.State, error) {

	db, driver, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &State{
		db:        db,
		driver:    driver,
		path:      cfg.Path,
		logger:    zLogger.Named(logger.ComponentNameState).With(zap.String("driver", driver)),
		slugLocks: helper.NewKeyedMutex(),
	}

	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.logger.Debug("opened SQL state backend")
	return s, nil
}

func (s *State) Name() string { return "sql" }

func (s *State) Close() error { return s.db.Close() }

func openDB(cfg *Config) (*sql.DB, string, error) {
	driverName, dsn, err := resolveDriver(cfg)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open db: %w", err)
	}

	// A single connection keeps SQLite writers from racing each other into
	// SQLITE_BUSY inside one process.
	if driverName == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping db: %w", err)
	}

	return db, driverName, nil
}

// sqlitePragmas are appended to the query string of every SQLite DSN.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

func resolveDriver(cfg *Config) (string, string, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			path = defaultSQLitePath
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return DriverSQLite, path + sep + sqlitePragmas, nil
	case DriverPostgres:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			return "", "", fmt.Errorf("postgres dsn is required")
		}
		// The pgx stdlib driver registers itself as "pgx".
		return "pgx", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported sql driver: %q", cfg.Driver)
	}
}

func (s *State) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trigger_configs (
			app_slug TEXT PRIMARY KEY,
			workflow_ids TEXT NOT NULL DEFAULT '[]',
			api_token TEXT,
			git_object_type TEXT NOT NULL,
			git_object_value TEXT NOT NULL DEFAULT ''
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites "?" placeholders into the "$n" form PostgreSQL expects.
func (s *State) rebind(query string) string {
	if s.driver == DriverSQLite {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
