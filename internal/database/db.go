package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps the session database for either driver. Queries are written
// with ? placeholders and rebound for postgres.
type DB struct {
	*sql.DB
	driver string
	logger *slog.Logger
}

// Open connects, checks the connection and applies pending migrations.
// dsn is a file path for sqlite and a libpq style DSN for postgres.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var sqlDriver string
	var dialect goose.Dialect
	switch driver {
	case DriverSQLite:
		sqlDriver, dialect = "sqlite", goose.DialectSQLite3
	case DriverPostgres:
		sqlDriver, dialect = "pgx", goose.DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// one writer avoids SQLITE_BUSY between the recorder and readers
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	db := &DB{DB: conn, driver: driver, logger: logger.With("component", "database")}
	if err = db.migrate(ctx, dialect); err != nil {
		conn.Close()
		return nil, err
	}

	db.logger.Info("database initialized", "driver", driver)
	return db, nil
}

func (db *DB) migrate(ctx context.Context, dialect goose.Dialect) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		db.logger.Info("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

func (db *DB) Driver() string { return db.driver }

// rebind turns ? placeholders into $n for postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
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

func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	err := db.DB.Close()
	db.logger.Info("DB closed")
	return err
}
