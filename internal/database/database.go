package database

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Queries is the set of store operations available both on the database
// handle and inside a transaction.
type Queries interface {
	LoadProgress(ctx context.Context) (*Progress, error)
	SaveProgress(ctx context.Context, p *Progress) error
	AppendSubmission(ctx context.Context, s *Submission) (int64, error)
	CountByCategory(ctx context.Context) (map[Category]int, error)
	CountByCategoryForPass(ctx context.Context, passID string) (map[Category]int, error)
	CountSubmissions(ctx context.Context) (int, error)
	ListSubmissions(ctx context.Context) ([]Submission, error)
}

// DB wraps a SQL database connection holding labeling progress and submissions.
type DB struct {
	store
	conn    *sqlx.DB
	dialect dialect
	dsn     string
	log     *zap.Logger
}

// Tx is a store bound to a single open transaction.
type Tx struct {
	store
	tx *sqlx.Tx
}

// store implements Queries over either a connection or a transaction.
type store struct {
	q sqlx.ExtContext
}

var (
	_ Queries = (*DB)(nil)
	_ Queries = (*Tx)(nil)
)

// Open connects to the database and brings its schema up to date.
// For SQLite the dsn is a file path; for Postgres it is a connection URL.
func Open(driver, dsn string, log *zap.Logger) (*DB, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating data directory")
		}
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if driver == DriverSQLite {
		// One connection keeps PRAGMAs in effect and serializes writers.
		conn.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := conn.Exec(pragma); err != nil {
				conn.Close()
				return nil, errors.Wrapf(err, "executing %q", pragma)
			}
		}
	} else if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "connecting to database")
	}

	db := &DB{store: store{q: conn}, conn: conn, dialect: d, dsn: dsn, log: log}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "migrating schema")
	}

	log.Info("database ready", zap.String("driver", driver), zap.String("dsn", redactDSN(driver, dsn)))
	return db, nil
}

// Wrap builds a DB around an existing connection without running migrations.
// It is meant for connections whose schema is managed elsewhere, such as test doubles.
func Wrap(conn *sql.DB, driver string, log *zap.Logger) (*DB, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	x := sqlx.NewDb(conn, driver)
	return &DB{store: store{q: x}, conn: x, dialect: d, log: log}, nil
}

// InTx runs fn inside a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (db *DB) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	if err := fn(&Tx{store: store{q: tx}, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.log.Warn("rollback failed", zap.Error(rbErr))
			return errors.WithSecondaryError(err, rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(), "committing transaction")
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the driver name the database was opened with.
func (db *DB) Driver() string {
	return db.dialect.name
}

// Path returns the data source the database was opened with.
func (db *DB) Path() string {
	return db.dsn
}

// redactDSN hides credentials in a Postgres URL before it is logged.
func redactDSN(driver, dsn string) string {
	if driver != DriverPostgres {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "postgres (redacted)"
	}
	return u.Redacted()
}
