package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinic-service/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
)

// repo holds every query; Store and Tx embed it so the same methods run inside or outside a transaction
type repo struct {
	q      sqlx.ExtContext
	driver string
}

type Store struct {
	repo
	db          *sqlx.DB
	lockTimeout time.Duration
}

// Tx is a unit of work opened by Store.WithTx
type Tx struct {
	repo
	tx *sqlx.Tx
}

// Options tunes the connection pool
type Options struct {
	MaxOpenConns int
	LockTimeout  time.Duration
}

// NewStore creates a new database store
func NewStore(driver, databaseURL string, opts Options) (*Store, error) {
	switch driver {
	case DriverPostgres, DriverPgx, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		databaseURL = sqliteDSN(databaseURL)
	}

	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// one connection serializes writers and keeps in-memory databases alive
		db.SetMaxOpenConns(1)
	} else {
		maxOpen := opts.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		repo:        repo{q: db, driver: driver},
		db:          db,
		lockTimeout: opts.LockTimeout,
	}, nil
}

// sqliteDSN enables foreign keys on every connection the pool opens, not just the first
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the configured driver name
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a transaction, committing if fn returns nil.
// Driver errors caused by lock contention or the context deadline are reported as apperr.ErrConflict.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(ctx, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	tx := &Tx{repo: repo{q: sqlTx, driver: s.driver}, tx: sqlTx}

	if s.isPostgres() && s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return classify(ctx, fmt.Errorf("failed to set lock timeout: %w", err))
		}
	}

	if err := fn(tx); err != nil {
		return classify(ctx, err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(ctx, fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func (r *repo) isPostgres() bool {
	return r.driver == DriverPostgres || r.driver == DriverPgx
}

// forUpdate returns the row-lock suffix for the dialect. SQLite has a single writer and needs none.
func (r *repo) forUpdate() string {
	if r.isPostgres() {
		return " FOR UPDATE"
	}
	return ""
}

func (r *repo) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, r.q, dest, r.q.Rebind(query), args...)
}

func (r *repo) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, r.q, dest, r.q.Rebind(query), args...)
}

func (r *repo) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.q.Rebind(query), args...)
}

// execChecked runs a write and reports constraint violations through the sentinel kinds below
func (r *repo) execChecked(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := r.exec(ctx, query, args...)
	if err != nil {
		return nil, classifyConstraint(err)
	}
	return res, nil
}

// insert runs an INSERT ... RETURNING id statement
func (r *repo) insert(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var id int64
	if err := r.get(ctx, &id, query+" RETURNING id", args...); err != nil {
		return 0, classifyConstraint(err)
	}
	return id, nil
}

// SQLSTATE and SQLite result codes the store cares about
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
	pgLockNotAvailable    = "55P03"
	pgQueryCanceled       = "57014"

	sqliteBusy             = 5
	sqliteLocked           = 6
	sqliteConstraintCheck  = 275
	sqliteConstraintFK     = 787
	sqliteConstraintUnique = 2067
)

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func sqliteCode(err error) int {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()
	}
	return 0
}

// classify maps contention and timeouts to ErrConflict, leaving domain errors untouched.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if apperr.Code(err) != "INTERNAL" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, apperr.ErrConflict)
	}
	switch sqlState(err) {
	case pgSerializationFail, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceled:
		return fmt.Errorf("%v: %w", err, apperr.ErrConflict)
	}
	switch sqliteCode(err) & 0xff {
	case sqliteBusy, sqliteLocked:
		return fmt.Errorf("%v: %w", err, apperr.ErrConflict)
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%v: %w", err, apperr.ErrConflict)
	}
	return err
}

// constraint violation kinds reported by classifyConstraint
var (
	errUniqueViolation = errors.New("unique constraint violated")
	errForeignKey      = errors.New("foreign key constraint violated")
	errCheckViolation  = errors.New("check constraint violated")
)

func classifyConstraint(err error) error {
	switch sqlState(err) {
	case pgUniqueViolation:
		return fmt.Errorf("%v: %w", err, errUniqueViolation)
	case pgForeignKeyViolation:
		return fmt.Errorf("%v: %w", err, errForeignKey)
	case pgCheckViolation:
		return fmt.Errorf("%v: %w", err, errCheckViolation)
	}
	code, msg := sqliteCode(err), err.Error()
	switch {
	case code == sqliteConstraintUnique || strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%v: %w", err, errUniqueViolation)
	case code == sqliteConstraintFK || strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%v: %w", err, errForeignKey)
	case code == sqliteConstraintCheck || strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%v: %w", err, errCheckViolation)
	}
	return err
}

func now() time.Time {
	return time.Now().UTC()
}
