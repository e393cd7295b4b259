/*
Package sqldb provides a database/sql implementation of the ledger stores.

PURPOSE:
  Implements ledger.TxStore, ledger.CatalogWriter and ledger.Resetter on
  SQLite (mattn/go-sqlite3) or PostgreSQL (pgx stdlib driver). Queries are
  built with squirrel so the same code emits `?` or `$n` placeholders.

INTERFACES IMPLEMENTED:
  ledger.TxStore:       Balances, transaction log, enrollments, progress
  ledger.CatalogWriter: Users, courses and lessons
  ledger.Resetter:      Demo scenario reset

CONSTRAINTS AS FINAL AUTHORITY:
  - users.points CHECK (points >= 0)
  - enrollments UNIQUE (user_id, course_id)
  - lesson_progress UNIQUE (enrollment_id, lesson_id)
  Uniqueness violations are mapped to ledger.ErrAlreadyEnrolled / ErrConflict.

APPEND-ONLY ENFORCEMENT:
  point_transactions is only ever INSERTed into. Reset is the sole DELETE and
  is reachable only from demo scenarios.

CONCURRENCY:
  SQLite is opened with a single connection so every WithTx unit serializes
  at the pool. Inside fn, only the Store handed to fn may be used; touching
  the parent Store would wait forever for the connection fn holds.
  PostgreSQL relies on row locks: the balance debit is a conditional UPDATE
  and lesson resolution locks the enrollment row (FOR UPDATE).

TIMESTAMPS:
  Stored as TEXT in a fixed-width UTC layout so lexical order is time order
  on both databases.

USAGE:
  store, err := sqldb.New("sqlite3", "./data/courses.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/course-ledger/ledger"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// dialect captures the handful of SQL differences between the two databases.
type dialect struct {
	name        string
	placeholder sq.PlaceholderFormat
	autoID      string
	bigint      string
	lockSuffix  string
}

var (
	sqliteDialect = dialect{
		name:        DriverSQLite,
		placeholder: sq.Question,
		autoID:      "INTEGER PRIMARY KEY AUTOINCREMENT",
		bigint:      "INTEGER",
	}
	postgresDialect = dialect{
		name:        DriverPostgres,
		placeholder: sq.Dollar,
		autoID:      "BIGSERIAL PRIMARY KEY",
		bigint:      "BIGINT",
		lockSuffix:  "FOR UPDATE OF e",
	}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "sqlite":
		return sqliteDialect, nil
	case DriverPostgres, "postgres", "postgresql":
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements every store method against a querier. Store binds it to
// the pool; WithTx binds a fresh one to the transaction.
type conn struct {
	q  querier
	d  dialect
	sb sq.StatementBuilderType
}

func newConn(q querier, d dialect) *conn {
	return &conn{q: q, d: d, sb: sq.StatementBuilder.PlaceholderFormat(d.placeholder)}
}

// Store implements all storage interfaces using database/sql.
type Store struct {
	*conn
	db *sql.DB
}

var (
	_ ledger.TxStore       = (*Store)(nil)
	_ ledger.CatalogWriter = (*Store)(nil)
	_ ledger.Resetter      = (*Store)(nil)
	_ ledger.Store         = (*conn)(nil)
	_ ledger.CatalogWriter = (*conn)(nil)
)

// New opens the database and migrates the schema.
// For SQLite use ":memory:" for an in-memory database.
func New(driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	if d.name == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.name == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	store := &Store{conn: newConn(db, d), db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the dialect name in use.
func (s *Store) Driver() string { return s.d.name }

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
-- Users (catalog collaborator, points is the live balance)
CREATE TABLE IF NOT EXISTS users (
	id {{ID}},
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'learner',
	points {{BIGINT}} NOT NULL DEFAULT 0 CHECK (points >= 0),
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id {{ID}},
	instructor_id {{BIGINT}},
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	difficulty_level TEXT NOT NULL DEFAULT 'beginner',
	thumbnail TEXT NOT NULL DEFAULT '',
	is_published BOOLEAN NOT NULL DEFAULT FALSE,
	points_cost {{BIGINT}} NOT NULL DEFAULT 0 CHECK (points_cost >= 0),
	points_reward {{BIGINT}} NOT NULL DEFAULT 0 CHECK (points_reward >= 0),
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lessons (
	id {{ID}},
	course_id {{BIGINT}} NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	lesson_order INTEGER NOT NULL DEFAULT 0,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	video_url TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_lessons_course_order
	ON lessons(course_id, lesson_order);

-- Enrollments: one per (user, course). The unique constraint is the final
-- authority against concurrent duplicate enrollment.
CREATE TABLE IF NOT EXISTS enrollments (
	id TEXT PRIMARY KEY,
	user_id {{BIGINT}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	course_id {{BIGINT}} NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
	enrolled_at TEXT NOT NULL,
	progress_percentage INTEGER NOT NULL DEFAULT 0,
	completed_at TEXT,
	UNIQUE (user_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_user_enrolled
	ON enrollments(user_id, enrolled_at DESC);

CREATE TABLE IF NOT EXISTS lesson_progress (
	id TEXT PRIMARY KEY,
	enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
	lesson_id {{BIGINT}} NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
	is_completed BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at TEXT,
	time_spent_minutes INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TEXT,
	UNIQUE (enrollment_id, lesson_id)
);

-- Point transactions (append-only audit log)
CREATE TABLE IF NOT EXISTS point_transactions (
	id TEXT PRIMARY KEY,
	user_id {{BIGINT}} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	amount {{BIGINT}} NOT NULL CHECK (amount > 0),
	kind TEXT NOT NULL CHECK (kind IN ('earned', 'spent', 'bonus')),
	description TEXT NOT NULL DEFAULT '',
	reference_id {{BIGINT}},
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_point_transactions_user_created
	ON point_transactions(user_id, created_at DESC)
`

// migrate creates the database schema. Statements run one at a time since
// not every driver accepts a multi-statement Exec.
func (s *Store) migrate(ctx context.Context) error {
	ddl := strings.NewReplacer("{{ID}}", s.d.autoID, "{{BIGINT}}", s.d.bigint).Replace(schema)
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(newConn(sqlTx, s.d)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Reset deletes every row. Only demo scenarios call it.
func (s *Store) Reset(ctx context.Context) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range []string{
		"point_transactions", "lesson_progress", "enrollments", "lessons", "courses", "users",
	} {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}
