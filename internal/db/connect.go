package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures the question-bank schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:qpgen.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/qpgen?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS templates (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  description TEXT,
  total_marks INTEGER,
  instructions TEXT,
  sections TEXT
);

CREATE TABLE IF NOT EXISTS question_bank_titles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  title TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS question_bank (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  question_text TEXT NOT NULL,
  type TEXT NOT NULL,
  options TEXT,
  correct_answer TEXT,
  answer_text TEXT,
  btl INTEGER,
  marks INTEGER,
  status TEXT,
  chapter TEXT,
  course_outcomes TEXT,
  title_id INTEGER REFERENCES question_bank_titles(id)
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS templates (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  total_marks INTEGER,
  instructions TEXT,
  sections TEXT
);

CREATE TABLE IF NOT EXISTS question_bank_titles (
  id BIGSERIAL PRIMARY KEY,
  title TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS question_bank (
  id BIGSERIAL PRIMARY KEY,
  question_text TEXT NOT NULL,
  type TEXT NOT NULL,
  options TEXT,
  correct_answer TEXT,
  answer_text TEXT,
  btl INTEGER,
  marks INTEGER,
  status TEXT,
  chapter TEXT,
  course_outcomes TEXT,
  title_id BIGINT REFERENCES question_bank_titles(id)
);
`
