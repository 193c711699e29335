// Package history keeps every recorded outcome in a SQLite database so runs
// can be compared over time.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/vtmqa/vtmsmoke/internal/resultlog"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id  TEXT NOT NULL,
	test    TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail  TEXT NOT NULL DEFAULT '',
	at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS outcomes_run_id ON outcomes (run_id);
`

// Row is one stored outcome.
type Row struct {
	ID      int64     `db:"id"`
	RunID   string    `db:"run_id"`
	Test    string    `db:"test"`
	Outcome string    `db:"outcome"`
	Detail  string    `db:"detail"`
	At      time.Time `db:"at"`
}

// Run aggregates the rows of one run.
type Run struct {
	RunID   string `db:"run_id"`
	Checks  int    `db:"checks"`
	Passed  int    `db:"passed"`
	Failed  int    `db:"failed"`
	Errored int    `db:"errored"`
}

// Store is a resultlog.Recorder backed by SQLite.
type Store struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string, log logrus.FieldLogger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	// A single connection keeps writes ordered.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db, log: log.WithField("component", "history")}, nil
}

// Record stores r. Errors are logged and dropped.
func (s *Store) Record(r resultlog.Record) {
	_, err := s.db.NamedExec(
		`INSERT INTO outcomes (run_id, test, outcome, detail, at) VALUES (:run_id, :test, :outcome, :detail, :at)`,
		Row{RunID: r.RunID, Test: r.Test, Outcome: r.Outcome.Label(), Detail: r.Detail, At: r.Time},
	)
	if err != nil {
		s.log.WithError(err).WithField("test", r.Test).Error("Could not store outcome")
	}
}

// Recent returns up to limit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	var rows []Row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, run_id, test, outcome, detail, at FROM outcomes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	return rows, nil
}

// Runs returns up to limit run summaries, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `
		SELECT run_id,
			COUNT(*) AS checks,
			SUM(outcome = 'success') AS passed,
			SUM(outcome = 'failure') AS failed,
			SUM(outcome = 'error') AS errored
		FROM outcomes
		GROUP BY run_id
		ORDER BY MAX(id) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ParsedOutcome parses the stored outcome label.
func (r Row) ParsedOutcome() (resultlog.Outcome, error) {
	return resultlog.ParseLabel(r.Outcome)
}
