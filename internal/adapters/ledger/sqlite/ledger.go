package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/bnema/spin-accounts-cli/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	workflow    TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	account    TEXT NOT NULL,
	success    INTEGER NOT NULL,
	message    TEXT NOT NULL,
	reason     TEXT NOT NULL,
	error_kind TEXT NOT NULL,
	report     TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at DESC);
`

// Ledger records finished batch runs so history survives restarts.
type Ledger struct {
	db *sql.DB
}

var _ ports.ResultLedger = (*Ledger)(nil)

// Open creates the database file if needed and applies the schema.
func Open(path string, busyTimeout time.Duration) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// A single writer keeps WAL contention out of batch runs.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// reportColumn holds the per-workflow detail that has no column of its own.
type reportColumn struct {
	Spin        *domain.SpinReport        `json:"spin,omitempty"`
	Liquidation *domain.LiquidationReport `json:"liquidation,omitempty"`
	Balance     *domain.BalanceReport     `json:"balance,omitempty"`
	Validation  *domain.ValidationReport  `json:"validation,omitempty"`
}

func (l *Ledger) Record(ctx context.Context, run domain.BatchRun) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, started_at, finished_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Workflow), run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, position, account, success, message, reason, error_kind, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, result := range run.Results {
		report, err := json.Marshal(reportColumn{
			Spin:        result.Spin,
			Liquidation: result.Liquidation,
			Balance:     result.Balance,
			Validation:  result.Validation,
		})
		if err != nil {
			return fmt.Errorf("encode result %s: %w", result.AccountName, err)
		}

		if _, err := stmt.ExecContext(ctx, run.ID, i, result.AccountName, boolToInt(result.Success),
			result.Message, string(result.Reason), string(result.ErrorKind), string(report)); err != nil {
			return fmt.Errorf("insert result %s: %w", result.AccountName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first, with their results in
// original order.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.BatchRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, workflow, started_at, finished_at FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var runs []domain.BatchRun
	for rows.Next() {
		var (
			run               domain.BatchRun
			workflow          string
			started, finished int64
		)
		if err := rows.Scan(&run.ID, &workflow, &started, &finished); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Workflow = domain.Workflow(workflow)
		run.StartedAt = time.Unix(0, started).UTC()
		run.FinishedAt = time.Unix(0, finished).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	_ = rows.Close()

	for i := range runs {
		results, err := l.results(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Results = results
	}

	return runs, nil
}

func (l *Ledger) results(ctx context.Context, runID string) ([]domain.BatchResult, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT account, success, message, reason, error_kind, report FROM results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results for %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var results []domain.BatchResult
	for rows.Next() {
		var (
			result            domain.BatchResult
			success           int
			reason, kind, raw string
		)
		if err := rows.Scan(&result.AccountName, &success, &result.Message, &reason, &kind, &raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		result.Success = success != 0
		result.Reason = domain.FailureReason(reason)
		result.ErrorKind = domain.ErrorKind(kind)

		var report reportColumn
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			return nil, fmt.Errorf("decode result %s: %w", result.AccountName, err)
		}
		result.Spin = report.Spin
		result.Liquidation = report.Liquidation
		result.Balance = report.Balance
		result.Validation = report.Validation

		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	return results, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
