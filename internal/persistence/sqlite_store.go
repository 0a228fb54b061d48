package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/masonrylabs/masonry/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

// Ensure SQLiteRunStore implements RunStore.
var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given
// database and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			trigger TEXT NOT NULL,
			status TEXT NOT NULL,
			sealed INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		);
		CREATE TABLE IF NOT EXISTS step_outcomes (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			graph_name TEXT NOT NULL,
			step_name TEXT NOT NULL,
			input BLOB,
			output BLOB,
			status TEXT NOT NULL,
			error TEXT,
			reason TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_runs_workflow_started
			ON runs (workflow_name, started_at);`,
	)
	return err
}

func (s *SQLiteRunStore) CreateRun(ctx context.Context, run *api.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_name, trigger, status, sealed, started_at, ended_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		run.ID,
		run.WorkflowName,
		string(run.Trigger),
		string(run.Status),
		encodeTime(run.StartedAt),
		encodeTime(run.EndedAt),
	)
	return err
}

func (s *SQLiteRunStore) AppendOutcome(ctx context.Context, runID string, outcome api.StepOutcome) error {
	var sealed int
	err := s.db.QueryRowContext(ctx, `SELECT sealed FROM runs WHERE id = ?`, runID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRunNotFound
	}
	if err != nil {
		return err
	}
	if sealed != 0 {
		return ErrRunSealed
	}

	input, err := EncodeValue(outcome.Input)
	if err != nil {
		return err
	}
	output, err := EncodeValue(outcome.Output)
	if err != nil {
		return err
	}

	// The seq subselect keeps concurrent appends for the same run ordered
	// without a separate counter.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO step_outcomes (run_id, seq, graph_name, step_name, input, output, status, error, reason, started_at, ended_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM step_outcomes WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		runID,
		outcome.GraphName,
		outcome.StepName,
		input,
		output,
		string(outcome.Status),
		outcome.Error,
		outcome.Reason,
		encodeTime(outcome.StartedAt),
		encodeTime(outcome.EndedAt),
	)
	return err
}

func (s *SQLiteRunStore) SealRun(ctx context.Context, runID string, status api.RunStatus, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, ended_at = ?, sealed = 1
		WHERE id = ? AND sealed = 0`,
		string(status),
		encodeTime(endedAt),
		runID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var sealed int
		err := s.db.QueryRowContext(ctx, `SELECT sealed FROM runs WHERE id = ?`, runID).Scan(&sealed)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRunNotFound
		}
		if err != nil {
			return err
		}
		return ErrRunSealed
	}

	return nil
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*api.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_name, trigger, status, started_at, ended_at
		FROM runs
		WHERE id = ?`,
		id,
	)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	outcomes, err := s.loadOutcomes(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Outcomes = outcomes

	return run, nil
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]*api.Run, error) {
	query := `
		SELECT id, workflow_name, trigger, status, started_at, ended_at
		FROM runs`
	var args []any
	var clauses []string

	if filter.WorkflowName != "" {
		clauses = append(clauses, "workflow_name = ?")
		args = append(args, filter.WorkflowName)
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, encodeTime(filter.From))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "started_at < ?")
		args = append(args, encodeTime(filter.To))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query = query + " ORDER BY started_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, run := range runs {
		outcomes, err := s.loadOutcomes(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		run.Outcomes = outcomes
	}

	return runs, nil
}

func (s *SQLiteRunStore) loadOutcomes(ctx context.Context, runID string) ([]api.StepOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT graph_name, step_name, input, output, status, error, reason, started_at, ended_at
		FROM step_outcomes
		WHERE run_id = ?
		ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []api.StepOutcome
	for rows.Next() {
		var (
			o             api.StepOutcome
			statusStr     string
			input, output []byte
			errStr, rsn   sql.NullString
			startNs       int64
			endNs         int64
		)
		if err := rows.Scan(&o.GraphName, &o.StepName, &input, &output, &statusStr, &errStr, &rsn, &startNs, &endNs); err != nil {
			return nil, err
		}

		o.Status = api.StepStatus(statusStr)
		o.Error = errStr.String
		o.Reason = rsn.String
		o.StartedAt = decodeTime(startNs)
		o.EndedAt = decodeTime(endNs)

		params, err := DecodeParams(input)
		if err != nil {
			return nil, err
		}
		o.Input = params

		out, err := DecodeValue(output)
		if err != nil {
			return nil, err
		}
		o.Output = out

		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return outcomes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*api.Run, error) {
	var (
		run        api.Run
		trigger    string
		status     string
		startNs    int64
		endNsValue sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.WorkflowName, &trigger, &status, &startNs, &endNsValue); err != nil {
		return nil, err
	}
	run.Trigger = api.TriggerKind(trigger)
	run.Status = api.RunStatus(status)
	run.StartedAt = decodeTime(startNs)
	if endNsValue.Valid {
		run.EndedAt = decodeTime(endNsValue.Int64)
	}
	return &run, nil
}

// encodeTime stores timestamps as unix nanoseconds; the zero time stores
// as 0 so unset end times round-trip.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
