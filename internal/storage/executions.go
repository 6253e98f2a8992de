package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"risparmio/internal/core"
)

func (t *sqliteTx) GetExecutionByMonth(month core.Month) (core.ExecutionRecord, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT id, month, status, started_at, completed_at, can_undo_until
		FROM execution_records WHERE month = ?`, month.String())
	r, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExecutionRecord{}, fmt.Errorf("execution record for %s: %w", month, core.ErrNotFound)
	}
	return r, err
}

func (t *sqliteTx) GetExecution(id string) (core.ExecutionRecord, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT id, month, status, started_at, completed_at, can_undo_until
		FROM execution_records WHERE id = ?`, id)
	r, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExecutionRecord{}, fmt.Errorf("execution record %s: %w", id, core.ErrNotFound)
	}
	return r, err
}

func (t *sqliteTx) InsertExecution(r core.ExecutionRecord) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO execution_records (id, month, status, started_at, completed_at, can_undo_until)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Month.String(), string(r.Status), fmtTime(r.StartedAt), nullableTime(r.CompletedAt), fmtTime(r.CanUndoUntil))
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateExecution(r core.ExecutionRecord) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE execution_records SET status = ?, started_at = ?, completed_at = ?, can_undo_until = ?
		WHERE id = ?`,
		string(r.Status), fmtTime(r.StartedAt), nullableTime(r.CompletedAt), fmtTime(r.CanUndoUntil), r.ID)
	if err != nil {
		return fmt.Errorf("update execution record: %w", err)
	}
	return requireRow(res, "execution record", r.ID)
}

func (t *sqliteTx) ReplaceSnapshotGoals(recordID string, snaps []core.ExecutionGoalSnapshot) error {
	if _, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM execution_snapshot_goals WHERE record_id = ?`, recordID); err != nil {
		return fmt.Errorf("clear snapshot goals: %w", err)
	}
	for _, s := range snaps {
		_, err := t.tx.ExecContext(t.ctx, `
			INSERT INTO execution_snapshot_goals (record_id, goal_id, goal_name, planned_amount, currency, flex_state)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.RecordID, s.GoalID, s.GoalName, s.PlannedAmount.String(), s.Currency, string(s.FlexState))
		if err != nil {
			return fmt.Errorf("insert snapshot goal: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) ListSnapshotGoals(recordID string) ([]core.ExecutionGoalSnapshot, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT record_id, goal_id, goal_name, planned_amount, currency, flex_state
		FROM execution_snapshot_goals WHERE record_id = ? ORDER BY goal_id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list snapshot goals: %w", err)
	}
	defer rows.Close()

	var snaps []core.ExecutionGoalSnapshot
	for rows.Next() {
		var s core.ExecutionGoalSnapshot
		var planned, flexState string
		if err := rows.Scan(&s.RecordID, &s.GoalID, &s.GoalName, &planned, &s.Currency, &flexState); err != nil {
			return nil, err
		}
		if s.PlannedAmount, err = parseDec(planned); err != nil {
			return nil, err
		}
		s.FlexState = core.FlexState(flexState)
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func (t *sqliteTx) InsertCompletedExecutions(rows []core.CompletedExecution) error {
	for _, r := range rows {
		_, err := t.tx.ExecContext(t.ctx, `
			INSERT INTO completed_executions (record_id, goal_id, planned_amount, contributed_amount, currency, completed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.RecordID, r.GoalID, r.PlannedAmount.String(), r.ContributedAmount.String(), r.Currency, fmtTime(r.CompletedAt))
		if err != nil {
			return fmt.Errorf("insert completed execution: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) DeleteCompletedExecutions(recordID string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM completed_executions WHERE record_id = ?`, recordID)
	if err != nil {
		return fmt.Errorf("delete completed executions: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListCompletedExecutions(recordID string) ([]core.CompletedExecution, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT record_id, goal_id, planned_amount, contributed_amount, currency, completed_at
		FROM completed_executions WHERE record_id = ? ORDER BY goal_id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list completed executions: %w", err)
	}
	defer rows.Close()

	var out []core.CompletedExecution
	for rows.Next() {
		var r core.CompletedExecution
		var planned, contributed, completedAt string
		if err := rows.Scan(&r.RecordID, &r.GoalID, &planned, &contributed, &r.Currency, &completedAt); err != nil {
			return nil, err
		}
		if r.PlannedAmount, err = parseDec(planned); err != nil {
			return nil, err
		}
		if r.ContributedAmount, err = parseDec(contributed); err != nil {
			return nil, err
		}
		if r.CompletedAt, err = parseTime(completedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (core.ExecutionRecord, error) {
	var r core.ExecutionRecord
	var month, status, startedAt, canUndoUntil string
	var completedAt sql.NullString
	if err := row.Scan(&r.ID, &month, &status, &startedAt, &completedAt, &canUndoUntil); err != nil {
		return core.ExecutionRecord{}, err
	}

	var err error
	if r.Month, err = core.ParseMonth(month); err != nil {
		return core.ExecutionRecord{}, err
	}
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return core.ExecutionRecord{}, err
	}
	if completedAt.Valid {
		ct, err := parseTime(completedAt.String)
		if err != nil {
			return core.ExecutionRecord{}, err
		}
		r.CompletedAt = &ct
	}
	if r.CanUndoUntil, err = parseTime(canUndoUntil); err != nil {
		return core.ExecutionRecord{}, err
	}
	r.Status = core.ExecutionStatus(status)
	return r, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}
