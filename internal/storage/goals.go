package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"risparmio/internal/core"
)

func (t *sqliteTx) CreateGoal(g core.Goal) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO goals (id, name, currency, target_amount, deadline, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Currency, g.TargetAmount.String(), fmtTime(g.Deadline),
		string(g.Status), fmtTime(g.CreatedAt), fmtTime(g.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateGoal(g core.Goal) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE goals SET name = ?, currency = ?, target_amount = ?, deadline = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		g.Name, g.Currency, g.TargetAmount.String(), fmtTime(g.Deadline),
		string(g.Status), fmtTime(g.UpdatedAt), g.ID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	return requireRow(res, "goal", g.ID)
}

func (t *sqliteTx) GetGoal(id string) (core.Goal, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT id, name, currency, target_amount, deadline, status, created_at, updated_at
		FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Goal{}, fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
	}
	return g, err
}

func (t *sqliteTx) ListGoals(statuses ...core.GoalStatus) ([]core.Goal, error) {
	query := `
		SELECT id, name, currency, target_amount, deadline, status, created_at, updated_at
		FROM goals`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
		query += " WHERE status IN (" + placeholders + ")"
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += " ORDER BY deadline, id"

	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

func (t *sqliteTx) DeleteGoal(id string) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return requireRow(res, "goal", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGoal(row rowScanner) (core.Goal, error) {
	var g core.Goal
	var target, deadline, status, createdAt, updatedAt string
	if err := row.Scan(&g.ID, &g.Name, &g.Currency, &target, &deadline, &status, &createdAt, &updatedAt); err != nil {
		return core.Goal{}, err
	}

	var err error
	if g.TargetAmount, err = parseDec(target); err != nil {
		return core.Goal{}, err
	}
	if g.Deadline, err = parseTime(deadline); err != nil {
		return core.Goal{}, err
	}
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Goal{}, err
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Goal{}, err
	}
	g.Status = core.GoalStatus(status)
	return g, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}
