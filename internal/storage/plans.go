package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"risparmio/internal/core"
)

func (t *sqliteTx) GetPlan(goalID string, month core.Month) (core.MonthlyPlan, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT id, goal_id, month, required_amount, custom_amount, flex_state, updated_at
		FROM monthly_plans WHERE goal_id = ? AND month = ?`, goalID, month.String())
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyPlan{}, fmt.Errorf("plan %s/%s: %w", goalID, month, core.ErrNotFound)
	}
	return p, err
}

func (t *sqliteTx) ListPlansByMonth(month core.Month) ([]core.MonthlyPlan, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, goal_id, month, required_amount, custom_amount, flex_state, updated_at
		FROM monthly_plans WHERE month = ? ORDER BY goal_id`, month.String())
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []core.MonthlyPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (t *sqliteTx) UpsertPlan(p core.MonthlyPlan) error {
	var custom any
	if p.CustomAmount != nil {
		custom = p.CustomAmount.String()
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO monthly_plans (id, goal_id, month, required_amount, custom_amount, flex_state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (goal_id, month) DO UPDATE SET
			required_amount = excluded.required_amount,
			custom_amount = excluded.custom_amount,
			flex_state = excluded.flex_state,
			updated_at = excluded.updated_at`,
		p.ID, p.GoalID, p.Month.String(), p.RequiredAmount.String(), custom, string(p.FlexState), fmtTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}

func scanPlan(row rowScanner) (core.MonthlyPlan, error) {
	var p core.MonthlyPlan
	var month, required, flexState, updatedAt string
	var custom sql.NullString
	if err := row.Scan(&p.ID, &p.GoalID, &month, &required, &custom, &flexState, &updatedAt); err != nil {
		return core.MonthlyPlan{}, err
	}

	var err error
	if p.Month, err = core.ParseMonth(month); err != nil {
		return core.MonthlyPlan{}, err
	}
	if p.RequiredAmount, err = parseDec(required); err != nil {
		return core.MonthlyPlan{}, err
	}
	if custom.Valid {
		d, err := parseDec(custom.String)
		if err != nil {
			return core.MonthlyPlan{}, err
		}
		p.CustomAmount = &d
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.MonthlyPlan{}, err
	}
	p.FlexState = core.FlexState(flexState)
	return p, nil
}
