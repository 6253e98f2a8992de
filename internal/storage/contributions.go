package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"risparmio/internal/core"
)

func (t *sqliteTx) InsertContribution(c core.Contribution) error {
	var recordID any
	if c.RecordID != nil {
		recordID = *c.RecordID
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO contributions (id, goal_id, asset_id, amount, currency, exchange_rate, record_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.GoalID, c.AssetID, c.Amount.String(), c.Currency, c.ExchangeRate.String(), recordID, fmtTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListContributionsByRecord(recordID string) ([]core.Contribution, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, goal_id, asset_id, amount, currency, exchange_rate, record_id, created_at
		FROM contributions WHERE record_id = ? ORDER BY created_at, id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []core.Contribution
	for rows.Next() {
		var c core.Contribution
		var amount, rate, createdAt string
		var rec sql.NullString
		if err := rows.Scan(&c.ID, &c.GoalID, &c.AssetID, &amount, &c.Currency, &rate, &rec, &createdAt); err != nil {
			return nil, err
		}
		if c.Amount, err = parseDec(amount); err != nil {
			return nil, err
		}
		if c.ExchangeRate, err = parseDec(rate); err != nil {
			return nil, err
		}
		if rec.Valid {
			v := rec.String
			c.RecordID = &v
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SumContributionsByRecord totals contributions per goal in the goal's
// currency. The stored exchange rate converts from the contribution currency
// to the goal currency; summing in SQL would lose decimal precision, so rows
// are combined here.
func (t *sqliteTx) SumContributionsByRecord(recordID string) (map[string]decimal.Decimal, error) {
	contributions, err := t.ListContributionsByRecord(recordID)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]decimal.Decimal, len(contributions))
	for _, c := range contributions {
		credited := c.Amount.Mul(c.ExchangeRate)
		totals[c.GoalID] = totals[c.GoalID].Add(credited)
	}
	return totals, nil
}

func (t *sqliteTx) GetBudgetApplication(month core.Month) (BudgetApplication, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT month, signature, budget_amount, currency, applied_at
		FROM budget_applications WHERE month = ?`, month.String())

	var a BudgetApplication
	var m, amount, appliedAt string
	err := row.Scan(&m, &a.Signature, &amount, &a.Currency, &appliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BudgetApplication{}, fmt.Errorf("budget application for %s: %w", month, core.ErrNotFound)
	}
	if err != nil {
		return BudgetApplication{}, fmt.Errorf("get budget application: %w", err)
	}

	if a.Month, err = core.ParseMonth(m); err != nil {
		return BudgetApplication{}, err
	}
	if a.BudgetAmount, err = parseDec(amount); err != nil {
		return BudgetApplication{}, err
	}
	if a.AppliedAt, err = parseTime(appliedAt); err != nil {
		return BudgetApplication{}, err
	}
	return a, nil
}

func (t *sqliteTx) UpsertBudgetApplication(a BudgetApplication) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO budget_applications (month, signature, budget_amount, currency, applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (month) DO UPDATE SET
			signature = excluded.signature,
			budget_amount = excluded.budget_amount,
			currency = excluded.currency,
			applied_at = excluded.applied_at`,
		a.Month.String(), a.Signature, a.BudgetAmount.String(), a.Currency, fmtTime(a.AppliedAt))
	if err != nil {
		return fmt.Errorf("upsert budget application: %w", err)
	}
	return nil
}
