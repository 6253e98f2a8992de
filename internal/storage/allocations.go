package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"risparmio/internal/core"
)

func (t *sqliteTx) GetAllocation(assetID, goalID string) (core.Allocation, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT asset_id, goal_id, amount, updated_at
		FROM allocations WHERE asset_id = ? AND goal_id = ?`, assetID, goalID)
	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Allocation{}, fmt.Errorf("allocation %s/%s: %w", assetID, goalID, core.ErrNotFound)
	}
	return a, err
}

func (t *sqliteTx) ListAllocationsByAsset(assetID string) ([]core.Allocation, error) {
	return t.listAllocations(`SELECT asset_id, goal_id, amount, updated_at
		FROM allocations WHERE asset_id = ? ORDER BY goal_id`, assetID)
}

func (t *sqliteTx) ListAllocationsByGoal(goalID string) ([]core.Allocation, error) {
	return t.listAllocations(`SELECT asset_id, goal_id, amount, updated_at
		FROM allocations WHERE goal_id = ? ORDER BY asset_id`, goalID)
}

func (t *sqliteTx) listAllocations(query string, arg any) ([]core.Allocation, error) {
	rows, err := t.tx.QueryContext(t.ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var allocs []core.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

func (t *sqliteTx) UpsertAllocation(a core.Allocation) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO allocations (asset_id, goal_id, amount, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (asset_id, goal_id) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		a.AssetID, a.GoalID, a.Amount.String(), fmtTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert allocation: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteAllocation(assetID, goalID string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM allocations WHERE asset_id = ? AND goal_id = ?`, assetID, goalID)
	if err != nil {
		return fmt.Errorf("delete allocation: %w", err)
	}
	return nil
}

func (t *sqliteTx) AppendAllocationHistory(e core.AllocationHistoryEntry) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO allocation_history (asset_id, goal_id, amount, created_at)
		VALUES (?, ?, ?, ?)`,
		e.AssetID, e.GoalID, e.Amount.String(), fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("append allocation history: %w", err)
	}
	return nil
}

func (t *sqliteTx) ListAllocationHistory(assetID string, limit int) ([]core.AllocationHistoryEntry, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, asset_id, goal_id, amount, created_at
		FROM allocation_history WHERE asset_id = ?
		ORDER BY id DESC LIMIT ?`, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list allocation history: %w", err)
	}
	defer rows.Close()

	var entries []core.AllocationHistoryEntry
	for rows.Next() {
		var e core.AllocationHistoryEntry
		var amount, createdAt string
		if err := rows.Scan(&e.ID, &e.AssetID, &e.GoalID, &amount, &createdAt); err != nil {
			return nil, err
		}
		if e.Amount, err = parseDec(amount); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanAllocation(row rowScanner) (core.Allocation, error) {
	var a core.Allocation
	var amount, updatedAt string
	if err := row.Scan(&a.AssetID, &a.GoalID, &amount, &updatedAt); err != nil {
		return core.Allocation{}, err
	}

	var err error
	if a.Amount, err = parseDec(amount); err != nil {
		return core.Allocation{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Allocation{}, err
	}
	return a, nil
}
