package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"risparmio/internal/core"
)

func (t *sqliteTx) CreateAsset(a core.Asset) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO assets (id, name, currency, current_amount, chain, address, symbol, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Currency, a.CurrentAmount.String(), a.Chain, a.Address, a.Symbol, fmtTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateAsset(a core.Asset) error {
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE assets SET name = ?, currency = ?, current_amount = ?, chain = ?, address = ?, symbol = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.Currency, a.CurrentAmount.String(), a.Chain, a.Address, a.Symbol, fmtTime(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}
	return requireRow(res, "asset", a.ID)
}

func (t *sqliteTx) GetAsset(id string) (core.Asset, error) {
	row := t.tx.QueryRowContext(t.ctx, `
		SELECT id, name, currency, current_amount, chain, address, symbol, updated_at
		FROM assets WHERE id = ?`, id)
	a, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Asset{}, fmt.Errorf("asset %s: %w", id, core.ErrNotFound)
	}
	return a, err
}

func (t *sqliteTx) ListAssets() ([]core.Asset, error) {
	rows, err := t.tx.QueryContext(t.ctx, `
		SELECT id, name, currency, current_amount, chain, address, symbol, updated_at
		FROM assets ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []core.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

func (t *sqliteTx) DeleteAsset(id string) error {
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return requireRow(res, "asset", id)
}

func scanAsset(row rowScanner) (core.Asset, error) {
	var a core.Asset
	var amount, updatedAt string
	if err := row.Scan(&a.ID, &a.Name, &a.Currency, &amount, &a.Chain, &a.Address, &a.Symbol, &updatedAt); err != nil {
		return core.Asset{}, err
	}

	var err error
	if a.CurrentAmount, err = parseDec(amount); err != nil {
		return core.Asset{}, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.Asset{}, err
	}
	return a, nil
}
