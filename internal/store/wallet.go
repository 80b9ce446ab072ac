package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Wallet is a ledger account with a display position.
//
// DisplayOrder is the ordering key checked by the integrity scanner: nil
// until the wallet is placed, and over a healthy collection the non-nil
// values form exactly the contiguous range [0, count-1].
type Wallet struct {
	ID           int64
	Name         string
	Currency     string
	BalanceMinor int64 // balance in minor units (cents)
	DisplayOrder *int64
	CreatedAt    time.Time
}

// walletColumns is the canonical column list shared by reads and backups.
const walletColumns = "id, name, currency, balance_minor, display_order, created_at"

// ListWallets returns all wallets ordered deterministically by id.
// Returns an empty slice (not nil) when no wallets exist.
func (s *Store) ListWallets(ctx context.Context) ([]Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	defer rows.Close()

	wallets := []Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}

	return wallets, nil
}

// ListWalletsByPosition returns wallets in display order for presentation:
// placed wallets first by ascending display_order, unplaced wallets last by
// creation time.
func (s *Store) ListWalletsByPosition(ctx context.Context) ([]Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		ORDER BY display_order IS NULL, display_order ASC, created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query wallets by position: %w", err)
	}
	defer rows.Close()

	wallets := []Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallets: %w", err)
	}

	return wallets, nil
}

// InsertWallet inserts a wallet and returns its generated id.
// A zero CreatedAt defaults to the current time.
func (s *Store) InsertWallet(ctx context.Context, w Wallet) (int64, error) {
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (name, currency, balance_minor, display_order, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		w.Name,
		w.Currency,
		w.BalanceMinor,
		displayOrderArg(w.DisplayOrder),
		createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert wallet: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert wallet: last insert id: %w", err)
	}
	return id, nil
}

// SetDisplayOrder updates a single wallet's ordering key.
// Returns an error if the wallet does not exist.
func (s *Store) SetDisplayOrder(ctx context.Context, id, order int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE wallets SET display_order = ? WHERE id = ?
	`, order, id)
	if err != nil {
		return fmt.Errorf("set display order: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set display order: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("set display order: wallet %d not found", id)
	}
	return nil
}

// SetDisplayOrderTx updates a wallet's ordering key inside an existing
// transaction. Used by the repair engine's atomic apply step.
func SetDisplayOrderTx(ctx context.Context, tx *sql.Tx, id, order int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET display_order = ? WHERE id = ?
	`, order, id)
	if err != nil {
		return fmt.Errorf("set display order for wallet %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set display order for wallet %d: rows affected: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("set display order: wallet %d not found", id)
	}
	return nil
}

// CountWallets returns the total number of wallets.
func (s *Store) CountWallets(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count wallets: %w", err)
	}
	return count, nil
}

// scanWallet reads one wallet row from the standard column list.
func scanWallet(rows *sql.Rows) (Wallet, error) {
	var w Wallet
	var order sql.NullInt64
	if err := rows.Scan(&w.ID, &w.Name, &w.Currency, &w.BalanceMinor, &order, &w.CreatedAt); err != nil {
		return Wallet{}, fmt.Errorf("scan wallet: %w", err)
	}
	if order.Valid {
		v := order.Int64
		w.DisplayOrder = &v
	}
	return w, nil
}

// displayOrderArg converts the optional ordering key for parameter binding.
func displayOrderArg(order *int64) any {
	if order == nil {
		return nil
	}
	return *order
}
