package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore creates a store on a fresh temp database.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func ptr(v int64) *int64 { return &v }

func TestOpen_AppliesPragmas(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	wallets, err := s2.ListWallets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, wallets)
}

func TestInsertAndListWallets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id1, err := s.InsertWallet(ctx, Wallet{Name: "Checking", Currency: "USD", BalanceMinor: 125000, DisplayOrder: ptr(0), CreatedAt: created})
	require.NoError(t, err)
	id2, err := s.InsertWallet(ctx, Wallet{Name: "Savings", Currency: "EUR", DisplayOrder: nil, CreatedAt: created.Add(time.Hour)})
	require.NoError(t, err)

	wallets, err := s.ListWallets(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 2)

	assert.Equal(t, id1, wallets[0].ID)
	assert.Equal(t, "Checking", wallets[0].Name)
	assert.Equal(t, int64(125000), wallets[0].BalanceMinor)
	require.NotNil(t, wallets[0].DisplayOrder)
	assert.Equal(t, int64(0), *wallets[0].DisplayOrder)

	assert.Equal(t, id2, wallets[1].ID)
	assert.Nil(t, wallets[1].DisplayOrder)
}

func TestListWalletsByPosition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := s.InsertWallet(ctx, Wallet{Name: "Unplaced", CreatedAt: base, DisplayOrder: nil})
	require.NoError(t, err)
	_, err = s.InsertWallet(ctx, Wallet{Name: "Second", CreatedAt: base, DisplayOrder: ptr(1)})
	require.NoError(t, err)
	_, err = s.InsertWallet(ctx, Wallet{Name: "First", CreatedAt: base, DisplayOrder: ptr(0)})
	require.NoError(t, err)

	wallets, err := s.ListWalletsByPosition(ctx)
	require.NoError(t, err)
	require.Len(t, wallets, 3)
	assert.Equal(t, "First", wallets[0].Name)
	assert.Equal(t, "Second", wallets[1].Name)
	assert.Equal(t, "Unplaced", wallets[2].Name, "unplaced wallets sort last")
}

func TestSetDisplayOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.InsertWallet(ctx, Wallet{Name: "Cash"})
	require.NoError(t, err)

	require.NoError(t, s.SetDisplayOrder(ctx, id, 7))

	wallets, err := s.ListWallets(ctx)
	require.NoError(t, err)
	require.NotNil(t, wallets[0].DisplayOrder)
	assert.Equal(t, int64(7), *wallets[0].DisplayOrder)

	assert.Error(t, s.SetDisplayOrder(ctx, 9999, 0), "missing wallet is an error")
}

func TestTransact_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.InsertWallet(ctx, Wallet{Name: "Cash", DisplayOrder: ptr(3)})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Transact(ctx, func(tx *sql.Tx) error {
		if err := SetDisplayOrderTx(ctx, tx, id, 0); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom, "the callback error is returned unchanged")

	wallets, err := s.ListWallets(ctx)
	require.NoError(t, err)
	require.NotNil(t, wallets[0].DisplayOrder)
	assert.Equal(t, int64(3), *wallets[0].DisplayOrder, "rolled-back write must not survive")
}

func TestCountWallets(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	count, err := s.CountWallets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = s.InsertWallet(ctx, Wallet{Name: "Cash"})
	require.NoError(t, err)

	count, err = s.CountWallets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
