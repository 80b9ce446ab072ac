package integrity

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/gate"
	"github.com/tallyhq/tally/internal/store"
)

// fixedNow pins backup snapshot names for deterministic assertions.
func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

// currentKeys reads the id -> order-key mapping from the store.
func currentKeys(t *testing.T, s *store.Store) map[int64]*int64 {
	t.Helper()

	wallets, err := s.ListWallets(context.Background())
	require.NoError(t, err)

	keys := make(map[int64]*int64, len(wallets))
	for _, w := range wallets {
		keys[w.ID] = w.DisplayOrder
	}
	return keys
}

func TestRepair_DryRunTouchesNothing(t *testing.T) {
	s := openTestStore(t)
	seedWallets(t, s, []*int64{nil, ptr(0), ptr(0)})
	before := currentKeys(t, s)

	r := NewRepairer(s, WithNow(fixedNow))
	result, err := r.Repair(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.IssuesFound, "null keys, one duplicate group, and the resulting gap")
	assert.False(t, result.BackupCreated, "dry run creates no backup")

	backups, err := s.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backups)

	assert.Equal(t, before, currentKeys(t, s), "dry run mutates nothing")
}

func TestRepair_HealthyCollectionIsNoOp(t *testing.T) {
	s := openTestStore(t)
	seedWallets(t, s, []*int64{ptr(0), ptr(1)})

	result, err := NewRepairer(s).Repair(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Zero(t, result.IssuesFound)
	assert.False(t, result.BackupCreated, "nothing to fix, nothing to back up")
}

func TestRepair_DryRunRealParity(t *testing.T) {
	s := openTestStore(t)
	seedWallets(t, s, []*int64{ptr(5), nil, ptr(-3), ptr(5), ptr(0)})

	r := NewRepairer(s, WithNow(fixedNow))

	// The plan a dry run would report...
	plan, err := r.Plan(context.Background())
	require.NoError(t, err)

	// ...must equal the keys a real repair writes.
	result, err := r.Repair(context.Background(), false)
	require.NoError(t, err)
	require.True(t, result.Success)

	after := currentKeys(t, s)
	require.Len(t, after, len(plan))
	for _, entry := range plan {
		require.NotNil(t, after[entry.ID])
		assert.Equal(t, entry.NewKey, *after[entry.ID],
			"wallet %d: planned and applied keys diverge", entry.ID)
	}
}

func TestRepair_Ranking(t *testing.T) {
	s := openTestStore(t)
	// Seeded creation times ascend with index, so ties and invalid keys
	// fall back to creation order.
	ids := seedWallets(t, s, []*int64{
		ptr(9), // valid, largest -> position 2
		nil,    // invalid -> after all valid keys, earlier creation -> position 3
		ptr(2), // valid, smallest -> position 0
		ptr(-1), // invalid, later creation -> position 4
		ptr(4), // valid, middle -> position 1
	})

	result, err := NewRepairer(s, WithNow(fixedNow)).Repair(context.Background(), false)
	require.NoError(t, err)
	require.True(t, result.Success)

	after := currentKeys(t, s)
	assert.Equal(t, int64(2), *after[ids[0]])
	assert.Equal(t, int64(3), *after[ids[1]])
	assert.Equal(t, int64(0), *after[ids[2]])
	assert.Equal(t, int64(4), *after[ids[3]])
	assert.Equal(t, int64(1), *after[ids[4]])
}

func TestRepair_Convergence(t *testing.T) {
	corruptions := map[string]func(i int) *int64{
		"all_null":   func(i int) *int64 { return nil },
		"negatives":  func(i int) *int64 { return ptr(int64(-i - 1)) },
		"duplicates": func(i int) *int64 { return ptr(int64(i % 7)) },
		"gaps":       func(i int) *int64 { return ptr(int64(i * 2)) },
	}
	sizes := []int{0, 1, 2, 17, 500}

	for name, corrupt := range corruptions {
		for _, size := range sizes {
			t.Run(fmt.Sprintf("%s_%d", name, size), func(t *testing.T) {
				s := openTestStore(t)

				keys := make([]*int64, size)
				for i := 0; i < size; i++ {
					keys[i] = corrupt(i)
				}
				seedWallets(t, s, keys)

				result, err := NewRepairer(s, WithNow(fixedNow)).Repair(context.Background(), false)
				require.NoError(t, err)
				require.True(t, result.Success, "repair errors: %v", result.Errors)

				issues, err := NewScanner(s).Scan(context.Background())
				require.NoError(t, err)
				assert.Empty(t, issues, "repair must converge to a healthy collection")
			})
		}
	}
}

func TestRepair_RollbackLeavesKeysUntouched(t *testing.T) {
	s := openTestStore(t)
	seedWallets(t, s, []*int64{nil, ptr(3), ptr(3), nil})
	before := currentKeys(t, s)

	boom := errors.New("forced apply failure")
	r := NewRepairer(s, WithNow(fixedNow))
	r.applyFault = func(i int, e PlanEntry) error {
		if i == 2 {
			return boom
		}
		return nil
	}

	result, err := r.Repair(context.Background(), false)
	require.NoError(t, err, "transaction failure is reported via the result, not thrown")

	assert.False(t, result.Success)
	assert.True(t, result.BackupCreated)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "forced apply failure", "the original failure comes first")

	assert.Equal(t, before, currentKeys(t, s), "no partial reordering survives")
}

func TestRepair_ThroughGate(t *testing.T) {
	s := openTestStore(t)
	seedWallets(t, s, []*int64{nil, nil, ptr(0)})

	g := gate.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Run(ctx)
	}()
	defer func() {
		g.Stop()
		<-done
	}()

	r := NewRepairer(s, WithGate(g), WithNow(fixedNow))
	result, err := r.Repair(ctx, false)
	require.NoError(t, err)
	assert.True(t, result.Success)

	issues, err := NewScanner(s).Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestRepair_ReportsIssueCounts(t *testing.T) {
	s := openTestStore(t)
	seedWallets(t, s, []*int64{nil, ptr(-2), ptr(1), ptr(1)})

	result, err := NewRepairer(s, WithNow(fixedNow)).Repair(context.Background(), false)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, result.IssuesFound, result.IssuesFixed, "all found issues fixed")
	assert.True(t, result.BackupCreated)
	assert.Equal(t, "wallets_backup_20250301T120000", result.BackupName)
	assert.Empty(t, result.Errors)
}
