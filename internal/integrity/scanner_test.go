package integrity

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/internal/store"
)

func ptr(v int64) *int64 { return &v }

// openTestStore creates a store on a fresh temp database.
func openTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

// seedWallets inserts one wallet per key, with ascending creation times.
// A nil key leaves the display order unset.
func seedWallets(t *testing.T, s *store.Store, keys []*int64) []int64 {
	t.Helper()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]int64, len(keys))
	for i, key := range keys {
		id, err := s.InsertWallet(context.Background(), store.Wallet{
			Name:         fmt.Sprintf("wallet-%d", i),
			DisplayOrder: key,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestScan_EmptyCollection(t *testing.T) {
	s := openTestStore(t)

	issues, err := NewScanner(s).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestScan_HealthyCollection(t *testing.T) {
	s := openTestStore(t)
	seedWallets(t, s, []*int64{ptr(0), ptr(1), ptr(2)})

	issues, err := NewScanner(s).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestScan_NullKeys(t *testing.T) {
	s := openTestStore(t)
	ids := seedWallets(t, s, []*int64{ptr(0), nil, nil})

	issues, err := NewScanner(s).Scan(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, issues)
	assert.Equal(t, IssueNullKey, issues[0].Type)
	assert.Equal(t, SeverityCritical, issues[0].Severity)
	assert.Equal(t, []int64{ids[1], ids[2]}, issues[0].AffectedIDs)
}

func TestScan_NegativeKeys(t *testing.T) {
	s := openTestStore(t)
	ids := seedWallets(t, s, []*int64{ptr(0), ptr(-1), ptr(1)})

	issues, err := NewScanner(s).Scan(context.Background())
	require.NoError(t, err)

	var found *Issue
	for i := range issues {
		if issues[i].Type == IssueNegativeKey {
			found = &issues[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, SeverityHigh, found.Severity)
	assert.Equal(t, []int64{ids[1]}, found.AffectedIDs)
}

func TestScan_DuplicateKeys(t *testing.T) {
	s := openTestStore(t)
	ids := seedWallets(t, s, []*int64{ptr(0), ptr(0), ptr(1)})

	issues, err := NewScanner(s).Scan(context.Background())
	require.NoError(t, err)

	var dups []Issue
	for _, issue := range issues {
		if issue.Type == IssueDuplicateKey {
			dups = append(dups, issue)
		}
	}
	require.Len(t, dups, 1, "one issue per duplicate group")
	assert.Equal(t, SeverityCritical, dups[0].Severity)
	assert.Equal(t, []int64{ids[0], ids[1]}, dups[0].AffectedIDs,
		"the duplicate issue names every wallet holding the key")
}

func TestScan_SequenceGap(t *testing.T) {
	s := openTestStore(t)
	seedWallets(t, s, []*int64{ptr(0), ptr(2)})

	issues, err := NewScanner(s).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, IssueSequenceGap, issues[0].Type)
	assert.Equal(t, SeverityMedium, issues[0].Severity)
	assert.Equal(t, []int64{1}, issues[0].AffectedIDs, "missing value 1 is reported")
}

func TestAnalyze_ChecksRunIndependently(t *testing.T) {
	// One collection violating all four checks at once.
	wallets := []store.Wallet{
		{ID: 1, DisplayOrder: nil},
		{ID: 2, DisplayOrder: ptr(-5)},
		{ID: 3, DisplayOrder: ptr(7)},
		{ID: 4, DisplayOrder: ptr(7)},
	}

	issues := Analyze(wallets)

	types := make([]IssueType, len(issues))
	for i, issue := range issues {
		types[i] = issue.Type
	}
	assert.Equal(t, []IssueType{
		IssueNullKey,
		IssueNegativeKey,
		IssueDuplicateKey,
		IssueSequenceGap,
	}, types, "issue order is fixed for deterministic reports")
}

func TestAnalyze_DuplicateGroupsOrderedByKey(t *testing.T) {
	wallets := []store.Wallet{
		{ID: 1, DisplayOrder: ptr(5)},
		{ID: 2, DisplayOrder: ptr(5)},
		{ID: 3, DisplayOrder: ptr(2)},
		{ID: 4, DisplayOrder: ptr(2)},
	}

	issues := Analyze(wallets)

	var dups []Issue
	for _, issue := range issues {
		if issue.Type == IssueDuplicateKey {
			dups = append(dups, issue)
		}
	}
	require.Len(t, dups, 2)
	assert.Equal(t, []int64{3, 4}, dups[0].AffectedIDs, "lower key group first")
	assert.Equal(t, []int64{1, 2}, dups[1].AffectedIDs)
}
