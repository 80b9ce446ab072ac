package integrity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tallyhq/tally/internal/store"
)

// Scanner runs the read-only integrity pass over the wallet collection.
type Scanner struct {
	store *store.Store
}

// NewScanner creates a scanner over s.
func NewScanner(s *store.Store) *Scanner {
	return &Scanner{store: s}
}

// Scan checks the ordering invariant and returns every violation found.
// Returns an empty slice for an empty or healthy collection.
//
// Scan never mutates anything and does not take the write gate: it may
// observe a write in flight. Callers needing a quiesced view can enqueue
// the scan through the gate themselves.
func (s *Scanner) Scan(ctx context.Context) ([]Issue, error) {
	wallets, err := s.store.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("integrity scan: %w", err)
	}
	return Analyze(wallets), nil
}

// Analyze runs the four invariant checks over an in-memory snapshot.
// Checks run unconditionally and independently, in a fixed order, so the
// issue list is deterministic for a given collection state:
//
//  1. null order keys (critical)
//  2. negative order keys (high)
//  3. duplicate order keys, one issue per duplicate group (critical)
//  4. sequence gaps against the expected range [0, N-1] (medium)
func Analyze(wallets []store.Wallet) []Issue {
	issues := []Issue{}

	// Check 1: null keys
	var nullIDs []int64
	for _, w := range wallets {
		if w.DisplayOrder == nil {
			nullIDs = append(nullIDs, w.ID)
		}
	}
	if len(nullIDs) > 0 {
		issues = append(issues, Issue{
			Type:           IssueNullKey,
			Severity:       SeverityCritical,
			Description:    fmt.Sprintf("%d wallet(s) have no display order: ids %s", len(nullIDs), formatIDs(nullIDs)),
			AffectedIDs:    nullIDs,
			Recommendation: "run repair to assign contiguous display orders",
		})
	}

	// Check 2: negative keys
	var negativeIDs []int64
	for _, w := range wallets {
		if w.DisplayOrder != nil && *w.DisplayOrder < 0 {
			negativeIDs = append(negativeIDs, w.ID)
		}
	}
	if len(negativeIDs) > 0 {
		issues = append(issues, Issue{
			Type:           IssueNegativeKey,
			Severity:       SeverityHigh,
			Description:    fmt.Sprintf("%d wallet(s) have a negative display order: ids %s", len(negativeIDs), formatIDs(negativeIDs)),
			AffectedIDs:    negativeIDs,
			Recommendation: "run repair to assign contiguous display orders",
		})
	}

	// Check 3: duplicate keys, one issue per duplicate group
	byKey := map[int64][]int64{}
	for _, w := range wallets {
		if w.DisplayOrder != nil {
			byKey[*w.DisplayOrder] = append(byKey[*w.DisplayOrder], w.ID)
		}
	}
	var dupKeys []int64
	for key, ids := range byKey {
		if len(ids) > 1 {
			dupKeys = append(dupKeys, key)
		}
	}
	sort.Slice(dupKeys, func(i, j int) bool { return dupKeys[i] < dupKeys[j] })
	for _, key := range dupKeys {
		ids := byKey[key]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		issues = append(issues, Issue{
			Type:           IssueDuplicateKey,
			Severity:       SeverityCritical,
			Description:    fmt.Sprintf("display order %d is shared by %d wallets: ids %s", key, len(ids), formatIDs(ids)),
			AffectedIDs:    ids,
			Recommendation: "run repair to deduplicate display orders",
		})
	}

	// Check 4: sequence gaps against [0, N-1], N = total wallet count.
	// AffectedIDs holds the missing key values here.
	var missing []int64
	for expected := int64(0); expected < int64(len(wallets)); expected++ {
		if _, ok := byKey[expected]; !ok {
			missing = append(missing, expected)
		}
	}
	if len(missing) > 0 {
		issues = append(issues, Issue{
			Type:           IssueSequenceGap,
			Severity:       SeverityMedium,
			Description:    fmt.Sprintf("display order sequence has %d gap(s): missing %s", len(missing), formatIDs(missing)),
			AffectedIDs:    missing,
			Recommendation: "run repair to close sequence gaps",
		})
	}

	return issues
}

// formatIDs renders ids as a compact comma-separated list.
func formatIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
