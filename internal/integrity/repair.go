package integrity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/tallyhq/tally/internal/gate"
	"github.com/tallyhq/tally/internal/store"
)

// Result reports the outcome of a repair run.
type Result struct {
	Success       bool     `json:"success"`
	IssuesFound   int      `json:"issues_found"`
	IssuesFixed   int      `json:"issues_fixed"`
	BackupCreated bool     `json:"backup_created"`
	BackupName    string   `json:"backup_name,omitempty"`
	Errors        []string `json:"errors"`
}

// PlanEntry assigns one wallet its repaired order key.
type PlanEntry struct {
	ID     int64
	NewKey int64
}

// Repairer recomputes a valid contiguous zero-based ordering for the
// wallet collection and applies it safely.
type Repairer struct {
	store   *store.Store
	scanner *Scanner
	gate    *gate.Gate
	logger  *slog.Logger
	now     func() time.Time

	// applyFault lets tests force a failure partway through the apply
	// transaction to exercise rollback and restore paths.
	applyFault func(i int, e PlanEntry) error
}

// RepairOption configures a Repairer.
type RepairOption func(*Repairer)

// WithGate routes the repair's mutation step through g, taking the
// exclusive write slot for the whole backup-and-rewrite transaction so it
// cannot race an unrelated write.
func WithGate(g *gate.Gate) RepairOption {
	return func(r *Repairer) {
		r.gate = g
	}
}

// WithLogger sets the repairer's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RepairOption {
	return func(r *Repairer) {
		r.logger = logger
	}
}

// WithNow overrides the clock used to name backup snapshots.
// Intended for deterministic tests.
func WithNow(now func() time.Time) RepairOption {
	return func(r *Repairer) {
		r.now = now
	}
}

// NewRepairer creates a repairer over s.
func NewRepairer(s *store.Store, opts ...RepairOption) *Repairer {
	r := &Repairer{
		store:   s,
		scanner: NewScanner(s),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan computes the remediation plan for the current collection state
// without touching the store. The ranking is identical to the one a real
// repair applies: order key ascending with null/negative sorting last,
// creation time ascending as tiebreak, id ascending as final tiebreak.
func (r *Repairer) Plan(ctx context.Context) ([]PlanEntry, error) {
	wallets, err := r.store.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("repair plan: %w", err)
	}
	return ComputePlan(wallets), nil
}

// ComputePlan ranks an in-memory snapshot and assigns keys 0..N-1.
func ComputePlan(wallets []store.Wallet) []PlanEntry {
	ranked := make([]store.Wallet, len(wallets))
	copy(ranked, wallets)

	sort.SliceStable(ranked, func(i, j int) bool {
		ki, kj := rankKey(ranked[i]), rankKey(ranked[j])
		if ki != kj {
			return ki < kj
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})

	plan := make([]PlanEntry, len(ranked))
	for i, w := range ranked {
		plan[i] = PlanEntry{ID: w.ID, NewKey: int64(i)}
	}
	return plan
}

// rankKey maps a wallet's current order key for ranking: null and
// negative keys sort last, behind every valid key.
func rankKey(w store.Wallet) int64 {
	if w.DisplayOrder == nil || *w.DisplayOrder < 0 {
		return math.MaxInt64
	}
	return *w.DisplayOrder
}

// Repair scans the collection and, unless dryRun is set, rewrites every
// wallet's order key inside a single backed-up transaction and verifies
// the result.
//
// Data-state anomalies are reported through the Result, never as errors;
// the returned error is reserved for store-access failure.
func (r *Repairer) Repair(ctx context.Context, dryRun bool) (Result, error) {
	issues, err := r.scanner.Scan(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		IssuesFound: len(issues),
		Errors:      []string{},
	}

	if len(issues) == 0 {
		result.Success = true
		return result, nil
	}

	if dryRun {
		// Plan is computed for its side-effect-free issue count only;
		// the identical ranking runs again in a real repair.
		if _, err := r.Plan(ctx); err != nil {
			return Result{}, err
		}
		result.Success = true
		result.IssuesFixed = len(issues)
		r.logger.Info("integrity repair dry run",
			"issues_found", result.IssuesFound,
		)
		return result, nil
	}

	if r.gate != nil {
		// Take the exclusive write slot for the whole mutation step.
		_, gateErr := r.gate.Do(ctx, func(opCtx context.Context) (any, error) {
			r.mutate(opCtx, &result)
			return nil, nil
		}, "integrity repair")
		if gateErr != nil {
			return Result{}, fmt.Errorf("repair: gate: %w", gateErr)
		}
	} else {
		r.mutate(ctx, &result)
	}
	if !result.Success && len(result.Errors) > 0 {
		return result, nil
	}

	// Re-verify: success is a strict before/after issue-count delta.
	post, err := r.scanner.Scan(ctx)
	if err != nil {
		return Result{}, err
	}

	result.IssuesFixed = result.IssuesFound - len(post)
	result.Success = len(post) == 0
	if !result.Success {
		result.Errors = append(result.Errors,
			fmt.Sprintf("verification found %d residual issue(s)", len(post)))
	}

	r.logger.Info("integrity repair finished",
		"success", result.Success,
		"issues_found", result.IssuesFound,
		"issues_fixed", result.IssuesFixed,
		"backup", result.BackupName,
	)

	return result, nil
}

// mutate performs backup, plan recomputation, and the transactional
// rewrite. Failures are recorded on result; a transaction failure
// triggers a best-effort restore from the just-created backup, with a
// restore failure appended as an additional error.
func (r *Repairer) mutate(ctx context.Context, result *Result) {
	backup, err := r.store.CreateBackupAt(ctx, r.now())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("create backup: %v", err))
		return
	}
	result.BackupCreated = true
	result.BackupName = backup

	wallets, err := r.store.ListWallets(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("read wallets: %v", err))
		return
	}
	plan := ComputePlan(wallets)

	txErr := r.store.Transact(ctx, func(tx *sql.Tx) error {
		for i, entry := range plan {
			if r.applyFault != nil {
				if err := r.applyFault(i, entry); err != nil {
					return err
				}
			}
			if err := store.SetDisplayOrderTx(ctx, tx, entry.ID, entry.NewKey); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("apply repair plan: %v", txErr))
		r.logger.Error("repair transaction failed, restoring from backup",
			"backup", backup,
			"error", txErr,
		)
		if restoreErr := r.store.RestoreBackup(ctx, backup); restoreErr != nil {
			// Appended, never substituted: the original failure stays first.
			result.Errors = append(result.Errors, fmt.Sprintf("restore backup %s: %v", backup, restoreErr))
		}
		return
	}

	result.Success = true
}
