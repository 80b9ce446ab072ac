package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/gate"
	"github.com/tallyhq/tally/internal/integrity"
	"github.com/tallyhq/tally/internal/store"
)

// NewIntegrityCommand creates the integrity command group.
func NewIntegrityCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Check and repair wallet ordering",
	}

	cmd.AddCommand(newIntegrityCheckCommand(rootOpts))
	cmd.AddCommand(newIntegrityRepairCommand(rootOpts))

	return cmd
}

func newIntegrityCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Scan the wallet ordering invariant",
		Long: `Scan the wallet collection for ordering-invariant violations.

The scan is read-only. Exit code 0 means the collection is healthy;
exit code 1 means issues were found (listed in the report).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(rootOpts, func(ctx context.Context, st *store.Store, g *gate.Gate) error {
				issues, err := integrity.NewScanner(st).Scan(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "integrity scan failed", err)
				}

				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
				if err := out.Success(issues, RenderIssues(issues)); err != nil {
					return err
				}

				if len(issues) > 0 {
					return NewExitError(ExitFailure, "integrity issues found")
				}
				return nil
			})
		},
	}
}

func newIntegrityRepairCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair the wallet ordering invariant",
		Long: `Recompute a contiguous zero-based display order and apply it.

A real repair snapshots the wallet collection into a timestamped backup
table, rewrites every order key in one transaction through the write
gate's exclusive slot, then re-scans to verify. With --dry-run, the plan
is computed and reported without creating a backup or touching the store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(rootOpts, func(ctx context.Context, st *store.Store, g *gate.Gate) error {
				repairer := integrity.NewRepairer(st, integrity.WithGate(g))
				result, err := repairer.Repair(ctx, dryRun)
				if err != nil {
					return WrapExitError(ExitCommandError, "repair failed", err)
				}

				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
				if err := out.Success(result, RenderResult(result, dryRun)); err != nil {
					return err
				}

				if !result.Success {
					return NewExitError(ExitFailure, "repair did not converge")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the plan without mutating the store")

	return cmd
}
