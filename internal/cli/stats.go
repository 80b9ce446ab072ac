package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/gate"
	"github.com/tallyhq/tally/internal/store"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store and write-queue statistics",
		Long: `Show wallet counts, backup snapshot counts, and the write gate's
queue depth and high-water mark for this invocation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(rootOpts, func(ctx context.Context, st *store.Store, g *gate.Gate) error {
				wallets, err := st.CountWallets(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to count wallets", err)
				}
				backups, err := st.ListBackups(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list backups", err)
				}

				qs := g.Stats()
				data := map[string]any{
					"wallets":       wallets,
					"backups":       len(backups),
					"current_depth": qs.CurrentDepth,
					"max_depth":     qs.MaxDepth,
				}
				text := fmt.Sprintf(
					"wallets: %d\nbackups: %d\nqueue depth: %d (high water: %d)",
					wallets, len(backups), qs.CurrentDepth, qs.MaxDepth,
				)

				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
				return out.Success(data, text)
			})
		},
	}
}
