package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/gate"
	"github.com/tallyhq/tally/internal/store"
)

// NewBackupCommand creates the backup command group.
//
// Snapshots are created by real repairs and never expire on their own;
// pruning is an explicit operation.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage repair backup snapshots",
	}

	cmd.AddCommand(newBackupListCommand(rootOpts))
	cmd.AddCommand(newBackupPruneCommand(rootOpts))

	return cmd
}

func newBackupListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List backup snapshots, oldest first",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(rootOpts, func(ctx context.Context, st *store.Store, g *gate.Gate) error {
				names, err := st.ListBackups(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list backups", err)
				}

				text := "no backups"
				if len(names) > 0 {
					text = strings.Join(names, "\n")
				}
				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
				return out.Success(names, text)
			})
		},
	}
}

func newBackupPruneCommand(rootOpts *RootOptions) *cobra.Command {
	keep := -1

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop all but the most recent snapshots",
		Long: `Drop all but the most recent backup snapshots.

--keep defaults to the configured backup.keep value. Pruning runs through
the write gate like any other mutation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(rootOpts, func(ctx context.Context, st *store.Store, g *gate.Gate) error {
				n := keep
				if n < 0 {
					n = rootOpts.Config.Backup.Keep
				}

				val, err := g.Do(ctx, func(opCtx context.Context) (any, error) {
					return st.PruneBackups(opCtx, n)
				}, "backup prune")
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to prune backups", err)
				}

				dropped := val.([]string)
				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
				return out.Success(
					map[string]any{"dropped": dropped, "kept": n},
					fmt.Sprintf("dropped %d snapshot(s), keeping %d", len(dropped), n),
				)
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", -1, "snapshots to retain (default from config)")

	return cmd
}
