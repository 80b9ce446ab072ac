package cli

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tallyhq/tally/internal/gate"
	"github.com/tallyhq/tally/internal/store"
)

// NewWalletCommand creates the wallet command group.
func NewWalletCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage wallets",
	}

	cmd.AddCommand(newWalletAddCommand(rootOpts))
	cmd.AddCommand(newWalletListCommand(rootOpts))
	cmd.AddCommand(newWalletMoveCommand(rootOpts))

	return cmd
}

func newWalletAddCommand(rootOpts *RootOptions) *cobra.Command {
	var currency string
	var balance int64

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a wallet",
		Long: `Add a wallet and place it at the end of the display order.

The insert and its placement run as one serialized write through the
write gate.

Example:
  tally --db ledger.db wallet add Groceries --currency EUR --balance 12050`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(rootOpts, func(ctx context.Context, st *store.Store, g *gate.Gate) error {
				name := args[0]
				val, err := g.Do(ctx, func(opCtx context.Context) (any, error) {
					return addWallet(opCtx, st, name, currency, balance)
				}, "wallet add")
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to add wallet", err)
				}

				id := val.(int64)
				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
				return out.Success(
					map[string]any{"id": id, "name": name},
					fmt.Sprintf("added wallet %d (%s)", id, name),
				)
			})
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO currency code")
	cmd.Flags().Int64Var(&balance, "balance", 0, "opening balance in minor units (cents)")

	return cmd
}

// addWallet inserts a wallet and appends it to the display order in one
// transaction. Runs on the gate's worker goroutine.
func addWallet(ctx context.Context, st *store.Store, name, currency string, balance int64) (int64, error) {
	var id int64
	err := st.Transact(ctx, func(tx *sql.Tx) error {
		count, err := txWalletCount(ctx, tx)
		if err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `
			INSERT INTO wallets (name, currency, balance_minor, display_order)
			VALUES (?, ?, ?, ?)
		`, name, currency, balance, count)
		if err != nil {
			return fmt.Errorf("insert wallet: %w", err)
		}
		id, err = result.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert wallet: last insert id: %w", err)
		}
		return nil
	})
	return id, err
}

func newWalletListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List wallets in display order",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(rootOpts, func(ctx context.Context, st *store.Store, g *gate.Gate) error {
				wallets, err := st.ListWalletsByPosition(ctx)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to list wallets", err)
				}

				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
				return out.Success(wallets, renderWallets(wallets))
			})
		},
	}
}

// renderWallets formats the wallet table, with locale-aware amount
// grouping for balances.
func renderWallets(wallets []store.Wallet) string {
	if len(wallets) == 0 {
		return "no wallets"
	}

	p := message.NewPrinter(language.English)
	var b strings.Builder
	for _, w := range wallets {
		pos := "-"
		if w.DisplayOrder != nil {
			pos = strconv.FormatInt(*w.DisplayOrder, 10)
		}
		b.WriteString(p.Sprintf("%3s  #%-4d %-20s %s %.2f\n",
			pos, w.ID, w.Name, w.Currency, float64(w.BalanceMinor)/100))
	}
	return strings.TrimRight(b.String(), "\n")
}

func newWalletMoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <position>",
		Short: "Move a wallet to a display position",
		Long: `Move a wallet to a zero-based display position.

The whole reorder is one serialized write: every wallet's display order
is rewritten contiguously in a single transaction.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid wallet id", err)
			}
			pos, err := strconv.Atoi(args[1])
			if err != nil || pos < 0 {
				return NewExitError(ExitCommandError, "position must be a non-negative integer")
			}

			return withCore(rootOpts, func(ctx context.Context, st *store.Store, g *gate.Gate) error {
				_, err := g.Do(ctx, func(opCtx context.Context) (any, error) {
					return nil, moveWallet(opCtx, st, id, pos)
				}, "wallet move")
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to move wallet", err)
				}

				out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
				return out.Success(
					map[string]any{"id": id, "position": pos},
					fmt.Sprintf("moved wallet %d to position %d", id, pos),
				)
			})
		},
	}
}

// moveWallet rewrites all display orders with the target wallet placed at
// pos (clamped to the collection size). Runs on the gate's worker.
func moveWallet(ctx context.Context, st *store.Store, id int64, pos int) error {
	wallets, err := st.ListWalletsByPosition(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i, w := range wallets {
		if w.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("wallet %d not found", id)
	}

	target := wallets[idx]
	rest := append(append([]store.Wallet{}, wallets[:idx]...), wallets[idx+1:]...)
	if pos > len(rest) {
		pos = len(rest)
	}
	ordered := append(append(append([]store.Wallet{}, rest[:pos]...), target), rest[pos:]...)

	return st.Transact(ctx, func(tx *sql.Tx) error {
		for i, w := range ordered {
			if err := store.SetDisplayOrderTx(ctx, tx, w.ID, int64(i)); err != nil {
				return err
			}
		}
		return nil
	})
}

// txWalletCount counts wallets inside an open transaction.
func txWalletCount(ctx context.Context, tx *sql.Tx) (int64, error) {
	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count wallets: %w", err)
	}
	return count, nil
}
