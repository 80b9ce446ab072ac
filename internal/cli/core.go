package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tallyhq/tally/internal/gate"
	"github.com/tallyhq/tally/internal/metrics"
	"github.com/tallyhq/tally/internal/store"
)

// withCore opens the store, starts a write gate worker, runs fn, then
// shuts the gate down cleanly. Every command that writes goes through
// here so the CLI honors the single-flight write discipline even for
// one-shot invocations.
func withCore(opts *RootOptions, fn func(ctx context.Context, st *store.Store, g *gate.Gate) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(opts.Config.DB.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	g := gate.New(
		gate.WithSink(metrics.NewSlogSink(nil)),
		gate.WithWarnThreshold(opts.Config.Gate.WarnThreshold),
		gate.WithRetryPolicy(gate.RetryPolicy{
			MaxRetries: opts.Config.Gate.MaxRetries,
			BaseDelay:  opts.Config.Gate.BaseDelay(),
		}),
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Run(ctx) // returns ctx.Err() on signal; queued ops are drained
	}()

	fnErr := fn(ctx, st, g)

	g.Stop()
	<-done

	return fnErr
}
