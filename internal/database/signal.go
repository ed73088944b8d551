package database

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownSignals end a migration run. The run stops after the page or
// batch in progress; ledger rows written so far are kept and the next run
// resumes after them.
var ShutdownSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}

// InterruptContext derives a context from parent that is canceled by the
// first shutdown signal. onSignal, when set, runs before the cancellation,
// typically to log that the run is winding down. The returned stop function
// releases the signal handler and cancels the context; call it once the
// run is over.
func InterruptContext(parent context.Context, onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, ShutdownSignals...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case sig := <-sigChan:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	stop := func() {
		signal.Stop(sigChan)
		cancel()
		<-done
	}
	return ctx, stop
}
