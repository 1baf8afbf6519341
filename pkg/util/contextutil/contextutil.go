package contextutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	ErrShutdown      = errors.New("linefleet shutdown requested")
	ErrOperatorAbort = errors.New("operator cancelled after repeated connection failures")
)

func SetupSignals(ctx context.Context) context.Context {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
	ctxCa, ca := context.WithCancelCause(ctx)
	go func() {
		defer signal.Stop(sig)
		defer ca(fmt.Errorf("signal received : %w", ErrShutdown))
		select {
		case <-sig:
			slog.Info("interrupt received")
		case <-ctxCa.Done():
		}
	}()
	return ctxCa
}

// Sleep waits for d in slices of at most step, returning early with false
// when ctx is done or stop reports true.
func Sleep(ctx context.Context, d, step time.Duration, stop func() bool) bool {
	for d > 0 {
		if stop != nil && stop() {
			return false
		}
		wait := min(d, step)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		d -= wait
	}
	return stop == nil || !stop()
}
