package kunci

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// ShutdownOnSignal runs closeFn once when one of signals arrives or ctx ends,
// giving it timeout to finish. With no signals it listens for SIGINT and
// SIGTERM. The returned stop function unregisters without calling closeFn.
//
//	stop := kunci.ShutdownOnSignal(ctx, queue.Close, 5*time.Second)
//	defer stop()
func ShutdownOnSignal(ctx context.Context, closeFn func(context.Context), timeout time.Duration, signals ...os.Signal) (stop func()) {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	sigCtx, cancel := signal.NotifyContext(ctx, signals...)
	var released atomic.Bool

	go func() {
		<-sigCtx.Done()
		if released.Load() {
			return
		}
		closeCtx, closeCancel := context.WithTimeout(context.Background(), timeout)
		defer closeCancel()
		closeFn(closeCtx)
	}()

	return func() {
		released.Store(true)
		cancel()
	}
}
