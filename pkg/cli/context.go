// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cli provides helpers shared by the command line entrypoints.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// WithContext wraps function call to provide a context cancellable with ^C.
//
// The running stage is allowed to finish, the next one is not started.
// Signals stay captured until f returns, repeating ^C does not kill the process.
func WithContext(ctx context.Context, f func(context.Context) error) error {
	return withSignals(ctx, os.Stderr, []os.Signal{os.Interrupt, syscall.SIGTERM}, f)
}

func withSignals(ctx context.Context, out io.Writer, signals []os.Signal, f func(context.Context) error) error {
	wrappedCtx, wrappedCtxCancel := context.WithCancel(ctx)
	defer wrappedCtxCancel()

	// listen for ^C and SIGTERM and abort context
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)

	exited := make(chan struct{})
	stopped := make(chan struct{})

	defer func() {
		close(exited)
		<-stopped

		signal.Stop(sigCh)
	}()

	go func() {
		defer close(stopped)

		aborting := false

		for {
			select {
			case <-sigCh:
				if aborting {
					fmt.Fprintln(out, "Signal received again, still waiting for the current stage to finish...")

					continue
				}

				aborting = true

				wrappedCtxCancel()

				fmt.Fprintln(out, "Signal received, aborting after the current stage...")
			case <-exited:
				return
			}
		}
	}()

	return f(wrappedCtx)
}
