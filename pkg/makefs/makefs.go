// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package makefs provides functions to create, check and shrink ext filesystems.
package makefs

import (
	"context"

	"github.com/siderolabs/go-cmd/pkg/cmd"
)

// Runner executes a tool and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// Option to control makefs settings.
type Option func(*Options)

// Options for makefs.
type Options struct {
	Force bool

	Printf func(string, ...any)
	Run    Runner
}

// WithForce forces creation of a filesystem even if one already exists.
func WithForce(force bool) Option {
	return func(o *Options) {
		o.Force = force
	}
}

// WithPrintf sets the progress printer.
func WithPrintf(printf func(string, ...any)) Option {
	return func(o *Options) {
		o.Printf = printf
	}
}

// WithRunner replaces the tool runner.
func WithRunner(run Runner) Option {
	return func(o *Options) {
		o.Run = run
	}
}

// NewDefaultOptions builds options with specified setters applied.
func NewDefaultOptions(setters ...Option) Options {
	opt := Options{
		Printf: func(string, ...any) {},
		Run:    cmd.RunContext,
	}

	for _, o := range setters {
		o(&opt)
	}

	return opt
}
