// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package mount provides scoped mount points which are always released.
package mount

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
)

// Point describes a single mount.
type Point struct {
	Source string
	Target string
	FSType string
	Flags  uintptr
	Data   string
}

// NewPoint returns a Point for source mounted at target.
func NewPoint(source, target, fstype string) *Point {
	return &Point{
		Source: source,
		Target: target,
		FSType: fstype,
	}
}

// String implements fmt.Stringer.
func (p *Point) String() string {
	return fmt.Sprintf("%s on %s", p.Source, p.Target)
}

// Unmounter releases a mount created by Mounter.
type Unmounter func() error

// Mounter creates mounts.
type Mounter interface {
	Mount(ctx context.Context, p *Point) (Unmounter, error)
}

// With mounts p, runs fn with the mount target and unmounts before returning.
//
// The unmount runs on every path out of fn; its error is appended to fn's.
func With(ctx context.Context, m Mounter, p *Point, fn func(target string) error) (err error) {
	if err = os.MkdirAll(p.Target, 0o755); err != nil {
		return fmt.Errorf("failed to create mount target %s: %w", p.Target, err)
	}

	unmount, err := m.Mount(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to mount %s: %w", p, err)
	}

	defer func() {
		if unmountErr := unmount(); unmountErr != nil {
			err = multierror.Append(err, fmt.Errorf("failed to unmount %s: %w", p, unmountErr)).ErrorOrNil()
		}
	}()

	return fn(p.Target)
}

func discard(string, ...any) {}
