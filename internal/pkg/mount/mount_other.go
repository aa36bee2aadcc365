// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build !linux

package mount

import (
	"context"
	"errors"
)

// System is unavailable outside Linux.
type System struct{}

// NewSystem returns a Mounter which always fails.
func NewSystem(func(string, ...any)) *System {
	return &System{}
}

// Mount implements Mounter.
func (s *System) Mount(context.Context, *Point) (Unmounter, error) {
	return nil, errors.New("mounting is only supported on Linux")
}
