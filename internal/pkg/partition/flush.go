// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package partition

import (
	"context"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
)

// SystemFlusher syncs, flushes the device buffer cache and runs partprobe.
type SystemFlusher struct {
	runner toolexec.Runner
}

// NewSystemFlusher returns a SystemFlusher.
func NewSystemFlusher(runner toolexec.Runner) *SystemFlusher {
	return &SystemFlusher{runner: runner}
}

// Flush implements Flusher.
func (f *SystemFlusher) Flush(ctx context.Context, dev device.Handle) error {
	if err := flushBuffers(dev.Path); err != nil {
		return err
	}

	_, err := f.runner.Run(ctx, toolexec.Partprobe, dev.Path)

	return err
}
