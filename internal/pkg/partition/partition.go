// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package partition resizes the root partition to the shrunk filesystem and
// verifies the resulting partition table.
package partition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
	"github.com/siderolabs/rpi-shrink/pkg/makefs"
)

// Flusher makes the kernel drop cached partition data and re-read the table.
type Flusher interface {
	Flush(ctx context.Context, dev device.Handle) error
}

// Resizer moves the end of the root partition.
type Resizer struct {
	runner  toolexec.Runner
	flusher Flusher
	logger  *zap.Logger
}

// NewResizer returns a Resizer.
func NewResizer(runner toolexec.Runner, flusher Flusher, logger *zap.Logger) *Resizer {
	return &Resizer{
		runner:  runner,
		flusher: flusher,
		logger:  logger,
	}
}

// Resize sets the inclusive end sector of the root partition to plan.EndSector,
// flushes kernel caches and verifies the new table.
//
// The start sector is never changed.
func (r *Resizer) Resize(ctx context.Context, dev device.Handle, plan geometry.ResizePlan) error {
	r.logger.Info("resizing root partition",
		zap.String("device", dev.Path),
		zap.Uint64("start_sector", plan.StartSector),
		zap.Uint64("end_sector", plan.EndSector),
	)

	// parted asks for confirmation when shrinking, answer it through the pseudo tty input
	if _, err := r.runner.RunWithInput(ctx, strings.NewReader("Yes\n"), toolexec.Parted,
		"---pretend-input-tty", dev.Path,
		"unit", "s",
		"resizepart", strconv.Itoa(device.RootPartitionNumber), fmt.Sprintf("%ds", plan.EndSector),
	); err != nil {
		return failure.Wrap(failure.ErrResizeFailed, err, "resizing partition %d of %s", device.RootPartitionNumber, dev.Path)
	}

	if err := r.flusher.Flush(ctx, dev); err != nil {
		return failure.Wrap(failure.ErrResizeFailed, err, "flushing %s", dev.Path)
	}

	return r.verify(ctx, dev, plan)
}

func (r *Resizer) verify(ctx context.Context, dev device.Handle, plan geometry.ResizePlan) error {
	listing, err := r.runner.Run(ctx, toolexec.Fdisk, "-l", dev.Path)
	if err != nil {
		return failure.Wrap(failure.ErrResizeFailed, err, "re-reading partition table of %s", dev.Path)
	}

	part, err := geometry.ParsePartition(listing, dev.RootPartition)
	if err != nil {
		return failure.Wrap(failure.ErrResizeFailed, err, "verifying resize")
	}

	end, err := geometry.ParsePartitionEnd(listing, dev.RootPartition)
	if err != nil {
		return failure.Wrap(failure.ErrResizeFailed, err, "verifying resize")
	}

	if part.StartSector != plan.StartSector {
		return failure.Wrap(failure.ErrResizeFailed, nil, "root partition start moved from %d to %d", plan.StartSector, part.StartSector)
	}

	if end != plan.EndSector {
		return failure.Wrap(failure.ErrResizeFailed, nil, "root partition ends at sector %d, expected %d", end, plan.EndSector)
	}

	return nil
}

// Recheck runs the forced filesystem check after the partition was resized.
func (r *Resizer) Recheck(ctx context.Context, dev device.Handle) error {
	if err := makefs.Ext4Repair(ctx, dev.RootPartition, makefs.WithRunner(r.runner.Run), makefs.WithPrintf(r.logger.Sugar().Infof)); err != nil {
		return failure.Wrap(failure.ErrFilesystemInconsistent, err, "checking %s after resize", dev.RootPartition)
	}

	return nil
}
