// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package shrink reduces the root ext4 filesystem to its minimum size.
package shrink

import (
	"context"

	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/mount"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
	"github.com/siderolabs/rpi-shrink/pkg/makefs"
)

// Shrinker runs the check, defragment and shrink steps on an unmounted ext filesystem.
type Shrinker struct {
	runner  toolexec.Runner
	mounter mount.Mounter
	logger  *zap.Logger
}

// New returns a Shrinker.
func New(runner toolexec.Runner, mounter mount.Mounter, logger *zap.Logger) *Shrinker {
	return &Shrinker{
		runner:  runner,
		mounter: mounter,
		logger:  logger,
	}
}

func (s *Shrinker) options() []makefs.Option {
	return []makefs.Option{
		makefs.WithRunner(s.runner.Run),
		makefs.WithPrintf(s.logger.Sugar().Infof),
	}
}

// Preen runs the automatic check. Failures are logged and otherwise ignored,
// the forced check after defragmentation is authoritative.
func (s *Shrinker) Preen(ctx context.Context, partition string) {
	if err := makefs.Ext4Preen(ctx, partition, s.options()...); err != nil {
		s.logger.Warn("initial filesystem check reported problems", zap.String("partition", partition), zap.Error(err))
	}
}

// Defragment mounts partition at mountpoint, defragments it and unmounts it again.
func (s *Shrinker) Defragment(ctx context.Context, partition, mountpoint string) error {
	err := mount.With(ctx, s.mounter, mount.NewPoint(partition, mountpoint, makefs.FilesystemTypeEXT4), func(target string) error {
		return makefs.Ext4Defrag(ctx, target, s.options()...)
	})
	if err != nil {
		return failure.Wrap(failure.ErrResizeFailed, err, "defragmenting %s", partition)
	}

	return nil
}

// Check forces a full filesystem check which must succeed.
func (s *Shrinker) Check(ctx context.Context, partition string) error {
	if err := makefs.Ext4Repair(ctx, partition, s.options()...); err != nil {
		return failure.Wrap(failure.ErrFilesystemInconsistent, err, "checking %s", partition)
	}

	return nil
}

// ShrinkToMinimum shrinks the filesystem on partition to its minimum size.
func (s *Shrinker) ShrinkToMinimum(ctx context.Context, partition string) error {
	if err := makefs.Ext4ShrinkToMinimum(ctx, partition, s.options()...); err != nil {
		return failure.Wrap(failure.ErrResizeFailed, err, "shrinking %s", partition)
	}

	return nil
}
