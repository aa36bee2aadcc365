// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package geometry

import (
	"context"

	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
	"github.com/siderolabs/rpi-shrink/pkg/makefs"
)

// Inspector reads geometry from a device with dumpe2fs and fdisk.
type Inspector struct {
	runner toolexec.Runner
	logger *zap.Logger
}

// NewInspector returns an Inspector using runner.
func NewInspector(runner toolexec.Runner, logger *zap.Logger) *Inspector {
	return &Inspector{
		runner: runner,
		logger: logger,
	}
}

// Filesystem reads the superblock geometry of the ext filesystem on partition.
func (i *Inspector) Filesystem(ctx context.Context, partition string) (Filesystem, error) {
	dump, err := makefs.Ext4Superblock(ctx, partition, makefs.WithRunner(i.runner.Run))
	if err != nil {
		return Filesystem{}, failure.Wrap(failure.ErrGeometryUnavailable, err, "dumpe2fs %s", partition)
	}

	fs, err := ParseFilesystem(dump)
	if err != nil {
		return Filesystem{}, err
	}

	i.logger.Info("filesystem geometry",
		zap.String("partition", partition),
		zap.Uint64("block_count", fs.BlockCount),
		zap.Uint64("block_size", fs.BlockSize),
		zap.String("parser_version", ParserVersion),
	)

	return fs, nil
}

// Listing returns the `fdisk -l` output for the device.
func (i *Inspector) Listing(ctx context.Context, dev device.Handle) (string, error) {
	listing, err := i.runner.Run(ctx, toolexec.Fdisk, "-l", dev.Path)
	if err != nil {
		return "", failure.Wrap(failure.ErrGeometryUnavailable, err, "fdisk -l %s", dev.Path)
	}

	return listing, nil
}

// Partition reads the geometry of the root partition.
func (i *Inspector) Partition(ctx context.Context, dev device.Handle) (Partition, error) {
	listing, err := i.Listing(ctx, dev)
	if err != nil {
		return Partition{}, err
	}

	part, err := ParsePartition(listing, dev.RootPartition)
	if err != nil {
		return Partition{}, err
	}

	i.logger.Info("partition geometry",
		zap.String("partition", dev.RootPartition),
		zap.Uint64("start_sector", part.StartSector),
		zap.Uint64("sector_size", part.SectorSize),
		zap.String("parser_version", ParserVersion),
	)

	return part, nil
}

// Plan reads the current geometry and computes the resize plan for the root partition.
func (i *Inspector) Plan(ctx context.Context, dev device.Handle) (ResizePlan, error) {
	fs, err := i.Filesystem(ctx, dev.RootPartition)
	if err != nil {
		return ResizePlan{}, err
	}

	part, err := i.Partition(ctx, dev)
	if err != nil {
		return ResizePlan{}, err
	}

	plan, err := NewResizePlan(fs, part)
	if err != nil {
		return ResizePlan{}, err
	}

	i.logger.Info("resize plan", zap.Stringer("plan", plan))

	return plan, nil
}

// Report is a read-only summary of the current device geometry.
type Report struct {
	Filesystem   Filesystem
	Partition    Partition
	PartitionEnd uint64
	Plan         ResizePlan
}

// CurrentImageSize is the size of an image capturing the root partition as it is now.
func (r Report) CurrentImageSize() uint64 {
	return (r.PartitionEnd + 1) * r.Partition.SectorSize
}

// Report inspects the device without modifying it.
func (i *Inspector) Report(ctx context.Context, dev device.Handle) (Report, error) {
	fs, err := i.Filesystem(ctx, dev.RootPartition)
	if err != nil {
		return Report{}, err
	}

	listing, err := i.Listing(ctx, dev)
	if err != nil {
		return Report{}, err
	}

	part, err := ParsePartition(listing, dev.RootPartition)
	if err != nil {
		return Report{}, err
	}

	end, err := ParsePartitionEnd(listing, dev.RootPartition)
	if err != nil {
		return Report{}, err
	}

	plan, err := NewResizePlan(fs, part)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Filesystem:   fs,
		Partition:    part,
		PartitionEnd: end,
		Plan:         plan,
	}, nil
}
