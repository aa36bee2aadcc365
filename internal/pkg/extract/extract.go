// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package extract captures the minimal leading extent of a device into an image file.
package extract

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
	"github.com/siderolabs/rpi-shrink/internal/pkg/partition"
	"github.com/siderolabs/rpi-shrink/pkg/logging"
)

// DefaultBufferSectors is the number of sectors moved per transfer.
const DefaultBufferSectors = 8192

// Artifact is an extracted image.
type Artifact struct {
	Path string
	Size int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithOpener replaces the device opener.
func WithOpener(open Opener) Option {
	return func(e *Extractor) {
		e.open = open
	}
}

// WithBufferSectors sets the transfer size in sectors.
func WithBufferSectors(n uint64) Option {
	return func(e *Extractor) {
		e.bufferSectors = n
	}
}

// Extractor copies sectors 0 through the plan end sector into a file.
type Extractor struct {
	open          Opener
	bufferSectors uint64
	logger        *zap.Logger
}

// New returns an Extractor reading block devices.
func New(logger *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		open:          OpenBlockDevice,
		bufferSectors: DefaultBufferSectors,
		logger:        logger,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.bufferSectors == 0 {
		e.bufferSectors = DefaultBufferSectors
	}

	return e
}

// Extract writes exactly plan.ImageSize() bytes from the start of dev to dest
// and verifies the copy.
func (e *Extractor) Extract(_ context.Context, dev device.Handle, plan geometry.ResizePlan, dest string) (Artifact, error) {
	if plan.SectorSize == 0 {
		return Artifact{}, failure.Wrap(failure.ErrImagingFailed, nil, "sector size is zero")
	}

	imageSize := plan.ImageSize()

	e.logger.Info("extracting image",
		zap.String("device", dev.Path),
		zap.String("image", dest),
		zap.Uint64("sectors", plan.Sectors()),
		zap.String("size", humanize.IBytes(imageSize)),
	)

	if err := e.copy(dev, plan, dest); err != nil {
		return Artifact{}, err
	}

	st, err := os.Stat(dest)
	if err != nil {
		return Artifact{}, failure.Wrap(failure.ErrImagingFailed, err, "verifying %s", dest)
	}

	if uint64(st.Size()) != imageSize {
		return Artifact{}, failure.Wrap(failure.ErrImagingFailed, nil, "image %s is %d bytes, expected %d", dest, st.Size(), imageSize)
	}

	table, err := partition.ReadTable(dest)
	if err != nil {
		return Artifact{}, failure.Wrap(failure.ErrImagingFailed, err, "verifying partition table of %s", dest)
	}

	if err = table.VerifyRoot(plan); err != nil {
		return Artifact{}, failure.Wrap(failure.ErrImagingFailed, err, "verifying partition table of %s", dest)
	}

	return Artifact{
		Path: dest,
		Size: st.Size(),
	}, nil
}

func (e *Extractor) copy(dev device.Handle, plan geometry.ResizePlan, dest string) (err error) {
	src, err := e.open(dev.Path)
	if err != nil {
		return failure.Wrap(failure.ErrImagingFailed, err, "opening %s", dev.Path)
	}

	defer src.Close() //nolint:errcheck

	imageSize := plan.ImageSize()

	size, err := src.Size()
	if err != nil {
		return failure.Wrap(failure.ErrImagingFailed, err, "reading size of %s", dev.Path)
	}

	if size < imageSize {
		return failure.Wrap(failure.ErrImagingFailed, nil, "%s holds %d bytes, image needs %d", dev.Path, size, imageSize)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return failure.Wrap(failure.ErrImagingFailed, err, "creating %s", dest)
	}

	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = failure.Wrap(failure.ErrImagingFailed, closeErr, "closing %s", dest)
		}
	}()

	buf := make([]byte, plan.SectorSize*min(e.bufferSectors, plan.Sectors()))
	progress := logging.NewProgress(e.logger, "extracting", imageSize)

	for offset := uint64(0); offset < imageSize; {
		chunk := buf[:min(uint64(len(buf)), imageSize-offset)]

		if _, err = io.ReadFull(src, chunk); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return failure.Wrap(failure.ErrImagingFailed, err, "short read from %s at offset %d", dev.Path, offset)
		}

		if _, err = out.Write(chunk); err != nil {
			return failure.Wrap(failure.ErrImagingFailed, err, "writing %s at offset %d", dest, offset)
		}

		offset += uint64(len(chunk))

		progress.Update(offset)
	}

	if err = out.Sync(); err != nil {
		return failure.Wrap(failure.ErrImagingFailed, err, "syncing %s", dest)
	}

	return nil
}
