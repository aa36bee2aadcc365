// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package geometry

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/dustin/go-humanize"

	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
)

// ResizePlan is the new geometry of the root partition.
type ResizePlan struct {
	StartSector uint64
	EndSector   uint64
	SectorSize  uint64
}

// Sectors returns the number of sectors from the start of the device up to and including EndSector.
func (p ResizePlan) Sectors() uint64 {
	return p.EndSector + 1
}

// ImageSize returns the number of bytes from the start of the device up to and including EndSector.
func (p ResizePlan) ImageSize() uint64 {
	return p.Sectors() * p.SectorSize
}

// String implements fmt.Stringer.
func (p ResizePlan) String() string {
	return fmt.Sprintf("sectors %d-%d, image %s", p.StartSector, p.EndSector, humanize.IBytes(p.ImageSize()))
}

// EndSector returns the inclusive last sector of a partition starting at
// part.StartSector which holds the whole filesystem extent.
//
// The extent is rounded up to whole sectors, never truncated.
func EndSector(fs Filesystem, part Partition) (uint64, error) {
	if part.SectorSize == 0 {
		return 0, failure.Wrap(failure.ErrGeometryUnavailable, nil, "sector size is zero")
	}

	if fs.BlockCount == 0 || fs.BlockSize == 0 {
		return 0, failure.Wrap(failure.ErrGeometryUnavailable, nil, "filesystem extent is zero")
	}

	hi, extent := bits.Mul64(fs.BlockCount, fs.BlockSize)
	if hi != 0 {
		return 0, failure.Wrap(failure.ErrGeometryUnavailable, nil, "filesystem extent overflows: %d blocks of %d bytes", fs.BlockCount, fs.BlockSize)
	}

	sectors := extent / part.SectorSize
	if extent%part.SectorSize != 0 {
		sectors++
	}

	end, carry := bits.Add64(part.StartSector, sectors-1, 0)
	if carry != 0 {
		return 0, failure.Wrap(failure.ErrGeometryUnavailable, nil, "end sector overflows: start %d, %d sectors", part.StartSector, sectors)
	}

	return end, nil
}

// NewResizePlan computes the partition geometry for fs.
func NewResizePlan(fs Filesystem, part Partition) (ResizePlan, error) {
	end, err := EndSector(fs, part)
	if err != nil {
		return ResizePlan{}, err
	}

	// the image must stay addressable as a regular file
	if hi, size := bits.Mul64(end+1, part.SectorSize); hi != 0 || end == math.MaxUint64 || size > math.MaxInt64 {
		return ResizePlan{}, failure.Wrap(failure.ErrGeometryUnavailable, nil, "image size overflows: end sector %d", end)
	}

	return ResizePlan{
		StartSector: part.StartSector,
		EndSector:   end,
		SectorSize:  part.SectorSize,
	}, nil
}
