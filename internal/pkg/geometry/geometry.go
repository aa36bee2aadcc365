// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package geometry extracts filesystem and partition geometry from tool output
// and computes the partition end sector which fits a shrunk filesystem.
package geometry

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ParserVersion identifies the tool output formats understood by the parsers.
//
// Bump it whenever the accepted dumpe2fs or fdisk formats change.
const ParserVersion = "1"

// Filesystem is the geometry reported by the filesystem superblock.
type Filesystem struct {
	BlockCount uint64
	BlockSize  uint64
}

// Extent returns the filesystem size in bytes.
func (fs Filesystem) Extent() uint64 {
	return fs.BlockCount * fs.BlockSize
}

// String implements fmt.Stringer.
func (fs Filesystem) String() string {
	return fmt.Sprintf("%d blocks of %d bytes (%s)", fs.BlockCount, fs.BlockSize, humanize.IBytes(fs.Extent()))
}

// Partition is the geometry of the root partition in the partition table.
type Partition struct {
	StartSector uint64
	SectorSize  uint64
}

// String implements fmt.Stringer.
func (p Partition) String() string {
	return fmt.Sprintf("start sector %d, %d-byte sectors", p.StartSector, p.SectorSize)
}
