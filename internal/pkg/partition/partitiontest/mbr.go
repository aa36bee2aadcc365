// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package partitiontest builds small MBR disk images for tests.
package partitiontest

import (
	"encoding/binary"
	"fmt"
	"os"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/siderolabs/gen/xslices"
)

// Part is a partition entry in 512-byte sectors, end inclusive.
type Part struct {
	Type        mbr.Type
	StartSector uint32
	EndSector   uint32
}

// Partition types.
const (
	TypeFAT32LBA = mbr.Fat32LBA
	TypeLinux    = mbr.Linux
)

const sectorSize = 512

// WriteImage creates a sparse image of size bytes at path carrying an MBR with parts.
//
// Every sector past the MBR is filled with its own sector number so copies can be verified.
// The path must not exist yet.
func WriteImage(path string, size int64, parts ...Part) error {
	if len(parts) > 4 {
		return fmt.Errorf("MBR holds at most 4 partitions, got %d", len(parts))
	}

	d, err := diskfs.Create(path, size, diskfs.SectorSize512)
	if err != nil {
		return err
	}

	defer d.Close() //nolint:errcheck

	if err = fillSectors(path, size); err != nil {
		return err
	}

	table := &mbr.Table{
		LogicalSectorSize:  sectorSize,
		PhysicalSectorSize: sectorSize,
		Partitions: xslices.Map(parts, func(p Part) *mbr.Partition {
			return &mbr.Partition{
				Type:  p.Type,
				Start: p.StartSector,
				Size:  p.EndSector - p.StartSector + 1,
			}
		}),
	}

	if err = d.Partition(table); err != nil {
		return fmt.Errorf("error writing partition table: %w", err)
	}

	return nil
}

func fillSectors(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	sector := make([]byte, sectorSize)

	for i := int64(1); i*sectorSize < size; i++ {
		binary.LittleEndian.PutUint64(sector, uint64(i))

		if _, err = f.WriteAt(sector, i*sectorSize); err != nil {
			return err
		}
	}

	return f.Sync()
}

// Sector returns the content WriteImage placed in sector n (n > 0).
func Sector(n uint64) []byte {
	sector := make([]byte, sectorSize)
	binary.LittleEndian.PutUint64(sector, n)

	return sector
}
