// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package partition

import (
	"fmt"

	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/backend/file"
	"github.com/diskfs/go-diskfs/partition/mbr"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
)

// Entry is a non-empty partition table entry, sectors are inclusive.
type Entry struct {
	Number      int
	StartSector uint64
	EndSector   uint64
}

// Table is the MBR partition table of a device or image.
type Table struct {
	Entries []Entry
}

// ReadTable reads the MBR partition table of the device or image at path.
func ReadTable(path string) (Table, error) {
	bk, err := file.OpenFromPath(path, true)
	if err != nil {
		return Table{}, fmt.Errorf("failed to open %q: %w", path, err)
	}

	defer bk.Close() //nolint:errcheck

	d, err := diskfs.OpenBackend(bk, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return Table{}, fmt.Errorf("failed to open disk %q: %w", path, err)
	}

	defer d.Close() //nolint:errcheck

	pt, err := d.GetPartitionTable()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read partition table of %q: %w", path, err)
	}

	if _, ok := pt.(*mbr.Table); !ok {
		return Table{}, fmt.Errorf("partition table of %q is not MBR", path)
	}

	lbs := d.LogicalBlocksize
	if lbs <= 0 {
		return Table{}, fmt.Errorf("invalid logical block size %d of %q", lbs, path)
	}

	var table Table

	for i, p := range pt.GetPartitions() {
		if p == nil || p.GetSize() <= 0 {
			continue
		}

		// diskfs reports bytes, the table itself stores logical sectors
		start := uint64(p.GetStart() / lbs)
		sectors := uint64(p.GetSize() / lbs)

		table.Entries = append(table.Entries, Entry{
			Number:      i + 1,
			StartSector: start,
			EndSector:   start + sectors - 1,
		})
	}

	return table, nil
}

// Entry returns the entry with partition number n.
func (t Table) Entry(n int) (Entry, bool) {
	for _, e := range t.Entries {
		if e.Number == n {
			return e, true
		}
	}

	return Entry{}, false
}

// VerifyLayout checks the boot plus root layout: partitions 1 and 2 and nothing else,
// with the root partition placed after the boot partition.
func (t Table) VerifyLayout() error {
	boot, okBoot := t.Entry(device.BootPartitionNumber)
	root, okRoot := t.Entry(device.RootPartitionNumber)

	switch {
	case !okBoot || !okRoot:
		return failure.Wrap(failure.ErrPreconditionUnmet, nil, "expected boot and root partitions, found %d partitions", len(t.Entries))
	case len(t.Entries) != 2:
		return failure.Wrap(failure.ErrPreconditionUnmet, nil, "expected exactly 2 partitions, found %d", len(t.Entries))
	case root.StartSector <= boot.EndSector:
		return failure.Wrap(failure.ErrPreconditionUnmet, nil, "root partition starts at sector %d inside the boot partition", root.StartSector)
	}

	return nil
}

// VerifyRoot checks that the root partition matches plan exactly.
func (t Table) VerifyRoot(plan geometry.ResizePlan) error {
	root, ok := t.Entry(device.RootPartitionNumber)
	if !ok {
		return fmt.Errorf("root partition missing from partition table")
	}

	if root.StartSector != plan.StartSector || root.EndSector != plan.EndSector {
		return fmt.Errorf("root partition spans sectors %d-%d, expected %d-%d",
			root.StartSector, root.EndSector, plan.StartSector, plan.EndSector)
	}

	return nil
}
