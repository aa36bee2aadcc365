// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package device names the whole-disk device and its two partitions.
package device

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Partition numbers of the Raspberry Pi layout.
const (
	BootPartitionNumber = 1
	RootPartitionNumber = 2
)

// Handle is a whole-disk device with its boot and root partitions.
type Handle struct {
	Path          string
	BootPartition string
	RootPartition string
}

// New derives the partition paths of the whole-disk device at path.
func New(path string) (Handle, error) {
	if !filepath.IsAbs(path) {
		return Handle{}, fmt.Errorf("device path %q is not absolute", path)
	}

	path = filepath.Clean(path)

	if base := filepath.Base(path); base == "" || base == "/" || base == "." {
		return Handle{}, fmt.Errorf("device path %q has no device name", path)
	}

	return Handle{
		Path:          path,
		BootPartition: PartPath(path, BootPartitionNumber),
		RootPartition: PartPath(path, RootPartitionNumber),
	}, nil
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return h.Path
}

// PartName returns a valid partition name given a device and partition number.
func PartName(d string, n int) string {
	partname := filepath.Base(d)

	switch p := partname; {
	case strings.HasPrefix(p, "nvme"),
		strings.HasPrefix(p, "loop"),
		strings.HasPrefix(p, "mmcblk"):
		partname = fmt.Sprintf("%sp%d", p, n)
	case p != "" && p[len(p)-1] >= '0' && p[len(p)-1] <= '9':
		// the kernel separates the partition number when the disk name ends in a digit
		partname = fmt.Sprintf("%sp%d", p, n)
	default:
		partname = fmt.Sprintf("%s%d", p, n)
	}

	return partname
}

// PartPath returns the path to the partition with the given number.
func PartPath(d string, n int) string {
	return filepath.Join(filepath.Dir(d), PartName(d, n))
}
