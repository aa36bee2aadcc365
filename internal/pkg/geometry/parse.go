// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package geometry

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
)

const (
	labelBlockCount = "block count:"
	labelBlockSize  = "block size:"
	labelUnits      = "units: sectors of"
	labelUnitsOld   = "units = sectors of"
)

// ParseFilesystem reads the block count and block size from `dumpe2fs -h` output.
func ParseFilesystem(dump string) (Filesystem, error) {
	var (
		fs                  Filesystem
		haveCount, haveSize bool
	)

	scanner := bufio.NewScanner(strings.NewReader(dump))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)

		switch {
		case !haveCount && strings.HasPrefix(lower, labelBlockCount):
			fs.BlockCount, haveCount = trailingNumber(line)
		case !haveSize && strings.HasPrefix(lower, labelBlockSize):
			fs.BlockSize, haveSize = trailingNumber(line)
		}
	}

	if err := scanner.Err(); err != nil {
		return Filesystem{}, failure.Wrap(failure.ErrGeometryUnavailable, err, "reading filesystem dump")
	}

	if !haveCount || fs.BlockCount == 0 {
		return Filesystem{}, failure.Wrap(failure.ErrGeometryUnavailable, nil, "block count missing from filesystem dump")
	}

	if !haveSize || fs.BlockSize == 0 {
		return Filesystem{}, failure.Wrap(failure.ErrGeometryUnavailable, nil, "block size missing from filesystem dump")
	}

	return fs, nil
}

// ParsePartition reads the start sector of partitionPath and the sector size
// from `fdisk -l` output produced under the C locale.
func ParsePartition(listing, partitionPath string) (Partition, error) {
	row, err := partitionRow(listing, partitionPath)
	if err != nil {
		return Partition{}, err
	}

	start, ok := parseNumber(row[0])
	if !ok {
		return Partition{}, failure.Wrap(failure.ErrGeometryUnavailable, nil, "start sector of %s is not numeric: %q", partitionPath, row[0])
	}

	sectorSize, err := parseSectorSize(listing)
	if err != nil {
		return Partition{}, err
	}

	return Partition{
		StartSector: start,
		SectorSize:  sectorSize,
	}, nil
}

// ParsePartitionEnd reads the inclusive end sector of partitionPath from `fdisk -l` output.
func ParsePartitionEnd(listing, partitionPath string) (uint64, error) {
	row, err := partitionRow(listing, partitionPath)
	if err != nil {
		return 0, err
	}

	if len(row) < 2 {
		return 0, failure.Wrap(failure.ErrGeometryUnavailable, nil, "end sector of %s missing from partition listing", partitionPath)
	}

	end, ok := parseNumber(row[1])
	if !ok {
		return 0, failure.Wrap(failure.ErrGeometryUnavailable, nil, "end sector of %s is not numeric: %q", partitionPath, row[1])
	}

	return end, nil
}

// partitionRow returns the fields following the device column (and the boot flag, if any).
func partitionRow(listing, partitionPath string) ([]string, error) {
	scanner := bufio.NewScanner(strings.NewReader(listing))

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())

		if len(fields) < 2 || fields[0] != partitionPath {
			continue
		}

		fields = fields[1:]

		if fields[0] == "*" {
			fields = fields[1:]
		}

		if len(fields) == 0 {
			break
		}

		return fields, nil
	}

	if err := scanner.Err(); err != nil {
		return nil, failure.Wrap(failure.ErrGeometryUnavailable, err, "reading partition listing")
	}

	return nil, failure.Wrap(failure.ErrGeometryUnavailable, nil, "partition %s missing from partition listing", partitionPath)
}

func parseSectorSize(listing string) (uint64, error) {
	scanner := bufio.NewScanner(strings.NewReader(listing))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)

		if !strings.HasPrefix(lower, labelUnits) && !strings.HasPrefix(lower, labelUnitsOld) {
			continue
		}

		fields := strings.Fields(lower)

		if len(fields) < 2 || fields[len(fields)-1] != "bytes" {
			break
		}

		size, ok := parseNumber(fields[len(fields)-2])
		if !ok || size == 0 {
			break
		}

		return size, nil
	}

	if err := scanner.Err(); err != nil {
		return 0, failure.Wrap(failure.ErrGeometryUnavailable, err, "reading partition listing")
	}

	return 0, failure.Wrap(failure.ErrGeometryUnavailable, nil, "sector size missing from partition listing")
}

func trailingNumber(line string) (uint64, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}

	return parseNumber(fields[len(fields)-1])
}

func parseNumber(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)

	return n, err == nil
}
