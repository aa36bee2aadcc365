// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package makefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/siderolabs/go-cmd/pkg/cmd"
)

const (
	// FilesystemTypeEXT4 is the filesystem type for EXT4.
	FilesystemTypeEXT4 = "ext4"

	// e2fsckCorrected is the e2fsck exit code for a filesystem left consistent after repairs.
	e2fsckCorrected = 1
)

// Ext4 creates a ext4 filesystem on the specified partition.
func Ext4(ctx context.Context, partname string, setters ...Option) error {
	if partname == "" {
		return errors.New("missing path to disk")
	}

	opts := NewDefaultOptions(setters...)

	var args []string

	if opts.Force {
		args = append(args, "-F")
	}

	args = append(args, partname)

	opts.Printf("creating ext4 filesystem on %s with args: %v", partname, args)

	_, err := opts.Run(ctx, "mkfs.ext4", args...)

	return err
}

// Ext4Preen runs an automatic, non-interactive check which only fixes safe problems.
func Ext4Preen(ctx context.Context, partname string, setters ...Option) error {
	opts := NewDefaultOptions(setters...)

	opts.Printf("preening ext4 filesystem on %s", partname)

	if err := e2fsck(ctx, opts, partname, "-f", "-p"); err != nil {
		return fmt.Errorf("failed to preen ext4 filesystem: %w", err)
	}

	return nil
}

// Ext4Repair forces a full check answering yes to every repair.
func Ext4Repair(ctx context.Context, partname string, setters ...Option) error {
	opts := NewDefaultOptions(setters...)

	opts.Printf("checking ext4 filesystem on %s", partname)

	if err := e2fsck(ctx, opts, partname, "-f", "-y"); err != nil {
		return fmt.Errorf("failed to repair ext4 filesystem: %w", err)
	}

	return nil
}

func e2fsck(ctx context.Context, opts Options, partname string, flags ...string) error {
	_, err := opts.Run(ctx, "e2fsck", append(flags, partname)...)

	var exitErr *cmd.ExitError

	if errors.As(err, &exitErr) && exitErr.ExitCode == e2fsckCorrected {
		opts.Printf("e2fsck corrected errors on %s", partname)

		return nil
	}

	return err
}

// Ext4Defrag defragments the mounted ext4 filesystem at mountpoint.
func Ext4Defrag(ctx context.Context, mountpoint string, setters ...Option) error {
	opts := NewDefaultOptions(setters...)

	opts.Printf("defragmenting ext4 filesystem mounted at %s", mountpoint)

	if _, err := opts.Run(ctx, "e4defrag", mountpoint); err != nil {
		return fmt.Errorf("failed to defragment ext4 filesystem: %w", err)
	}

	return nil
}

// Ext4ShrinkToMinimum shrinks an unmounted ext4 filesystem to its minimum size.
//
// The filesystem must have passed a forced check first, resize2fs refuses otherwise.
func Ext4ShrinkToMinimum(ctx context.Context, partname string, setters ...Option) error {
	opts := NewDefaultOptions(setters...)

	opts.Printf("shrinking ext4 filesystem on %s to minimum", partname)

	if _, err := opts.Run(ctx, "resize2fs", "-M", partname); err != nil {
		return fmt.Errorf("failed to shrink ext4 filesystem: %w", err)
	}

	return nil
}

// Ext4Superblock returns the superblock summary printed by dumpe2fs -h.
func Ext4Superblock(ctx context.Context, partname string, setters ...Option) (string, error) {
	opts := NewDefaultOptions(setters...)

	out, err := opts.Run(ctx, "dumpe2fs", "-h", partname)
	if err != nil {
		return "", fmt.Errorf("failed to dump ext4 superblock: %w", err)
	}

	return out, nil
}
