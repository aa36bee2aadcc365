// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package partition

import (
	"fmt"

	"github.com/siderolabs/go-blockdevice/v2/block"
	"golang.org/x/sys/unix"
)

func flushBuffers(path string) error {
	unix.Sync()

	bd, err := block.NewFromPath(path)
	if err != nil {
		return fmt.Errorf("error opening block device %q: %w", path, err)
	}

	defer bd.Close() //nolint:errcheck

	if err = unix.IoctlSetInt(int(bd.File().Fd()), unix.BLKFLSBUF, 0); err != nil {
		return fmt.Errorf("BLKFLSBUF %q: %w", path, err)
	}

	return nil
}
