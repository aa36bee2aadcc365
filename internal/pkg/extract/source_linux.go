// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package extract

import (
	"fmt"

	"github.com/siderolabs/go-blockdevice/v2/block"
)

type blockDevice struct {
	bd *block.Device
}

// OpenBlockDevice opens a block device read-only holding a shared lock.
func OpenBlockDevice(path string) (Device, error) {
	bd, err := block.NewFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("error opening block device %q: %w", path, err)
	}

	if err = bd.Lock(false); err != nil {
		bd.Close() //nolint:errcheck

		return nil, fmt.Errorf("error locking block device %q: %w", path, err)
	}

	return &blockDevice{bd: bd}, nil
}

func (d *blockDevice) Read(p []byte) (int, error) {
	return d.bd.File().Read(p)
}

func (d *blockDevice) Size() (uint64, error) {
	return seekSize(d.bd.File())
}

func (d *blockDevice) Close() error {
	d.bd.Unlock() //nolint:errcheck

	return d.bd.Close()
}
