// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package extract

import (
	"fmt"
	"io"
	"os"
)

// Device is a readable source positioned at sector 0.
type Device interface {
	io.ReadCloser

	Size() (uint64, error)
}

// Opener opens the device at path for reading.
type Opener func(path string) (Device, error)

type fileDevice struct {
	*os.File
}

// OpenFile opens a regular file (or any seekable path) as a Device.
func OpenFile(path string) (Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &fileDevice{File: f}, nil
}

func (d *fileDevice) Size() (uint64, error) {
	return seekSize(d.File)
}

// seekSize measures f by seeking to its end, which works for block devices too.
func seekSize(f *os.File) (uint64, error) {
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("error measuring %s: %w", f.Name(), err)
	}

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("error rewinding %s: %w", f.Name(), err)
	}

	return uint64(end), nil
}
