// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package failure defines the error kinds reported by the shrink pipeline.
package failure

import (
	"errors"
	"fmt"
)

// Error kinds.
//
// Every stage failure wraps one of these, so callers can classify an abort
// with errors.Is. Cancellation before the partition table was touched carries
// no kind, only the context error.
var (
	ErrPreconditionUnmet      = errors.New("precondition unmet")
	ErrGeometryUnavailable    = errors.New("geometry unavailable")
	ErrFilesystemInconsistent = errors.New("filesystem inconsistent")
	ErrResizeFailed           = errors.New("resize failed")
	ErrImagingFailed          = errors.New("imaging failed")
	ErrIncomplete             = errors.New("incomplete run")
)

// Wrap attaches kind to err, keeping both reachable through errors.Is and errors.As.
func Wrap(kind error, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)

	if err == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}

	return fmt.Errorf("%w: %s: %w", kind, msg, err)
}

var kinds = []error{
	ErrPreconditionUnmet,
	ErrGeometryUnavailable,
	ErrFilesystemInconsistent,
	ErrResizeFailed,
	ErrImagingFailed,
	ErrIncomplete,
}

// Kind returns the error kind carried by err, or nil.
//
// ErrIncomplete takes precedence, otherwise the outermost kind wins.
func Kind(err error) error {
	if errors.Is(err, ErrIncomplete) {
		return ErrIncomplete
	}

	return outermost(err)
}

func outermost(err error) error {
	if err == nil {
		return nil
	}

	for _, kind := range kinds {
		if err == kind { //nolint:errorlint
			return kind
		}
	}

	switch x := err.(type) { //nolint:errorlint
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if kind := outermost(e); kind != nil {
				return kind
			}
		}
	case interface{ Unwrap() error }:
		return outermost(x.Unwrap())
	}

	return nil
}
