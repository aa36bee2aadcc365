// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package mount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/siderolabs/go-retry/retry"
	"golang.org/x/sys/unix"
)

// DefaultBusyTimeout bounds how long an unmount keeps retrying EBUSY.
const DefaultBusyTimeout = 30 * time.Second

// System mounts filesystems with mount(2).
type System struct {
	printer     func(string, ...any)
	busyTimeout time.Duration
}

// NewSystem returns a Mounter backed by the kernel.
func NewSystem(printer func(string, ...any)) *System {
	if printer == nil {
		printer = discard
	}

	return &System{
		printer:     printer,
		busyTimeout: DefaultBusyTimeout,
	}
}

// Mount implements Mounter.
func (s *System) Mount(ctx context.Context, p *Point) (Unmounter, error) {
	s.printer("mounting %s", p)

	if err := unix.Mount(p.Source, p.Target, p.FSType, p.Flags, p.Data); err != nil {
		return nil, fmt.Errorf("mount %s: %w", p, err)
	}

	return func() error {
		return SafeUnmount(context.WithoutCancel(ctx), s.printer, p.Target, s.busyTimeout)
	}, nil
}

func trySyncMount(target string, printer func(string, ...any)) error {
	// open the mountpoint directory to get an fd on the fs
	fd, err := unix.Open(target, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %q: %w", target, err)
	}
	defer unix.Close(fd) //nolint:errcheck

	if err := unix.Syncfs(fd); err != nil {
		return fmt.Errorf("SYS_SYNCFS %q: %w", target, err)
	}

	printer("syncfs(%s) ok", target)

	return nil
}

// SafeUnmount syncs and unmounts target, retrying while the kernel reports it busy.
//
// Once timeout passes the last EBUSY is returned.
func SafeUnmount(ctx context.Context, printer func(string, ...any), target string, timeout time.Duration) error {
	if printer == nil {
		printer = discard
	}

	if err := trySyncMount(target, printer); err != nil {
		printer("sync failed: %s", err)
	}

	err := retry.Constant(timeout, retry.WithUnits(250*time.Millisecond)).RetryWithContext(ctx, func(context.Context) error {
		err := unix.Unmount(target, 0)

		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.EBUSY):
			printer("unmounting %s: target is busy, retrying", target)

			return retry.ExpectedError(err)
		case errors.Is(err, unix.EINVAL):
			// not a mount point anymore
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("unmount %s: %w", target, err)
	}

	printer("unmounted %s", target)

	return nil
}
