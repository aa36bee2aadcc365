// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package preflight verifies the host and the device before anything is modified.
package preflight

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/partition"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
)

// MountsPath lists mounted filesystems.
const MountsPath = "/proc/self/mounts"

// Check is a single precondition.
type Check struct {
	Name string
	Run  func(ctx context.Context, dev device.Handle) error
}

// Default returns the checks performed before a run, reading host files through fs.
func Default(fs afero.Fs) []Check {
	return []Check{
		Tools(toolexec.Require, toolexec.RequiredTools...),
		Root(os.Geteuid),
		BlockDevice(fs),
		Unmounted(fs),
		Layout(partition.ReadTable),
	}
}

// Run executes every check and reports all failures at once.
func Run(ctx context.Context, logger *zap.Logger, dev device.Handle, checks ...Check) error {
	var result *multierror.Error

	for _, check := range checks {
		if err := check.Run(ctx, dev); err != nil {
			logger.Error("precondition failed", zap.String("check", check.Name), zap.Error(err))

			result = multierror.Append(result, fmt.Errorf("%s: %w", check.Name, err))

			continue
		}

		logger.Debug("precondition met", zap.String("check", check.Name))
	}

	if err := result.ErrorOrNil(); err != nil {
		return failure.Wrap(failure.ErrPreconditionUnmet, err, "%d of %d checks failed on %s", len(result.Errors), len(checks), dev.Path)
	}

	return nil
}

// Tools checks that every named tool is installed.
func Tools(require func(...string) error, names ...string) Check {
	return Check{
		Name: "tools",
		Run: func(context.Context, device.Handle) error {
			return require(names...)
		},
	}
}

// Root checks for superuser privileges.
func Root(euid func() int) Check {
	return Check{
		Name: "root",
		Run: func(context.Context, device.Handle) error {
			if euid() != 0 {
				return fmt.Errorf("must run as root, effective uid is %d", euid())
			}

			return nil
		},
	}
}

// BlockDevice checks that the device and both partitions are block device nodes.
func BlockDevice(fs afero.Fs) Check {
	return Check{
		Name: "block device",
		Run: func(_ context.Context, dev device.Handle) error {
			var result *multierror.Error

			for _, path := range []string{dev.Path, dev.BootPartition, dev.RootPartition} {
				st, err := fs.Stat(path)
				if err != nil {
					result = multierror.Append(result, err)

					continue
				}

				if st.Mode()&os.ModeDevice == 0 || st.Mode()&os.ModeCharDevice != 0 {
					result = multierror.Append(result, fmt.Errorf("%s is not a block device", path))
				}
			}

			return result.ErrorOrNil()
		},
	}
}

// Unmounted checks that neither the device nor its partitions are mounted.
func Unmounted(fs afero.Fs) Check {
	return Check{
		Name: "unmounted",
		Run: func(_ context.Context, dev device.Handle) error {
			mounts, err := afero.ReadFile(fs, MountsPath)
			if err != nil {
				return fmt.Errorf("error reading %s: %w", MountsPath, err)
			}

			paths := []string{dev.Path, dev.BootPartition, dev.RootPartition}

			var result *multierror.Error

			scanner := bufio.NewScanner(bytes.NewReader(mounts))

			for scanner.Scan() {
				fields := bytes.Fields(scanner.Bytes())
				if len(fields) < 2 {
					continue
				}

				source := string(fields[0])

				if slices.Contains(paths, source) {
					result = multierror.Append(result, fmt.Errorf("%s is mounted at %s", source, fields[1]))
				}
			}

			if err = scanner.Err(); err != nil {
				return err
			}

			return result.ErrorOrNil()
		},
	}
}

// Layout checks for exactly a boot and a root partition.
func Layout(readTable func(path string) (partition.Table, error)) Check {
	return Check{
		Name: "partition layout",
		Run: func(_ context.Context, dev device.Handle) error {
			table, err := readTable(dev.Path)
			if err != nil {
				return err
			}

			return table.VerifyLayout()
		},
	}
}
