// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package autoexpand re-arms the first boot expansion of the root filesystem.
package autoexpand

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/siderolabs/go-procfs/procfs"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/mount"
)

// Result reports which steps changed anything.
type Result struct {
	HelperMissing    bool
	ScriptInstalled  bool
	TriggerInstalled bool
	CmdlineUpdated   bool
}

// Changed reports whether any file was modified.
func (r Result) Changed() bool {
	return r.ScriptInstalled || r.TriggerInstalled || r.CmdlineUpdated
}

// Option configures an Installer.
type Option func(*Installer)

// WithFilesystem replaces the view of a mounted directory.
func WithFilesystem(fsFor func(dir string) afero.Fs) Option {
	return func(i *Installer) {
		i.fsFor = fsFor
	}
}

// Installer mounts the root and boot partitions and installs the expansion trigger.
type Installer struct {
	mounter mount.Mounter
	logger  *zap.Logger
	fsFor   func(dir string) afero.Fs
}

// New returns an Installer.
func New(mounter mount.Mounter, logger *zap.Logger, opts ...Option) *Installer {
	i := &Installer{
		mounter: mounter,
		logger:  logger,
		fsFor: func(dir string) afero.Fs {
			return afero.NewBasePathFs(afero.NewOsFs(), dir)
		},
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Install mounts each partition of dev under workDir in turn and re-arms expansion.
//
// A root filesystem without the helper is left untouched and is not an error.
func (i *Installer) Install(ctx context.Context, dev device.Handle, workDir string) (Result, error) {
	var result Result

	rootPoint := mount.NewPoint(dev.RootPartition, filepath.Join(workDir, "root"), "ext4")

	if err := mount.With(ctx, i.mounter, rootPoint, func(target string) error {
		var err error

		result, err = InstallTrigger(i.fsFor(target))

		return err
	}); err != nil {
		return result, failure.Wrap(failure.ErrImagingFailed, err, "installing expansion trigger on %s", dev.RootPartition)
	}

	if result.HelperMissing {
		i.logger.Warn("auto-expand helper not found, the image will not expand on first boot",
			zap.String("helper", HelperPath))

		return result, nil
	}

	bootPoint := mount.NewPoint(dev.BootPartition, filepath.Join(workDir, "boot"), "vfat")

	if err := mount.With(ctx, i.mounter, bootPoint, func(target string) error {
		var err error

		result.CmdlineUpdated, err = UpdateCmdline(i.fsFor(target))

		return err
	}); err != nil {
		return result, failure.Wrap(failure.ErrImagingFailed, err, "updating %s on %s", CmdlinePath, dev.BootPartition)
	}

	i.logger.Info("auto-expand armed",
		zap.Bool("script_installed", result.ScriptInstalled),
		zap.Bool("trigger_installed", result.TriggerInstalled),
		zap.Bool("cmdline_updated", result.CmdlineUpdated),
	)

	return result, nil
}

// InstallTrigger writes the one-shot resize script and its reboot trigger into the root filesystem.
func InstallTrigger(root afero.Fs) (Result, error) {
	var result Result

	ok, err := afero.Exists(root, HelperPath)
	if err != nil {
		return result, fmt.Errorf("error probing %s: %w", HelperPath, err)
	}

	if !ok {
		result.HelperMissing = true

		return result, nil
	}

	if result.ScriptInstalled, err = writeFile(root, ScriptPath, []byte(script), 0o755); err != nil {
		return result, err
	}

	if result.TriggerInstalled, err = writeFile(root, TriggerPath, []byte(trigger), 0o644); err != nil {
		return result, err
	}

	return result, nil
}

// UpdateCmdline appends the init= parameter to the boot command line unless one is present.
func UpdateCmdline(boot afero.Fs) (bool, error) {
	contents, err := afero.ReadFile(boot, CmdlinePath)
	if err != nil {
		return false, fmt.Errorf("error reading %s: %w", CmdlinePath, err)
	}

	line, rest, _ := strings.Cut(string(contents), "\n")

	if procfs.NewCmdline(line).Get(InitParam).First() != nil {
		return false, nil
	}

	st, err := boot.Stat(CmdlinePath)
	if err != nil {
		return false, err
	}

	line = strings.TrimRight(line, " \t\r")

	if line != "" {
		line += " "
	}

	line += InitParam + "=" + HelperPath

	updated := line
	if strings.Contains(string(contents), "\n") {
		updated += "\n" + rest
	}

	if _, err = writeFile(boot, CmdlinePath, []byte(updated), st.Mode().Perm()); err != nil {
		return false, err
	}

	return true, nil
}

// writeFile replaces path with contents and reports whether anything changed.
func writeFile(fs afero.Fs, path string, contents []byte, perm os.FileMode) (bool, error) {
	existing, err := afero.ReadFile(fs, path)

	switch {
	case err == nil:
		st, statErr := fs.Stat(path)
		if statErr != nil {
			return false, statErr
		}

		if bytes.Equal(existing, contents) && st.Mode().Perm() == perm {
			return false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("error reading %s: %w", path, err)
	}

	if err = fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("error creating %s: %w", filepath.Dir(path), err)
	}

	if err = afero.WriteFile(fs, path, contents, perm); err != nil {
		return false, fmt.Errorf("error writing %s: %w", path, err)
	}

	if err = fs.Chmod(path, perm); err != nil {
		return false, fmt.Errorf("error setting mode of %s: %w", path, err)
	}

	return true, nil
}
