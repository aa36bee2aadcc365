// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package autoexpand_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/rpi-shrink/internal/pkg/autoexpand"
	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/mount"
)

const cmdline = "console=serial0,115200 console=tty1 root=PARTUUID=3e247b30-02 rootfstype=ext4 fsck.repair=yes rootwait quiet splash\n"

func rootWithHelper(t *testing.T) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, autoexpand.HelperPath, []byte("#!/bin/sh\n"), 0o755))

	return fs
}

func bootWithCmdline(t *testing.T, contents string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, autoexpand.CmdlinePath, []byte(contents), 0o755))

	return fs
}

func TestInstallTrigger(t *testing.T) {
	t.Parallel()

	root := rootWithHelper(t)

	result, err := autoexpand.InstallTrigger(root)
	require.NoError(t, err)
	assert.Equal(t, autoexpand.Result{ScriptInstalled: true, TriggerInstalled: true}, result)

	st, err := root.Stat(autoexpand.ScriptPath)
	require.NoError(t, err)
	assert.EqualValues(t, 0o755, st.Mode().Perm())

	st, err = root.Stat(autoexpand.TriggerPath)
	require.NoError(t, err)
	assert.EqualValues(t, 0o644, st.Mode().Perm())

	trigger, err := afero.ReadFile(root, autoexpand.TriggerPath)
	require.NoError(t, err)
	assert.Equal(t, "@reboot root /etc/init.d/resize2fs_once start\n", string(trigger))

	script, err := afero.ReadFile(root, autoexpand.ScriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(script), "rm -f /etc/cron.d/resize2fs_once")
	assert.Contains(t, string(script), "rm -f /etc/init.d/resize2fs_once")

	// second run is a no-op
	result, err = autoexpand.InstallTrigger(root)
	require.NoError(t, err)
	assert.False(t, result.Changed())
}

func TestInstallTriggerHelperMissing(t *testing.T) {
	t.Parallel()

	root := afero.NewMemMapFs()

	result, err := autoexpand.InstallTrigger(root)
	require.NoError(t, err)
	assert.True(t, result.HelperMissing)
	assert.False(t, result.Changed())

	ok, err := afero.Exists(root, autoexpand.ScriptPath)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateCmdline(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name     string
		contents string
		expected string
		changed  bool
	}{
		{
			name:     "append",
			contents: cmdline,
			expected: strings.TrimSuffix(cmdline, "\n") + " init=/usr/lib/raspi-config/init_resize.sh\n",
			changed:  true,
		},
		{
			name:     "no trailing newline",
			contents: "root=/dev/mmcblk0p2 rootwait  ",
			expected: "root=/dev/mmcblk0p2 rootwait init=/usr/lib/raspi-config/init_resize.sh",
			changed:  true,
		},
		{
			name:     "empty",
			contents: "",
			expected: "init=/usr/lib/raspi-config/init_resize.sh",
			changed:  true,
		},
		{
			name:     "already present",
			contents: "root=/dev/mmcblk0p2 init=/usr/lib/raspi-config/init_resize.sh\n",
			expected: "root=/dev/mmcblk0p2 init=/usr/lib/raspi-config/init_resize.sh\n",
		},
		{
			name:     "foreign init kept",
			contents: "root=/dev/mmcblk0p2 init=/bin/sh\n",
			expected: "root=/dev/mmcblk0p2 init=/bin/sh\n",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			boot := bootWithCmdline(t, test.contents)

			changed, err := autoexpand.UpdateCmdline(boot)
			require.NoError(t, err)
			assert.Equal(t, test.changed, changed)

			contents, err := afero.ReadFile(boot, autoexpand.CmdlinePath)
			require.NoError(t, err)
			assert.Equal(t, test.expected, string(contents))

			// applying it again never changes the file
			changed, err = autoexpand.UpdateCmdline(boot)
			require.NoError(t, err)
			assert.False(t, changed)

			again, err := afero.ReadFile(boot, autoexpand.CmdlinePath)
			require.NoError(t, err)
			assert.Equal(t, contents, again)
			assert.Equal(t, 1, strings.Count(string(again), "init="))
		})
	}
}

func TestUpdateCmdlineMissing(t *testing.T) {
	t.Parallel()

	_, err := autoexpand.UpdateCmdline(afero.NewMemMapFs())
	require.Error(t, err)
}

type dirMounter struct {
	mounted []string
	failOn  string
}

func (m *dirMounter) Mount(_ context.Context, p *mount.Point) (mount.Unmounter, error) {
	if p.Source == m.failOn {
		return nil, errors.New("mount failed")
	}

	m.mounted = append(m.mounted, p.Source+":"+filepath.Base(p.Target))

	return func() error { return nil }, nil
}

func TestInstall(t *testing.T) {
	t.Parallel()

	dev, err := device.New("/dev/mmcblk0")
	require.NoError(t, err)

	workDir := t.TempDir()

	filesystems := map[string]afero.Fs{
		filepath.Join(workDir, "root"): rootWithHelper(t),
		filepath.Join(workDir, "boot"): bootWithCmdline(t, cmdline),
	}

	mounter := &dirMounter{}
	installer := autoexpand.New(mounter, zaptest.NewLogger(t), autoexpand.WithFilesystem(func(dir string) afero.Fs {
		return filesystems[dir]
	}))

	result, err := installer.Install(context.Background(), dev, workDir)
	require.NoError(t, err)

	assert.Equal(t, autoexpand.Result{ScriptInstalled: true, TriggerInstalled: true, CmdlineUpdated: true}, result)
	assert.Equal(t, []string{"/dev/mmcblk0p2:root", "/dev/mmcblk0p1:boot"}, mounter.mounted)

	result, err = installer.Install(context.Background(), dev, workDir)
	require.NoError(t, err)
	assert.False(t, result.Changed())
}

func TestInstallHelperMissing(t *testing.T) {
	t.Parallel()

	dev, err := device.New("/dev/mmcblk0")
	require.NoError(t, err)

	mounter := &dirMounter{}
	installer := autoexpand.New(mounter, zaptest.NewLogger(t), autoexpand.WithFilesystem(func(string) afero.Fs {
		return afero.NewMemMapFs()
	}))

	result, err := installer.Install(context.Background(), dev, t.TempDir())
	require.NoError(t, err)

	assert.True(t, result.HelperMissing)
	assert.Equal(t, []string{"/dev/mmcblk0p2:root"}, mounter.mounted)
}

func TestInstallMountFailure(t *testing.T) {
	t.Parallel()

	dev, err := device.New("/dev/mmcblk0")
	require.NoError(t, err)

	installer := autoexpand.New(&dirMounter{failOn: dev.RootPartition}, zaptest.NewLogger(t))

	_, err = installer.Install(context.Background(), dev, t.TempDir())
	require.ErrorIs(t, err, failure.ErrImagingFailed)
}
