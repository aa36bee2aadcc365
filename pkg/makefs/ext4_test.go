// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package makefs_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siderolabs/go-cmd/pkg/cmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec/toolexectest"
	"github.com/siderolabs/rpi-shrink/pkg/makefs"
)

func TestExt4Invocations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	recorder := toolexectest.New()
	withRunner := makefs.WithRunner(recorder.Run)

	require.NoError(t, makefs.Ext4(ctx, "/dev/sdb2", withRunner, makefs.WithForce(true)))
	require.NoError(t, makefs.Ext4Preen(ctx, "/dev/sdb2", withRunner))
	require.NoError(t, makefs.Ext4Defrag(ctx, "/tmp/mnt", withRunner))
	require.NoError(t, makefs.Ext4Repair(ctx, "/dev/sdb2", withRunner))
	require.NoError(t, makefs.Ext4ShrinkToMinimum(ctx, "/dev/sdb2", withRunner))

	_, err := makefs.Ext4Superblock(ctx, "/dev/sdb2", withRunner)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"mkfs.ext4 -F /dev/sdb2",
		"e2fsck -f -p /dev/sdb2",
		"e4defrag /tmp/mnt",
		"e2fsck -f -y /dev/sdb2",
		"resize2fs -M /dev/sdb2",
		"dumpe2fs -h /dev/sdb2",
	}, recorder.Lines())
}

func TestExt4Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("exit status 4")
	withRunner := makefs.WithRunner(toolexectest.New().
		On("e2fsck", "", boom).
		On("resize2fs", "", boom).
		Run)

	err := makefs.Ext4Repair(ctx, "/dev/sdb2", withRunner)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to repair ext4 filesystem")

	err = makefs.Ext4ShrinkToMinimum(ctx, "/dev/sdb2", withRunner)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to shrink ext4 filesystem")

	assert.EqualError(t, makefs.Ext4(ctx, ""), "missing path to disk")
}

func TestE2fsckCorrectedErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for _, tt := range []struct {
		name     string
		exitCode int
		ok       bool
	}{
		{name: "corrected", exitCode: 1, ok: true},
		{name: "reboot required", exitCode: 2},
		{name: "uncorrected", exitCode: 4},
		{name: "operational error", exitCode: 8},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var printed []string

			exitErr := &cmd.ExitError{ExitCode: tt.exitCode, Output: []byte("/dev/sdb2: ***** FILE SYSTEM WAS MODIFIED *****")}
			setters := []makefs.Option{
				makefs.WithRunner(toolexectest.New().On("e2fsck", "", exitErr).Run),
				makefs.WithPrintf(func(format string, args ...any) {
					printed = append(printed, fmt.Sprintf(format, args...))
				}),
			}

			for _, check := range []func(context.Context, string, ...makefs.Option) error{makefs.Ext4Preen, makefs.Ext4Repair} {
				err := check(ctx, "/dev/sdb2", setters...)

				if tt.ok {
					require.NoError(t, err)

					continue
				}

				require.ErrorIs(t, err, exitErr)
			}

			if tt.ok {
				assert.Contains(t, printed, "e2fsck corrected errors on /dev/sdb2")
			} else {
				assert.NotContains(t, printed, "e2fsck corrected errors on /dev/sdb2")
			}
		})
	}
}

// TestExt4ShrinkImage shrinks a real filesystem held in a regular file.
func TestExt4ShrinkImage(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin:/usr/sbin:/sbin")

	for _, tool := range []string{"mkfs.ext4", "e2fsck", "resize2fs", "dumpe2fs"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s is not available", tool)
		}
	}

	ctx := context.Background()
	tempFile := filepath.Join(t.TempDir(), "shrink-ext4.img")

	f, err := os.Create(tempFile)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, os.Truncate(tempFile, 128*1024*1024))

	require.NoError(t, makefs.Ext4(ctx, tempFile, makefs.WithForce(true)))

	before, err := makefs.Ext4Superblock(ctx, tempFile)
	require.NoError(t, err)

	require.NoError(t, makefs.Ext4Repair(ctx, tempFile))
	require.NoError(t, makefs.Ext4ShrinkToMinimum(ctx, tempFile))

	after, err := makefs.Ext4Superblock(ctx, tempFile)
	require.NoError(t, err)

	assert.NotEqual(t, blockCountLine(before), blockCountLine(after))
}

func blockCountLine(dump string) string {
	for line := range strings.SplitSeq(dump, "\n") {
		if strings.HasPrefix(line, "Block count:") {
			return line
		}
	}

	return ""
}
