// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package geometry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec/toolexectest"
)

func TestInspectorPlan(t *testing.T) {
	t.Parallel()

	dev, err := device.New("/dev/sdb")
	require.NoError(t, err)

	runner := toolexectest.New().
		On("dumpe2fs -h /dev/sdb2", dumpe2fsOutput, nil).
		On("fdisk -l /dev/sdb", fdiskOutput, nil)

	inspector := geometry.NewInspector(runner, zaptest.NewLogger(t))

	plan, err := inspector.Plan(context.Background(), dev)
	require.NoError(t, err)

	assert.Equal(t, geometry.ResizePlan{StartSector: 532480, EndSector: 532480 + 8_000_000 - 1, SectorSize: 512}, plan)
	assert.Equal(t, []string{"dumpe2fs -h /dev/sdb2", "fdisk -l /dev/sdb"}, runner.Lines())
}

func TestInspectorReport(t *testing.T) {
	t.Parallel()

	dev, err := device.New("/dev/sdb")
	require.NoError(t, err)

	runner := toolexectest.New().
		On("dumpe2fs", dumpe2fsOutput, nil).
		On("fdisk", fdiskOutput, nil)

	report, err := geometry.NewInspector(runner, zaptest.NewLogger(t)).Report(context.Background(), dev)
	require.NoError(t, err)

	assert.EqualValues(t, 62333951, report.PartitionEnd)
	assert.EqualValues(t, 62333952*512, report.CurrentImageSize())
	assert.EqualValues(t, 532480+8_000_000-1, report.Plan.EndSector)
}

func TestInspectorToolFailure(t *testing.T) {
	t.Parallel()

	dev, err := device.New("/dev/sdb")
	require.NoError(t, err)

	runner := toolexectest.New().
		On("dumpe2fs", "", errors.New("exit status 1: Bad magic number in super-block"))

	_, err = geometry.NewInspector(runner, zaptest.NewLogger(t)).Plan(context.Background(), dev)
	require.ErrorIs(t, err, failure.ErrGeometryUnavailable)
	assert.Contains(t, err.Error(), "Bad magic number")
	assert.False(t, runner.Called("fdisk"))
}
