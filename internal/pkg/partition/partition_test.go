// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package partition_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
	"github.com/siderolabs/rpi-shrink/internal/pkg/partition"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec/toolexectest"
)

const resizedListing = `Disk /dev/sdb: 29.72 GiB, 31914983424 bytes, 62333952 sectors
Units: sectors of 1 * 512 = 512 bytes

Device     Boot  Start     End Sectors  Size Id Type
/dev/sdb1         8192  532479  524288  256M  c W95 FAT32 (LBA)
/dev/sdb2       532480 8532479 8000000  3.8G 83 Linux
`

type fakeFlusher struct {
	runner *toolexectest.Recorder
	err    error
}

func (f *fakeFlusher) Flush(ctx context.Context, dev device.Handle) error {
	f.runner.Run(ctx, "flush", dev.Path) //nolint:errcheck

	return f.err
}

type ResizerSuite struct {
	suite.Suite

	runner  *toolexectest.Recorder
	flusher *fakeFlusher
	resizer *partition.Resizer
	dev     device.Handle
	plan    geometry.ResizePlan
}

func (suite *ResizerSuite) SetupTest() {
	var err error

	suite.dev, err = device.New("/dev/sdb")
	suite.Require().NoError(err)

	suite.runner = toolexectest.New()
	suite.flusher = &fakeFlusher{runner: suite.runner}
	suite.resizer = partition.NewResizer(suite.runner, suite.flusher, zaptest.NewLogger(suite.T()))
	suite.plan = geometry.ResizePlan{StartSector: 532480, EndSector: 8532479, SectorSize: 512}
}

func (suite *ResizerSuite) TestResize() {
	suite.runner.On("fdisk", resizedListing, nil)

	suite.Require().NoError(suite.resizer.Resize(context.Background(), suite.dev, suite.plan))
	suite.Require().NoError(suite.resizer.Recheck(context.Background(), suite.dev))

	suite.Assert().Equal([]string{
		"parted ---pretend-input-tty /dev/sdb unit s resizepart 2 8532479s",
		"flush /dev/sdb",
		"fdisk -l /dev/sdb",
		"e2fsck -f -y /dev/sdb2",
	}, suite.runner.Lines())

	suite.Assert().Equal("Yes\n", suite.runner.Calls()[0].Stdin)
}

func (suite *ResizerSuite) TestPartedFailure() {
	suite.runner.On("parted", "", errors.New("exit status 1: Error: Can't have a partition outside the disk!"))

	err := suite.resizer.Resize(context.Background(), suite.dev, suite.plan)
	suite.Require().ErrorIs(err, failure.ErrResizeFailed)
	suite.Assert().False(suite.runner.Called("flush"))
}

func (suite *ResizerSuite) TestFlushFailure() {
	suite.flusher.err = errors.New("device or resource busy")

	err := suite.resizer.Resize(context.Background(), suite.dev, suite.plan)
	suite.Require().ErrorIs(err, failure.ErrResizeFailed)
	suite.Assert().False(suite.runner.Called("fdisk"))
}

func (suite *ResizerSuite) TestVerifyEndMismatch() {
	plan := suite.plan
	plan.EndSector++

	suite.runner.On("fdisk", resizedListing, nil)

	err := suite.resizer.Resize(context.Background(), suite.dev, plan)
	suite.Require().ErrorIs(err, failure.ErrResizeFailed)
	suite.Assert().Equal(failure.ErrResizeFailed, failure.Kind(err))
	suite.Assert().Contains(err.Error(), "ends at sector 8532479, expected 8532480")
}

func (suite *ResizerSuite) TestVerifyStartMoved() {
	plan := suite.plan
	plan.StartSector = 8192

	suite.runner.On("fdisk", resizedListing, nil)

	err := suite.resizer.Resize(context.Background(), suite.dev, plan)
	suite.Require().ErrorIs(err, failure.ErrResizeFailed)
	suite.Assert().Contains(err.Error(), "start moved")
}

func (suite *ResizerSuite) TestVerifyUnreadable() {
	suite.runner.On("fdisk", "garbage", nil)

	err := suite.resizer.Resize(context.Background(), suite.dev, suite.plan)
	suite.Require().ErrorIs(err, failure.ErrResizeFailed)
	suite.Assert().Equal(failure.ErrResizeFailed, failure.Kind(err))
}

func (suite *ResizerSuite) TestRecheckFailure() {
	suite.runner.On("e2fsck -f -y", "", errors.New("exit status 4"))

	err := suite.resizer.Recheck(context.Background(), suite.dev)
	suite.Require().ErrorIs(err, failure.ErrFilesystemInconsistent)
}

func TestResizerSuite(t *testing.T) {
	suite.Run(t, new(ResizerSuite))
}
