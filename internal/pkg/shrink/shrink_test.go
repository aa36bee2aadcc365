// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package shrink_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/mount"
	"github.com/siderolabs/rpi-shrink/internal/pkg/shrink"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec/toolexectest"
)

type recordingMounter struct {
	runner *toolexectest.Recorder
	err    error
}

// Mount records mount and unmount as pseudo invocations so ordering is visible.
func (m *recordingMounter) Mount(ctx context.Context, p *mount.Point) (mount.Unmounter, error) {
	if m.err != nil {
		return nil, m.err
	}

	m.runner.Run(ctx, "mount", p.Source) //nolint:errcheck

	return func() error {
		_, err := m.runner.Run(ctx, "umount", p.Target)

		return err
	}, nil
}

type ShrinkSuite struct {
	suite.Suite

	runner     *toolexectest.Recorder
	mounter    *recordingMounter
	shrinker   *shrink.Shrinker
	mountpoint string
}

func (suite *ShrinkSuite) SetupTest() {
	suite.runner = toolexectest.New()
	suite.mounter = &recordingMounter{runner: suite.runner}
	suite.shrinker = shrink.New(suite.runner, suite.mounter, zaptest.NewLogger(suite.T()))
	suite.mountpoint = filepath.Join(suite.T().TempDir(), "root")
}

func (suite *ShrinkSuite) TestSequence() {
	ctx := context.Background()

	suite.shrinker.Preen(ctx, "/dev/sdb2")
	suite.Require().NoError(suite.shrinker.Defragment(ctx, "/dev/sdb2", suite.mountpoint))
	suite.Require().NoError(suite.shrinker.Check(ctx, "/dev/sdb2"))
	suite.Require().NoError(suite.shrinker.ShrinkToMinimum(ctx, "/dev/sdb2"))

	suite.Assert().Equal([]string{
		"e2fsck -f -p /dev/sdb2",
		"mount /dev/sdb2",
		"e4defrag " + suite.mountpoint,
		"umount " + suite.mountpoint,
		"e2fsck -f -y /dev/sdb2",
		"resize2fs -M /dev/sdb2",
	}, suite.runner.Lines())
}

func (suite *ShrinkSuite) TestPreenFailureIgnored() {
	suite.runner.On("e2fsck -f -p", "", errors.New("exit status 4"))

	suite.shrinker.Preen(context.Background(), "/dev/sdb2")

	suite.Assert().True(suite.runner.Called("e2fsck"))
}

func (suite *ShrinkSuite) TestCheckFailure() {
	suite.runner.On("e2fsck -f -y", "", errors.New("exit status 8"))

	err := suite.shrinker.Check(context.Background(), "/dev/sdb2")
	suite.Require().ErrorIs(err, failure.ErrFilesystemInconsistent)
}

func (suite *ShrinkSuite) TestDefragmentFailureUnmounts() {
	suite.runner.On("e4defrag", "", errors.New("exit status 1"))

	err := suite.shrinker.Defragment(context.Background(), "/dev/sdb2", suite.mountpoint)
	suite.Require().ErrorIs(err, failure.ErrResizeFailed)

	suite.Assert().Equal("umount "+suite.mountpoint, suite.runner.Lines()[2])
}

func (suite *ShrinkSuite) TestDefragmentMountFailure() {
	suite.mounter.err = errors.New("wrong fs type")

	err := suite.shrinker.Defragment(context.Background(), "/dev/sdb2", suite.mountpoint)
	suite.Require().ErrorIs(err, failure.ErrResizeFailed)
	suite.Assert().False(suite.runner.Called("e4defrag"))
}

func (suite *ShrinkSuite) TestShrinkFailure() {
	suite.runner.On("resize2fs", "", errors.New("exit status 1: Please run 'e2fsck -f' first"))

	err := suite.shrinker.ShrinkToMinimum(context.Background(), "/dev/sdb2")
	suite.Require().ErrorIs(err, failure.ErrResizeFailed)
	suite.Assert().Contains(err.Error(), "e2fsck -f")
}

func TestShrinkSuite(t *testing.T) {
	suite.Run(t, new(ShrinkSuite))
}
