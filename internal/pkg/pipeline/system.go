// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pipeline

import (
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/autoexpand"
	"github.com/siderolabs/rpi-shrink/internal/pkg/extract"
	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
	"github.com/siderolabs/rpi-shrink/internal/pkg/mount"
	"github.com/siderolabs/rpi-shrink/internal/pkg/partition"
	"github.com/siderolabs/rpi-shrink/internal/pkg/preflight"
	"github.com/siderolabs/rpi-shrink/internal/pkg/shrink"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
	"github.com/siderolabs/rpi-shrink/pkg/compress"
	"github.com/siderolabs/rpi-shrink/pkg/logging"
)

// NewSystem returns a pipeline operating on the host's tools, mounts and block devices.
func NewSystem(opts Options, logger *zap.Logger) *Pipeline {
	runner := toolexec.NewSystem(logger.With(logging.Component("toolexec")))
	mounter := mount.NewSystem(logging.Printf(logger.With(logging.Component("mount"))))

	return New(Components{
		Checks:       preflight.Default(afero.NewOsFs()),
		Shrinker:     shrink.New(runner, mounter, logger.With(logging.Component("shrink"))),
		Geometry:     geometry.NewInspector(runner, logger.With(logging.Component("geometry"))),
		Resizer:      partition.NewResizer(runner, partition.NewSystemFlusher(runner), logger.With(logging.Component("partition"))),
		AutoExpander: autoexpand.New(mounter, logger.With(logging.Component("autoexpand"))),
		Extractor:    extract.New(logger.With(logging.Component("extract"))),
		Compress:     compress.File,
	}, opts, logger.With(logging.Component("pipeline")))
}
