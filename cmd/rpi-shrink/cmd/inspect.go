// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
	"github.com/siderolabs/rpi-shrink/pkg/cli"
	"github.com/siderolabs/rpi-shrink/pkg/logging"
)

// inspectCmd represents the inspect command.
var inspectCmd = &cobra.Command{
	Use:   "inspect <device>",
	Short: "Report the root filesystem and partition geometry of a device",
	Long: `Reads the filesystem superblock and the partition table of the device without
modifying it, and reports the size of an image of the device as it is now and of
an image ending at the current filesystem extent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.WithContext(cmd.Context(), func(ctx context.Context) error {
			dev, err := device.New(args[0])
			if err != nil {
				return err
			}

			if err = toolexec.Require(toolexec.Dumpe2fs, toolexec.Fdisk); err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}

			defer logger.Sync() //nolint:errcheck

			runner := toolexec.NewSystem(logger.With(logging.Component("toolexec")))

			report, err := geometry.NewInspector(runner, logger.With(logging.Component("geometry"))).Report(ctx, dev)
			if err != nil {
				return err
			}

			return writeReport(cmd.OutOrStdout(), dev, report)
		})
	},
}

func writeReport(out io.Writer, dev device.Handle, report geometry.Report) error {
	lines := []string{
		fmt.Sprintf("DEVICE | %s", dev.Path),
		fmt.Sprintf("ROOT PARTITION | %s", dev.RootPartition),
		fmt.Sprintf("SECTOR SIZE | %d", report.Partition.SectorSize),
		fmt.Sprintf("PARTITION SECTORS | %d-%d", report.Partition.StartSector, report.PartitionEnd),
		fmt.Sprintf("FILESYSTEM | %s", report.Filesystem),
		fmt.Sprintf("CURRENT IMAGE | %s", humanize.IBytes(report.CurrentImageSize())),
		fmt.Sprintf("FILESYSTEM END SECTOR | %d", report.Plan.EndSector),
		fmt.Sprintf("FILESYSTEM IMAGE | %s", humanize.IBytes(report.Plan.ImageSize())),
	}

	_, err := fmt.Fprintln(out, columnize.SimpleFormat(lines))

	return err
}
