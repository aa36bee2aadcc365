// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/config"
	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/pipeline"
	"github.com/siderolabs/rpi-shrink/pkg/cli"
)

var runCmdFlags struct {
	yes bool
}

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:   "run <device>",
	Short: "Shrink the root filesystem of a device and capture the minimal image",
	Long: `Checks, defragments and shrinks the root filesystem of the device to its minimum,
moves the end of the root partition to match, re-arms expansion on first boot and
copies the used extent of the device into an image file.

The device is modified in place, --yes is required.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !runCmdFlags.yes {
			return fmt.Errorf("%s will be modified in place, pass --yes to proceed", args[0])
		}

		return cli.WithContext(cmd.Context(), func(ctx context.Context) error {
			return runShrink(ctx, args[0], cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		})
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runCmdFlags.yes, "yes", "y", false, "confirm that the device may be modified")
}

func runShrink(ctx context.Context, path string, c config.Config, out, logOut io.Writer) error {
	dev, err := device.New(path)
	if err != nil {
		return err
	}

	codec, err := c.Codec()
	if err != nil {
		return err
	}

	logger, err := newLogger(logOut, c)
	if err != nil {
		return err
	}

	defer logger.Sync() //nolint:errcheck

	if encoded, encErr := c.Encode(); encErr == nil {
		logger.Debug("effective configuration", zap.ByteString("config", encoded))
	}

	result, err := pipeline.NewSystem(pipeline.Options{
		WorkDir:        c.WorkDir,
		OutputDir:      c.Output,
		Name:           c.Name,
		Codec:          codec,
		SkipAutoExpand: c.SkipAutoExpand,
		StateLog:       c.StateLog,
	}, logger).Run(ctx, dev)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\t%s\tsha256:%s\n", result.Output.Path, humanize.IBytes(uint64(result.Output.Size)), result.Output.SHA256)

	return nil
}
