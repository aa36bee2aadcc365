// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/siderolabs/rpi-shrink/internal/pkg/version"
)

var versionCmdFlags struct {
	short bool
}

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Prints the version",
	Long:  ``,
	Args:  cobra.NoArgs,
	// the version is printed even with a broken profile
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE: func(cmd *cobra.Command, _ []string) error {
		v := version.NewVersion()

		if versionCmdFlags.short {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), v.Short())

			return err
		}

		return version.WriteLongVersion(cmd.OutOrStdout(), v)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCmdFlags.short, "short", false, "Print the short version")
}
