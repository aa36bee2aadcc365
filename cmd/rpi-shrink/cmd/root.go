// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package cmd implements the rpi-shrink commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/config"
	"github.com/siderolabs/rpi-shrink/pkg/logging"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:               "rpi-shrink",
	Short:             "Shrink a Raspberry Pi SD card and capture it into a minimal image",
	Long:              ``,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// tool output is parsed, keep it untranslated
		if err := os.Setenv("LC_ALL", "C"); err != nil {
			return err
		}

		resolved, err := resolveConfig(rootCmdFlags.configPath, cmd.Flags(), flagValues)
		if err != nil {
			return err
		}

		cfg = resolved

		return nil
	},
}

var rootCmdFlags struct {
	configPath string
}

var (
	// flagValues is bound to the command line flags.
	flagValues = config.Default()
	// cfg is the effective configuration of the command.
	cfg config.Config
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", oneLine(err))
	}

	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootCmdFlags.configPath, "config", "", "YAML profile with default options, flags take precedence")
	flagValues.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(runCmd, inspectCmd, versionCmd)
}

// resolveConfig layers the explicitly set flags over the profile at path, or over the defaults.
func resolveConfig(path string, flags *pflag.FlagSet, values config.Config) (config.Config, error) {
	resolved := config.Default()

	if path != "" {
		var err error

		if resolved, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	resolved.Override(flags, values)

	if err := resolved.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return resolved, nil
}

func newLogger(w io.Writer, c config.Config) (*zap.Logger, error) {
	level, err := c.Level()
	if err != nil {
		return nil, err
	}

	var opts []logging.EncoderOption

	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		opts = append(opts, logging.WithColoredLevels())
	}

	return logging.ZapLogger(logging.NewLogDestination(w, level, opts...)), nil
}

// oneLine flattens multi-line errors, such as aggregated ones, into a single line.
func oneLine(err error) string {
	lines := strings.FieldsFunc(err.Error(), func(r rune) bool { return r == '\n' })

	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	return strings.Join(lines, " ")
}
