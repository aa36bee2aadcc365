// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package config holds the run options, loaded from an optional YAML profile
// and overridden by command line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/siderolabs/rpi-shrink/pkg/compress"
)

// Flag names.
const (
	FlagOutput         = "output"
	FlagName           = "name"
	FlagCompression    = "compression"
	FlagWorkDir        = "work-dir"
	FlagSkipAutoExpand = "skip-autoexpand"
	FlagStateLog       = "state-log"
	FlagLogLevel       = "log-level"
)

// Config is the set of options of a run.
type Config struct {
	Output         string `yaml:"output"`
	Name           string `yaml:"name"`
	Compression    string `yaml:"compression"`
	WorkDir        string `yaml:"workDir"`
	SkipAutoExpand bool   `yaml:"skipAutoExpand"`
	StateLog       string `yaml:"stateLog"`
	LogLevel       string `yaml:"logLevel"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Output:      ".",
		Name:        "raspberrypi",
		Compression: string(compress.None),
		WorkDir:     os.TempDir(),
		LogLevel:    zapcore.InfoLevel.String(),
	}
}

// Load reads a YAML profile on top of the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("error opening config %q: %w", path, err)
	}

	defer f.Close() //nolint:errcheck

	return Decode(f)
}

// Decode reads a YAML profile from r on top of the defaults.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}

	return cfg, nil
}

// Encode renders the config as YAML.
func (c Config) Encode() ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(c); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// AddFlags registers the option flags on flags, bound to c.
func (c *Config) AddFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&c.Output, FlagOutput, "o", c.Output, "directory the image is written to")
	flags.StringVar(&c.Name, FlagName, c.Name, "image base name")
	flags.StringVar(&c.Compression, FlagCompression, c.Compression, "image compression: "+strings.Join(compress.Names(), "|"))
	flags.StringVar(&c.WorkDir, FlagWorkDir, c.WorkDir, "directory for the per-run workspace")
	flags.BoolVar(&c.SkipAutoExpand, FlagSkipAutoExpand, c.SkipAutoExpand, "do not re-arm root filesystem expansion on first boot")
	flags.StringVar(&c.StateLog, FlagStateLog, c.StateLog, "append a record of every run to this file")
	flags.StringVar(&c.LogLevel, FlagLogLevel, c.LogLevel, "log level: debug|info|warn|error")
}

// Override copies the values of every flag explicitly set on flags from src into c.
func (c *Config) Override(flags *pflag.FlagSet, src Config) {
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case FlagOutput:
			c.Output = src.Output
		case FlagName:
			c.Name = src.Name
		case FlagCompression:
			c.Compression = src.Compression
		case FlagWorkDir:
			c.WorkDir = src.WorkDir
		case FlagSkipAutoExpand:
			c.SkipAutoExpand = src.SkipAutoExpand
		case FlagStateLog:
			c.StateLog = src.StateLog
		case FlagLogLevel:
			c.LogLevel = src.LogLevel
		}
	})
}

// Codec returns the parsed compression codec.
func (c Config) Codec() (compress.Codec, error) {
	return compress.Parse(c.Compression)
}

// Level returns the parsed log level.
func (c Config) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

// Validate checks every option.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Output == "" {
		result = multierror.Append(result, errors.New("output directory is empty"))
	}

	if c.Name == "" || strings.ContainsAny(c.Name, `/\`) || c.Name == "." || c.Name == ".." {
		result = multierror.Append(result, fmt.Errorf("invalid image name %q", c.Name))
	}

	if c.WorkDir == "" {
		result = multierror.Append(result, errors.New("work directory is empty"))
	}

	if _, err := c.Codec(); err != nil {
		result = multierror.Append(result, err)
	}

	if _, err := c.Level(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
