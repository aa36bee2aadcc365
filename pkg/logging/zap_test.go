// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package logging_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/siderolabs/rpi-shrink/pkg/logging"
)

func TestZapLogger(t *testing.T) {
	t.Parallel()

	var debug, warn bytes.Buffer

	logger := logging.ZapLogger(
		logging.NewLogDestination(&debug, zapcore.DebugLevel, logging.WithoutTimestamp()),
		logging.NewLogDestination(&warn, zapcore.WarnLevel, logging.WithoutTimestamp()),
	).With(logging.Component("shrink"))

	logger.Debug("checking")
	logger.Warn("helper missing")

	assert.Equal(t, 2, strings.Count(debug.String(), "\n"))
	assert.Equal(t, "WARN helper missing {\"component\": \"shrink\"}\n", warn.String())
}

func TestWriterAndPrintf(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := logging.ZapLogger(logging.NewLogDestination(&buf, zapcore.InfoLevel, logging.WithoutTimestamp()))

	n, err := logging.NewWriter(logger, zapcore.InfoLevel).Write([]byte("  e4defrag: done \n"))
	assert.NoError(t, err)
	assert.Equal(t, 18, n)

	n, err = logging.NewWriter(logger, zapcore.DebugLevel).Write([]byte("dropped\n"))
	assert.NoError(t, err)
	assert.Equal(t, 8, n)

	logging.Printf(logger)("mounting %s", "/dev/sdb2")

	assert.Equal(t, "INFO e4defrag: done\nINFO mounting /dev/sdb2\n", buf.String())
}
