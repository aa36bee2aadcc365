// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package toolexec_test

import (
	"context"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
)

func TestToolProcessGroup(t *testing.T) {
	t.Parallel()

	out, err := toolexec.NewSystem(zaptest.NewLogger(t)).Run(context.Background(), "/bin/sh", "-c", `echo $$ $(cut -d" " -f5 /proc/$$/stat)`)
	require.NoError(t, err)

	fields := strings.Fields(out)
	require.Len(t, fields, 2)

	// pid, process group
	assert.Equal(t, fields[0], fields[1])
	assert.NotEqual(t, strconv.Itoa(syscall.Getpgrp()), fields[1])
}
