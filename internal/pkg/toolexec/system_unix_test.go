// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix

package toolexec_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
)

const interruptedEnv = "RPI_SHRINK_TOOLEXEC_INTERRUPTED"

// TestToolSurvivesInterrupt re-runs itself in a fresh process group which then
// interrupts its whole group while a tool is running, like ^C in a terminal.
func TestToolSurvivesInterrupt(t *testing.T) {
	if os.Getenv(interruptedEnv) == "1" {
		interruptGroupDuringTools(t)

		return
	}

	exe, err := os.Executable()
	require.NoError(t, err)

	c := exec.Command(exe, "-test.run=^TestToolSurvivesInterrupt$", "-test.v")
	c.Env = append(os.Environ(), interruptedEnv+"=1")
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	out, err := c.CombinedOutput()
	require.NoError(t, err, string(out))

	assert.Contains(t, string(out), "run: done\n")
	assert.Contains(t, string(out), "input: got Yes\n")
}

func interruptGroupDuringTools(t *testing.T) {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	ctx := context.Background()
	runner := toolexec.NewSystem(zap.NewNop())

	for _, tt := range []struct {
		name     string
		run      func() (string, error)
		expected string
	}{
		{
			name: "run",
			run: func() (string, error) {
				return runner.Run(ctx, "/bin/sh", "-c", "sleep 1; echo done")
			},
			expected: "done\n",
		},
		{
			name: "input",
			run: func() (string, error) {
				return runner.RunWithInput(ctx, strings.NewReader("Yes\n"), "/bin/sh", "-c", "read answer; sleep 1; echo got $answer")
			},
			expected: "got Yes\n",
		},
	} {
		timer := time.AfterFunc(300*time.Millisecond, func() {
			syscall.Kill(0, syscall.SIGINT) //nolint:errcheck
		})

		out, err := tt.run()
		timer.Stop()

		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, out, tt.name)

		select {
		case <-sigCh:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: interrupt was not delivered", tt.name)
		}

		fmt.Printf("%s: %s", tt.name, out)
	}
}
