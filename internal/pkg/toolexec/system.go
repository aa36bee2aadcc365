// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/armon/circbuf"
	"github.com/hashicorp/go-multierror"
	"github.com/siderolabs/go-cmd/pkg/cmd"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
)

// System runs tools found in $PATH.
//
// A started tool is never interrupted. It runs in its own process group, so a
// terminal interrupt reaches this process only, and the context only carries
// values: its cancellation is ignored until the tool exits.
//
// Failures with an exit code are reported as *cmd.ExitError carrying the tail
// of stderr.
type System struct {
	logger *zap.Logger
}

// NewSystem returns a Runner backed by the host.
func NewSystem(logger *zap.Logger) *System {
	return &System{logger: logger}
}

// Run implements Runner.
func (s *System) Run(_ context.Context, name string, args ...string) (string, error) {
	s.logger.Debug("running tool", zap.String("tool", name), zap.Strings("args", args))

	return run(exec.Command(name, args...))
}

// RunWithInput implements Runner.
func (s *System) RunWithInput(_ context.Context, stdin io.Reader, name string, args ...string) (string, error) {
	s.logger.Debug("running tool with input", zap.String("tool", name), zap.Strings("args", args))

	c := exec.Command(name, args...)
	c.Stdin = stdin

	return run(c)
}

// run collects the whole stdout, dumpe2fs and fdisk listings can exceed
// any fixed size buffer.
func run(c *exec.Cmd) (string, error) {
	c.SysProcAttr = procAttr()

	var stdout bytes.Buffer

	c.Stdout = &stdout

	stderr, err := circbuf.NewBuffer(MaxStderrLen)
	if err != nil {
		return "", err
	}

	c.Stderr = stderr

	if err = c.Run(); err != nil {
		var exitErr *exec.ExitError

		if errors.As(err, &exitErr) && exitErr.ExitCode() != -1 {
			return stdout.String(), &cmd.ExitError{
				ExitCode: exitErr.ExitCode(),
				Output:   stderr.Bytes(),
			}
		}

		return stdout.String(), fmt.Errorf("%w: %s", err, stderr.String())
	}

	return stdout.String(), nil
}

// Require checks that every named tool resolves in $PATH.
func Require(names ...string) error {
	var result *multierror.Error

	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s not found in $PATH", name))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return failure.Wrap(failure.ErrPreconditionUnmet, err, "missing tools")
	}

	return nil
}

// CommandLine renders an invocation for logs and fakes.
func CommandLine(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
