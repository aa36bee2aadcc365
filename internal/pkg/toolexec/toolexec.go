// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package toolexec runs the external filesystem and partitioning tools.
package toolexec

import (
	"context"
	"io"
)

// Tool names.
const (
	E2fsck    = "e2fsck"
	E4defrag  = "e4defrag"
	Resize2fs = "resize2fs"
	Dumpe2fs  = "dumpe2fs"
	Fdisk     = "fdisk"
	Parted    = "parted"
	Partprobe = "partprobe"
)

// RequiredTools lists every tool a full run invokes.
var RequiredTools = []string{E2fsck, E4defrag, Resize2fs, Dumpe2fs, Fdisk, Parted, Partprobe}

// MaxStderrLen is maximum length of stderr output captured for error message.
const MaxStderrLen = 4096

// Runner executes external tools.
//
// Implementations return stdout on success; on failure the error carries the
// tail of stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	RunWithInput(ctx context.Context, stdin io.Reader, name string, args ...string) (string, error)
}
