// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/siderolabs/rpi-shrink/internal/pkg/preflight"
)

// Workspace is the scratch directory of a single run. It holds the mount
// points and the raw image until compression.
type Workspace struct {
	Dir string

	mounts string
}

// NewWorkspace creates a fresh directory below parent named after the run.
func NewWorkspace(parent, runID string) (*Workspace, error) {
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(parent, "rpi-shrink-"+runID+"-")
	if err != nil {
		return nil, err
	}

	return &Workspace{
		Dir:    dir,
		mounts: preflight.MountsPath,
	}, nil
}

// Path joins elem onto the workspace directory.
func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir}, elem...)...)
}

// Remove deletes the workspace.
//
// The workspace is left in place when anything is still mounted below it.
func (w *Workspace) Remove() error {
	mounted, err := w.mounted()
	if err != nil {
		return err
	}

	if len(mounted) > 0 {
		return fmt.Errorf("leaving workspace %s in place, still mounted: %s", w.Dir, strings.Join(mounted, ", "))
	}

	return os.RemoveAll(w.Dir)
}

var mountsUnescaper = strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)

func (w *Workspace) mounted() ([]string, error) {
	contents, err := os.ReadFile(w.mounts)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	prefix := filepath.Clean(w.Dir) + string(filepath.Separator)

	var mounted []string

	scanner := bufio.NewScanner(bytes.NewReader(contents))

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		target := mountsUnescaper.Replace(fields[1])

		if target == filepath.Clean(w.Dir) || strings.HasPrefix(target, prefix) {
			mounted = append(mounted, target)
		}
	}

	return mounted, scanner.Err()
}
