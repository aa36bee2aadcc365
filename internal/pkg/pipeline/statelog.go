// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alexflint/go-filemutex"
	"github.com/dustin/go-humanize"
	"github.com/siderolabs/gen/xslices"
)

const stateLogHeader = "# rpi-shrink state log, one section per run, newest at the bottom.\n\n"

// AppendStateLog appends a human readable record of a run to path.
//
// Concurrent runs sharing a state log are serialized on path.lock.
func AppendStateLog(path string, at time.Time, result Result, runErr error) error {
	lock, err := filemutex.New(path + ".lock")
	if err != nil {
		return err
	}

	defer lock.Close() //nolint:errcheck

	if err = lock.Lock(); err != nil {
		return err
	}

	defer lock.Unlock() //nolint:errcheck

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	defer f.Close() //nolint:errcheck

	if st, statErr := f.Stat(); statErr == nil && st.Size() == 0 {
		if _, err = f.WriteString(stateLogHeader); err != nil {
			return err
		}
	}

	_, err = f.WriteString(FormatStateLog(at, result, runErr))

	return err
}

// FormatStateLog renders a single state log section.
func FormatStateLog(at time.Time, result Result, runErr error) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s %s ===\n", result.RunID, at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "device: %s\n", result.Device.Path)
	fmt.Fprintf(&b, "stages: %s\n", strings.Join(xslices.Map(result.Completed, Stage.String), " "))

	if result.Plan.SectorSize != 0 {
		fmt.Fprintf(&b, "plan: %s\n", result.Plan)
	}

	if result.Output.Path != "" {
		fmt.Fprintf(&b, "image: %s (%s)\n", result.Output.Path, humanize.IBytes(uint64(result.Output.Size)))
		fmt.Fprintf(&b, "sha256: %s\n", result.Output.SHA256)
	}

	if runErr != nil {
		fmt.Fprintf(&b, "result: FAILED: %v\n\n", runErr)
	} else {
		fmt.Fprintf(&b, "result: SUCCESS\n\n")
	}

	return b.String()
}
