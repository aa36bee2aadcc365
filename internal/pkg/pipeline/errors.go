// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pipeline

import (
	"fmt"

	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
)

// StageError records the stage a run aborted in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind returns the error kind of the abort.
func (e *StageError) Kind() error {
	return failure.Kind(e.Err)
}
