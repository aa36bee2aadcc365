// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pipeline

import (
	"context"
	"fmt"
)

// Stage names one step of the pipeline.
type Stage int

const (
	// Preflight verifies tools, privileges and the device layout.
	Preflight Stage = iota
	// CheckInitial runs the automatic filesystem check.
	CheckInitial
	// Defragment mounts and defragments the root filesystem.
	Defragment
	// CheckFinal forces a full filesystem check.
	CheckFinal
	// Shrink reduces the root filesystem to its minimum.
	Shrink
	// Geometry reads the filesystem and partition geometry and computes the plan.
	Geometry
	// Resize moves the root partition end and verifies the table.
	Resize
	// ReCheck checks the filesystem inside the resized partition.
	ReCheck
	// AutoExpand re-enables the first boot expansion.
	AutoExpand
	// Extract copies the device extent into the workspace.
	Extract
	// Compress writes the final artifact to the output directory.
	Compress
)

var stageNames = [...]string{
	"preflight",
	"check-initial",
	"defragment",
	"check-final",
	"shrink",
	"geometry",
	"resize",
	"recheck",
	"autoexpand",
	"extract",
	"compress",
}

// String returns the string representation of a `Stage`.
func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}

	return stageNames[s]
}

// StepFunc performs a single stage.
type StepFunc func(ctx context.Context, st *State) error

// Step binds a stage to its implementation.
type Step struct {
	Stage Stage
	Run   StepFunc
}

// StepList is an ordered list of steps.
type StepList []Step

// Append appends a step to the list.
func (l StepList) Append(stage Stage, fn StepFunc) StepList {
	return append(l, Step{Stage: stage, Run: fn})
}

// AppendWhen appends a step to the list when `when` is true.
func (l StepList) AppendWhen(when bool, stage Stage, fn StepFunc) StepList {
	if !when {
		return l
	}

	return l.Append(stage, fn)
}

// Stages returns the stages of the list in order.
func (l StepList) Stages() []Stage {
	stages := make([]Stage, 0, len(l))

	for _, step := range l {
		stages = append(stages, step.Stage)
	}

	return stages
}
