// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pipeline runs the shrink stages against a device in order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/siderolabs/rpi-shrink/internal/pkg/autoexpand"
	"github.com/siderolabs/rpi-shrink/internal/pkg/device"
	"github.com/siderolabs/rpi-shrink/internal/pkg/extract"
	"github.com/siderolabs/rpi-shrink/internal/pkg/failure"
	"github.com/siderolabs/rpi-shrink/internal/pkg/geometry"
	"github.com/siderolabs/rpi-shrink/internal/pkg/preflight"
	"github.com/siderolabs/rpi-shrink/pkg/compress"
	"github.com/siderolabs/rpi-shrink/pkg/logging"
)

// FilesystemShrinker checks, defragments and shrinks the root filesystem.
type FilesystemShrinker interface {
	Preen(ctx context.Context, partition string)
	Defragment(ctx context.Context, partition, mountpoint string) error
	Check(ctx context.Context, partition string) error
	ShrinkToMinimum(ctx context.Context, partition string) error
}

// GeometryInspector computes the resize plan of a device.
type GeometryInspector interface {
	Plan(ctx context.Context, dev device.Handle) (geometry.ResizePlan, error)
}

// PartitionResizer moves the root partition end and checks the result.
type PartitionResizer interface {
	Resize(ctx context.Context, dev device.Handle, plan geometry.ResizePlan) error
	Recheck(ctx context.Context, dev device.Handle) error
}

// AutoExpander re-arms the first boot expansion.
type AutoExpander interface {
	Install(ctx context.Context, dev device.Handle, workDir string) (autoexpand.Result, error)
}

// ImageExtractor copies the planned extent of a device into a file.
type ImageExtractor interface {
	Extract(ctx context.Context, dev device.Handle, plan geometry.ResizePlan, dest string) (extract.Artifact, error)
}

// Compressor writes src to dst encoded with codec.
type Compressor func(src, dst string, codec compress.Codec, opts ...compress.FileOption) (compress.Output, error)

// Components are the collaborators of a pipeline.
type Components struct {
	Checks       []preflight.Check
	Shrinker     FilesystemShrinker
	Geometry     GeometryInspector
	Resizer      PartitionResizer
	AutoExpander AutoExpander
	Extractor    ImageExtractor
	Compress     Compressor
}

// Options configure a run.
type Options struct {
	// RunID names the run, a random one is generated when empty.
	RunID          string
	WorkDir        string
	OutputDir      string
	Name           string
	Codec          compress.Codec
	SkipAutoExpand bool
	// StateLog is appended to after every run when set.
	StateLog string
	Clock    clock.Clock
}

// Result describes what a run achieved, including runs that failed.
type Result struct {
	RunID      string
	Device     device.Handle
	Completed  []Stage
	Plan       geometry.ResizePlan
	AutoExpand autoexpand.Result
	Output     compress.Output
}

// Done reports whether stage completed.
func (r Result) Done(stage Stage) bool {
	return slices.Contains(r.Completed, stage)
}

// State is threaded through the steps of a run.
type State struct {
	Result

	Workspace *Workspace
	Artifact  extract.Artifact
}

// Pipeline runs the stages against a device.
type Pipeline struct {
	components Components
	opts       Options
	logger     *zap.Logger
}

// New returns a Pipeline.
func New(components Components, opts Options, logger *zap.Logger) *Pipeline {
	if components.Compress == nil {
		components.Compress = compress.File
	}

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	return &Pipeline{
		components: components,
		opts:       opts,
		logger:     logger,
	}
}

// Steps returns the steps of a run in order.
func (p *Pipeline) Steps() StepList {
	return StepList{}.
		Append(Preflight, p.preflight).
		Append(CheckInitial, p.checkInitial).
		Append(Defragment, p.defragment).
		Append(CheckFinal, p.checkFinal).
		Append(Shrink, p.shrink).
		Append(Geometry, p.geometry).
		Append(Resize, p.resize).
		Append(ReCheck, p.recheck).
		AppendWhen(!p.opts.SkipAutoExpand, AutoExpand, p.autoExpand).
		Append(Extract, p.extract).
		Append(Compress, p.compress)
}

// Run executes every step against dev.
//
// Cancellation of ctx is observed between stages only. Once the partition
// table has been modified, cancellation before the image reached the output
// directory is reported as failure.ErrIncomplete.
func (p *Pipeline) Run(ctx context.Context, dev device.Handle) (Result, error) {
	st := &State{
		Result: Result{
			RunID:  p.opts.RunID,
			Device: dev,
		},
	}

	if st.RunID == "" {
		st.RunID = uuid.NewString()
	}

	logger := p.logger.With(zap.String("run", st.RunID), zap.String("device", dev.Path))

	err := p.execute(ctx, st, logger)

	if p.opts.StateLog != "" {
		if logErr := AppendStateLog(p.opts.StateLog, p.opts.Clock.Now(), st.Result, err); logErr != nil {
			logger.Warn("failed to append state log", zap.String("path", p.opts.StateLog), zap.Error(logErr))
		}
	}

	return st.Result, err
}

func (p *Pipeline) execute(ctx context.Context, st *State, logger *zap.Logger) (err error) {
	ws, err := NewWorkspace(p.opts.WorkDir, st.RunID)
	if err != nil {
		return &StageError{
			Stage: Preflight,
			Err:   failure.Wrap(failure.ErrPreconditionUnmet, err, "creating workspace in %s", p.opts.WorkDir),
		}
	}

	st.Workspace = ws

	logger.Debug("workspace created", zap.String("workspace", ws.Dir))

	defer func() {
		if rmErr := ws.Remove(); rmErr != nil {
			logger.Error("failed to remove workspace", zap.String("workspace", ws.Dir), zap.Error(rmErr))

			err = multierror.Append(err, fmt.Errorf("error removing workspace: %w", rmErr)).ErrorOrNil()
		}
	}()

	steps := p.Steps()

	logger.Info("run started", zap.Stringers("stages", steps.Stages()))

	for _, step := range steps {
		if ctx.Err() != nil {
			return p.cancelled(st, step.Stage, context.Cause(ctx))
		}

		stageLogger := logger.With(zap.Stringer("stage", step.Stage))
		stageLogger.Info("stage started")

		start := p.opts.Clock.Now()

		if err = step.Run(context.WithoutCancel(ctx), st); err != nil {
			stageLogger.Error("stage failed", zap.Error(err))

			return &StageError{Stage: step.Stage, Err: err}
		}

		st.Completed = append(st.Completed, step.Stage)

		stageLogger.Info("stage finished", zap.Duration("elapsed", p.opts.Clock.Since(start)))
	}

	logger.Info("image written",
		zap.String("path", st.Output.Path),
		zap.Int64("size", st.Output.Size),
		zap.String("sha256", st.Output.SHA256),
	)

	return nil
}

func (p *Pipeline) cancelled(st *State, next Stage, cause error) error {
	if st.Done(Resize) {
		return &StageError{
			Stage: next,
			Err:   failure.Wrap(failure.ErrIncomplete, cause, "%s was resized but no image was captured", st.Device.Path),
		}
	}

	return &StageError{Stage: next, Err: cause}
}

func (p *Pipeline) preflight(ctx context.Context, st *State) error {
	return preflight.Run(ctx, p.logger.With(zap.String("run", st.RunID)), st.Device, p.components.Checks...)
}

func (p *Pipeline) checkInitial(ctx context.Context, st *State) error {
	p.components.Shrinker.Preen(ctx, st.Device.RootPartition)

	return nil
}

func (p *Pipeline) defragment(ctx context.Context, st *State) error {
	return p.components.Shrinker.Defragment(ctx, st.Device.RootPartition, st.Workspace.Path("defrag"))
}

func (p *Pipeline) checkFinal(ctx context.Context, st *State) error {
	return p.components.Shrinker.Check(ctx, st.Device.RootPartition)
}

func (p *Pipeline) shrink(ctx context.Context, st *State) error {
	return p.components.Shrinker.ShrinkToMinimum(ctx, st.Device.RootPartition)
}

func (p *Pipeline) geometry(ctx context.Context, st *State) error {
	plan, err := p.components.Geometry.Plan(ctx, st.Device)
	if err != nil {
		return err
	}

	st.Plan = plan

	return nil
}

func (p *Pipeline) resize(ctx context.Context, st *State) error {
	return p.components.Resizer.Resize(ctx, st.Device, st.Plan)
}

func (p *Pipeline) recheck(ctx context.Context, st *State) error {
	return p.components.Resizer.Recheck(ctx, st.Device)
}

func (p *Pipeline) autoExpand(ctx context.Context, st *State) error {
	result, err := p.components.AutoExpander.Install(ctx, st.Device, st.Workspace.Dir)

	st.AutoExpand = result

	return err
}

func (p *Pipeline) extract(ctx context.Context, st *State) error {
	artifact, err := p.components.Extractor.Extract(ctx, st.Device, st.Plan, st.Workspace.Path(p.opts.Name+".img"))
	if err != nil {
		return err
	}

	st.Artifact = artifact

	return nil
}

// ImagePath returns the path of the final artifact.
func (p *Pipeline) ImagePath() string {
	return filepath.Join(p.opts.OutputDir, p.opts.Name+".img"+p.opts.Codec.Extension())
}

func (p *Pipeline) compress(_ context.Context, st *State) error {
	dst := p.ImagePath()

	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return failure.Wrap(failure.ErrImagingFailed, err, "creating output directory %s", p.opts.OutputDir)
	}

	progress := logging.NewProgress(p.logger.With(zap.String("run", st.RunID)), "compressing", uint64(st.Artifact.Size))

	out, err := p.components.Compress(st.Artifact.Path, dst, p.opts.Codec, compress.WithProgress(func(read int64) {
		progress.Update(uint64(read))
	}))
	if err == nil {
		err = compress.Verify(out.Path, p.opts.Codec, st.Artifact.Size)
	}

	if err != nil {
		for _, path := range []string{dst, dst + compress.ChecksumSuffix} {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				err = multierror.Append(err, rmErr)
			}
		}

		return failure.Wrap(failure.ErrImagingFailed, err, "writing %s", dst)
	}

	st.Output = out

	return nil
}
