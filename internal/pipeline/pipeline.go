// Package pipeline runs an ordered list of transform stages over the input
// set of one asset category and writes the result to an output directory.
//
// A Pipeline is immutable once built and holds no per-run state, so any
// number of runs may execute concurrently. Runs never write partial output:
// every stage completes and every output is rendered before the first
// file lands on disk.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/logging"
	"github.com/conneroisu/siteforge/internal/metrics"
)

// Options configures a Pipeline.
type Options struct {
	Category  string
	Stages    []Stage
	OutputDir string
	// Source is rooted at the source tree, Output at the output root.
	Source   afero.Fs
	Output   afero.Fs
	Selector Selector
	Notifier Notifier
	Logger   logging.Logger
	Recorder metrics.Recorder
}

// Pipeline is the rebuild procedure of one asset category.
type Pipeline struct {
	category  string
	stages    []Stage
	outputDir string
	source    afero.Fs
	output    afero.Fs
	selector  Selector
	notifier  Notifier
	logger    logging.Logger
	recorder  metrics.Recorder
}

// Result describes one finished run.
type Result struct {
	RunID    string
	Category string
	Inputs   int
	// Written holds output-root-relative paths in write order.
	Written  []string
	Duration time.Duration
	Err      error
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Category == "" {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "pipeline needs a category")
	}
	if opts.Source == nil || opts.Output == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "pipeline needs source and output filesystems").
			WithCategory(opts.Category)
	}
	if opts.Selector == nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "pipeline needs a selector").
			WithCategory(opts.Category)
	}

	outDir := path.Clean(filepath.ToSlash(opts.OutputDir))
	if outDir == ".." || strings.HasPrefix(outDir, "../") || path.IsAbs(outDir) {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "output directory escapes the output root: "+opts.OutputDir).
			WithCategory(opts.Category)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}

	stages := make([]Stage, len(opts.Stages))
	copy(stages, opts.Stages)

	return &Pipeline{
		category:  opts.Category,
		stages:    stages,
		outputDir: outDir,
		source:    opts.Source,
		output:    opts.Output,
		selector:  opts.Selector,
		notifier:  opts.Notifier,
		logger:    logger.WithComponent("pipeline").With("category", opts.Category),
		recorder:  recorder,
	}, nil
}

// Category returns the category name.
func (p *Pipeline) Category() string { return p.category }

// OutputDir returns the output directory relative to the output root.
func (p *Pipeline) OutputDir() string { return p.outputDir }

// StageNames lists the stages in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes the pipeline once against the current source tree. On
// success the notifier is called exactly once, even when no file was
// written; on failure it is not called and nothing is written.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Category: p.category}
	perf := logging.StartOperation(p.logger, "pipeline.run", "run_id", res.RunID)

	err := p.run(ctx, res)
	res.Duration = perf.Elapsed()
	res.Err = err

	if err != nil {
		p.recorder.ObserveRun(p.category, res.Duration, metrics.OutcomeFailed)
		perf.EndWithError(ctx, err, "inputs", res.Inputs)
		return res, err
	}

	p.recorder.ObserveRun(p.category, res.Duration, metrics.OutcomeSuccess)
	perf.End(ctx, "inputs", res.Inputs, "written", len(res.Written))

	if p.notifier != nil {
		p.notifier.Notify(ctx, res.Written)
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	files, err := p.collect()
	if err != nil {
		return err
	}
	res.Inputs = len(files)

	for _, stage := range p.stages {
		start := time.Now()
		files, err = stage.Apply(ctx, files)
		p.recorder.ObserveStage(p.category, stage.Name(), time.Since(start))
		if err != nil {
			return p.stageError(stage.Name(), err)
		}
		p.logger.Debug(ctx, "Stage finished", "stage", stage.Name(), "files", len(files))
	}

	targets := make([]string, len(files))
	for i, f := range files {
		target, err := p.target(f.Path)
		if err != nil {
			return err
		}
		targets[i] = target
	}

	for i, f := range files {
		if err := writeAtomic(p.output, targets[i], f.Data); err != nil {
			return errors.NewIOError(errors.ErrCodeWriteFailed, "writing "+targets[i], err).
				WithCategory(p.category).
				WithLocation(f.Source, 0, 0)
		}
		res.Written = append(res.Written, targets[i])
	}
	return nil
}

// collect reads every selected file of the source tree in lexical order.
func (p *Pipeline) collect() ([]File, error) {
	var files []File
	err := afero.Walk(p.source, ".", func(name string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := filepath.ToSlash(name)
		if !p.selector.Includes(rel) {
			return nil
		}
		data, err := afero.ReadFile(p.source, name)
		if err != nil {
			return err
		}
		files = append(files, File{Path: rel, Source: rel, Data: data})
		return nil
	})
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "reading source tree", err).
			WithCategory(p.category)
	}
	return files, nil
}

func (p *Pipeline) stageError(stage string, err error) error {
	var se *errors.SiteError
	if errors.As(err, &se) {
		if se.Category == "" {
			se.Category = p.category
		}
		return se
	}
	return errors.NewCompileError(errors.ErrCodeCompileFailed, fmt.Sprintf("stage %s failed", stage), err).
		WithCategory(p.category)
}

func (p *Pipeline) target(rel string) (string, error) {
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", errors.NewIOError(errors.ErrCodeWriteFailed, "output path escapes the output directory: "+rel, nil).
			WithCategory(p.category)
	}
	return path.Join(p.outputDir, rel), nil
}

// writeAtomic writes data next to name and renames it into place.
func writeAtomic(fsys afero.Fs, name string, data []byte) error {
	dir := path.Dir(name)
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := afero.TempFile(fsys, dir, ".siteforge-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Chmod(tmpName, 0o644); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Rename(tmpName, name); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	return nil
}
