package pipeline

import (
	"context"
	"path"
	"strings"
)

// File is one file flowing through a pipeline. Inputs carry their path
// relative to the source root; outputs carry their path relative to the
// pipeline's output directory.
type File struct {
	Path string
	// Source is the source-relative path the file was derived from. Stages
	// that merge files keep the first input's source.
	Source string
	Data   []byte
}

// Ext returns the lower-cased extension of the file, including the dot.
func (f File) Ext() string {
	return strings.ToLower(path.Ext(f.Path))
}

// WithExt returns a copy of f whose path carries a new extension.
func (f File) WithExt(ext string) File {
	f.Path = strings.TrimSuffix(f.Path, path.Ext(f.Path)) + ext
	return f
}

// Stage is one transform step. Apply must be a pure function of its inputs
// and the options fixed when the stage was built, and must not touch the
// filesystem beyond reading what it was configured with.
type Stage interface {
	Name() string
	Apply(ctx context.Context, files []File) ([]File, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context, files []File) ([]File, error)

type funcStage struct {
	name string
	fn   StageFunc
}

// NewStage wraps fn as a named Stage.
func NewStage(name string, fn StageFunc) Stage {
	return &funcStage{name: name, fn: fn}
}

func (s *funcStage) Name() string { return s.name }

func (s *funcStage) Apply(ctx context.Context, files []File) ([]File, error) {
	return s.fn(ctx, files)
}

// Map builds a stage that transforms each file independently.
func Map(name string, fn func(ctx context.Context, f File) (File, error)) Stage {
	return NewStage(name, func(ctx context.Context, files []File) ([]File, error) {
		out := make([]File, 0, len(files))
		for _, f := range files {
			nf, err := fn(ctx, f)
			if err != nil {
				return nil, err
			}
			out = append(out, nf)
		}
		return out, nil
	})
}

// Selector decides whether a source-relative path is a pipeline input.
type Selector interface {
	Includes(rel string) bool
}

// Notifier receives the output-root-relative paths written by a
// successful run.
type Notifier interface {
	Notify(ctx context.Context, paths []string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, paths []string)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, paths []string) {
	f(ctx, paths)
}
