// Package transform provides the transform stages pipelines are composed
// from: external compilers run as processes, in-process minification and
// comment stripping, source map handling, image optimization and copying.
package transform

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/pipeline"
)

// Command runs an external tool that reads a file on stdin and writes the
// result to stdout.
type Command struct {
	// Argv is the tool and its fixed leading arguments, e.g. ["npx", "postcss"].
	Argv []string
	// Dir is the working directory, usually the source root.
	Dir string
	Env []string
}

// Tool returns the display name of the command.
func (c Command) Tool() string {
	if len(c.Argv) == 0 {
		return ""
	}
	if c.Argv[0] == "npx" && len(c.Argv) > 1 {
		return c.Argv[1]
	}
	return c.Argv[0]
}

// Run executes the command with extra arguments appended. file names the
// input in diagnostics.
func (c Command) Run(ctx context.Context, file string, stdin []byte, extra ...string) ([]byte, error) {
	if len(c.Argv) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "empty tool command")
	}

	args := append(append([]string{}, c.Argv[1:]...), extra...)
	cmd := exec.CommandContext(ctx, c.Argv[0], args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderrors.Is(err, exec.ErrNotFound) {
			return nil, errors.ErrToolNotFound(c.Tool(), err).WithLocation(file, 0, 0)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s interrupted: %w", c.Tool(), ctx.Err())
		}
		output := stderr.String()
		if strings.TrimSpace(output) == "" {
			output = stdout.String()
		}
		return nil, errors.CompileErrorFromOutput(c.Tool(), file, output, err)
	}

	return stdout.Bytes(), nil
}

// Filter builds a stage that pipes every file through the command
// unchanged in name.
func Filter(name string, c Command, extra ...string) pipeline.Stage {
	return pipeline.Map(name, func(ctx context.Context, f pipeline.File) (pipeline.File, error) {
		out, err := c.Run(ctx, f.Source, f.Data, extra...)
		if err != nil {
			return f, err
		}
		f.Data = out
		return f, nil
	})
}
