package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/pipeline"
)

// SassOptions configures the stylesheet compiler.
type SassOptions struct {
	Compressed bool
	// SourceMap embeds a source map in the compiled output.
	SourceMap bool
	LoadPaths []string
}

// Sass compiles .sass, .scss and .css entries to CSS with dart-sass reading
// stdin. Partials are resolved by the compiler through the load paths.
func Sass(c Command, opts SassOptions) pipeline.Stage {
	style := "expanded"
	if opts.Compressed {
		style = "compressed"
	}

	base := []string{"--stdin", "--style=" + style}
	if opts.SourceMap {
		base = append(base, "--embed-source-map")
	} else {
		base = append(base, "--no-source-map")
	}
	for _, dir := range opts.LoadPaths {
		base = append(base, "--load-path="+dir)
	}

	return pipeline.Map("sass", func(ctx context.Context, f pipeline.File) (pipeline.File, error) {
		args := base
		if f.Ext() == ".sass" {
			args = append(append([]string{}, base...), "--indented")
		}
		out, err := c.Run(ctx, f.Source, f.Data, args...)
		if err != nil {
			return f, err
		}
		f.Data = out
		return f.WithExt(".css"), nil
	})
}

// Prefix runs the CSS prefixer (postcss with autoprefixer by default).
// postcss updates inline source maps unless keepMap is false.
func Prefix(c Command, keepMap bool) pipeline.Stage {
	if keepMap {
		return Filter("prefix", c)
	}
	return Filter("prefix", c, "--no-map")
}

var sourceMapComment = regexp.MustCompile(`(?m)\n?/\*# sourceMappingURL=([^*\s]+)\s*\*/\s*$`)

// Concat joins every file into one named name, in input order. Inline
// source maps survive only when a single file is joined; maps of several
// files cannot be merged without remapping and are dropped.
func Concat(name string) pipeline.Stage {
	return pipeline.NewStage("concat", func(_ context.Context, files []pipeline.File) ([]pipeline.File, error) {
		if len(files) == 0 {
			return nil, nil
		}
		if len(files) == 1 {
			f := files[0]
			f.Path = name
			return []pipeline.File{f}, nil
		}

		var buf bytes.Buffer
		for i, f := range files {
			if i > 0 {
				buf.WriteByte('\n')
			}
			buf.Write(bytes.TrimRight(sourceMapComment.ReplaceAll(f.Data, nil), "\n"))
		}
		buf.WriteByte('\n')

		return []pipeline.File{{Path: name, Source: files[0].Source, Data: buf.Bytes()}}, nil
	})
}

// Rename gives the single remaining file a new path. It fails when more
// than one file reaches it.
func Rename(name string) pipeline.Stage {
	return pipeline.NewStage("rename", func(_ context.Context, files []pipeline.File) ([]pipeline.File, error) {
		if len(files) > 1 {
			return nil, errors.NewCompileError(errors.ErrCodeCompileFailed,
				fmt.Sprintf("rename to %s needs one file, got %d", name, len(files)), nil)
		}
		out := make([]pipeline.File, len(files))
		for i, f := range files {
			f.Path = name
			out[i] = f
		}
		return out, nil
	})
}

// ExternalizeSourceMap moves an inline source map into a sibling
// ".map" file and points the stylesheet at it.
func ExternalizeSourceMap() pipeline.Stage {
	return pipeline.NewStage("sourcemap", func(_ context.Context, files []pipeline.File) ([]pipeline.File, error) {
		out := make([]pipeline.File, 0, len(files)+1)
		for _, f := range files {
			m := sourceMapComment.FindSubmatchIndex(f.Data)
			if m == nil {
				out = append(out, f)
				continue
			}

			raw, ok, err := decodeDataURI(string(f.Data[m[2]:m[3]]))
			if !ok {
				out = append(out, f)
				continue
			}
			if err != nil {
				return nil, errors.NewCompileError(errors.ErrCodeCompileFailed, "decoding inline source map", err).
					WithLocation(f.Source, 0, 0)
			}

			mapName := f.Path + ".map"
			var css bytes.Buffer
			css.Write(f.Data[:m[0]])
			fmt.Fprintf(&css, "\n/*# sourceMappingURL=%s */\n", path.Base(mapName))

			f.Data = css.Bytes()
			out = append(out, f, pipeline.File{Path: mapName, Source: f.Source, Data: raw})
		}
		return out, nil
	})
}

// decodeDataURI decodes a base64 or percent-encoded data URI. ok is false
// when uri is not a data URI.
func decodeDataURI(uri string) ([]byte, bool, error) {
	comma := strings.IndexByte(uri, ',')
	if !strings.HasPrefix(uri, "data:") || comma < 0 {
		return nil, false, nil
	}
	meta, payload := uri[:comma], uri[comma+1:]
	if strings.HasSuffix(meta, ";base64") {
		raw, err := base64.StdEncoding.DecodeString(payload)
		return raw, true, err
	}
	raw, err := url.PathUnescape(payload)
	return []byte(raw), true, err
}
