package transform

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/pipeline"
)

// PugOptions configures the template compiler.
type PugOptions struct {
	// SourceRoot is the absolute source root; includes resolve against it.
	SourceRoot string
	BaseDir    string
	Pretty     bool
}

// Pug compiles every template to HTML named after the template's base
// name, so pug/pages/about.pug becomes about.html at the output root.
func Pug(c Command, opts PugOptions) pipeline.Stage {
	return pipeline.Map("pug", func(ctx context.Context, f pipeline.File) (pipeline.File, error) {
		args := []string{"--path", filepath.Join(opts.SourceRoot, filepath.FromSlash(f.Source))}
		if opts.BaseDir != "" {
			args = append(args, "--basedir", opts.BaseDir)
		}
		if opts.Pretty {
			args = append(args, "--pretty")
		}

		out, err := c.Run(ctx, f.Source, f.Data, args...)
		if err != nil {
			return f, err
		}
		f.Data = out
		f.Path = path.Base(f.Path)
		return f.WithExt(".html"), nil
	})
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`

// Markdown renders pages to standalone HTML documents. The first level-one
// heading becomes the title; pages/blog/post.md becomes blog/post.html.
func Markdown() pipeline.Stage {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)

	return pipeline.Map("markdown", func(_ context.Context, f pipeline.File) (pipeline.File, error) {
		root := md.Parser().Parse(text.NewReader(f.Data))

		var body bytes.Buffer
		if err := md.Renderer().Render(&body, f.Data, root); err != nil {
			return f, errors.NewCompileError(errors.ErrCodeCompileFailed, "rendering markdown", err).
				WithLocation(f.Source, 0, 0)
		}

		title := firstHeading(root, f.Data)
		if title == "" {
			title = strings.TrimSuffix(path.Base(f.Path), path.Ext(f.Path))
		}

		f.Data = []byte(fmt.Sprintf(pageTemplate, html.EscapeString(title), body.String()))
		f.Path = strings.TrimPrefix(f.Path, "pages/")
		return f.WithExt(".html"), nil
	})
}

func firstHeading(root gmast.Node, source []byte) string {
	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		h, ok := n.(*gmast.Heading)
		if !ok || h.Level != 1 {
			return gmast.WalkContinue, nil
		}
		var buf bytes.Buffer
		_ = gmast.Walk(h, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
			if t, ok := c.(*gmast.Text); ok && entering {
				buf.Write(t.Segment.Value(source))
			}
			return gmast.WalkContinue, nil
		})
		title = buf.String()
		return gmast.WalkStop, nil
	})
	return title
}
