package transform

import (
	"bytes"
	"context"
	"io"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/parse/v2"
	csslex "github.com/tdewolff/parse/v2/css"
	xhtml "golang.org/x/net/html"

	"github.com/conneroisu/siteforge/internal/errors"
	"github.com/conneroisu/siteforge/internal/pipeline"
)

var mediaTypes = map[string]string{
	".css":  "text/css",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".html": "text/html",
	".htm":  "text/html",
}

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("application/javascript", js.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	return m
}

// Minify minifies CSS, JavaScript and HTML files. Other files and
// source maps pass through untouched.
func Minify() pipeline.Stage {
	m := newMinifier()
	return pipeline.Map("minify", func(_ context.Context, f pipeline.File) (pipeline.File, error) {
		mt, ok := mediaTypes[f.Ext()]
		if !ok {
			return f, nil
		}
		out, err := m.Bytes(mt, f.Data)
		if err != nil {
			return f, errors.NewCompileError(errors.ErrCodeOptimizerFailed, "minifying "+f.Path, err).
				WithLocation(f.Source, 0, 0)
		}
		f.Data = out
		return f, nil
	})
}

// StripComments removes comments from HTML, CSS and JavaScript. HTML
// conditional comments and CSS "/*!" license comments are kept. JavaScript
// goes through the minifier, whose parser is the only safe way to tell a
// comment from a regular expression literal.
func StripComments() pipeline.Stage {
	m := newMinifier()
	return pipeline.Map("strip-comments", func(_ context.Context, f pipeline.File) (pipeline.File, error) {
		var (
			out []byte
			err error
		)
		switch mediaTypes[f.Ext()] {
		case "text/html":
			out, err = stripHTMLComments(f.Data)
		case "text/css":
			out, err = stripCSSComments(f.Data)
		case "application/javascript":
			out, err = m.Bytes("application/javascript", f.Data)
		default:
			return f, nil
		}
		if err != nil {
			return f, errors.NewCompileError(errors.ErrCodeOptimizerFailed, "stripping comments from "+f.Path, err).
				WithLocation(f.Source, 0, 0)
		}
		f.Data = out
		return f, nil
	})
}

func stripHTMLComments(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	z := xhtml.NewTokenizer(bytes.NewReader(data))
	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			if z.Err() == io.EOF {
				return buf.Bytes(), nil
			}
			return nil, z.Err()
		case xhtml.CommentToken:
			raw := z.Raw()
			if bytes.HasPrefix(raw, []byte("<!--[if")) || bytes.HasPrefix(raw, []byte("<![endif]")) {
				buf.Write(raw)
			}
		default:
			buf.Write(z.Raw())
		}
	}
}

func stripCSSComments(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	l := csslex.NewLexer(parse.NewInputBytes(data))
	for {
		tt, text := l.Next()
		switch tt {
		case csslex.ErrorToken:
			if l.Err() == io.EOF {
				return buf.Bytes(), nil
			}
			return nil, l.Err()
		case csslex.CommentToken:
			if bytes.HasPrefix(text, []byte("/*!")) {
				buf.Write(text)
			}
		default:
			buf.Write(text)
		}
	}
}
