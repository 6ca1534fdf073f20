package assets

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/siteforge/internal/errors"
)

// Matcher decides which source paths belong to a category. Paths are
// relative to the source root and slash separated.
type Matcher struct {
	include []string
	exclude []string
	watch   []string
}

// NewMatcher validates the patterns and builds a Matcher. A leading "!" on
// an include pattern moves it to the exclude list.
func NewMatcher(category string, include, exclude, watch []string) (*Matcher, error) {
	m := &Matcher{}

	for _, p := range include {
		if strings.HasPrefix(p, "!") {
			m.exclude = append(m.exclude, strings.TrimPrefix(p, "!"))
			continue
		}
		m.include = append(m.include, p)
	}
	for _, p := range exclude {
		m.exclude = append(m.exclude, strings.TrimPrefix(p, "!"))
	}
	m.watch = append(m.watch, watch...)

	for _, list := range [][]string{m.include, m.exclude, m.watch} {
		for _, p := range list {
			if p == "" || !doublestar.ValidatePattern(p) {
				return nil, errors.ErrInvalidPattern(category, p)
			}
		}
	}
	if len(m.include) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidPattern, "no include patterns").WithCategory(category)
	}

	return m, nil
}

// Includes reports whether rel is a transform input of the category.
func (m *Matcher) Includes(rel string) bool {
	rel = normalize(rel)
	return matchAny(m.include, rel) && !matchAny(m.exclude, rel)
}

// Excluded reports whether rel is removed by an exclusion pattern.
func (m *Matcher) Excluded(rel string) bool {
	return matchAny(m.exclude, normalize(rel))
}

// Triggers reports whether a change to rel should rebuild the category:
// inputs do, and so do watch-only paths such as stylesheet partials.
func (m *Matcher) Triggers(rel string) bool {
	rel = normalize(rel)
	return m.Includes(rel) || matchAny(m.watch, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		// Patterns are validated up front, so the error is always nil.
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func normalize(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = path.Clean(rel)
	return strings.TrimPrefix(rel, "./")
}
