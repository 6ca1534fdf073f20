package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withVars(t *testing.T, v, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestLdflagsWin(t *testing.T) {
	withVars(t, "v1.2.3", "0123456789abcdef", "2026-03-01T10:00:00Z")

	info := GetBuildInfo()
	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, 2026, info.BuildTime.Year())
	assert.True(t, info.Release)
	assert.Equal(t, "v1.2.3 (0123456)", GetShortVersion())
	assert.Contains(t, info.String(), "Commit: 0123456789abcdef")
}

func TestDevVersion(t *testing.T) {
	withVars(t, "dev", "unknown", "unknown")

	v := GetVersion()
	assert.True(t, v == "dev" || strings.HasPrefix(v, "dev-") || strings.HasPrefix(v, "v"), v)
	assert.True(t, GetBuildInfo().BuildTime.IsZero())
}

func TestParseISOTime(t *testing.T) {
	cases := map[string]bool{
		"2026-03-01T10:00:00Z":     true,
		"2026-03-01T10:00:00":      true,
		"2026-03-01 10:00:00":      true,
		"2026-03-01T10:00:00.000Z": true,
		"yesterday":                false,
		"":                         false,
		"unknown":                  false,
	}
	for in, ok := range cases {
		got := parseISOTime(in)
		assert.Equal(t, ok, !got.IsZero(), in)
		if ok {
			assert.Equal(t, time.March, got.Month(), in)
		}
	}
}
