package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteErrorError(t *testing.T) {
	err := NewCompileError(ErrCodeCompileFailed, "sass failed", fmt.Errorf("exit status 65")).
		WithCategory("styles").
		WithLocation("css/base.sass", 3, 7)

	msg := err.Error()
	assert.Contains(t, msg, "[ERR_COMPILE_FAILED]")
	assert.Contains(t, msg, "category:styles")
	assert.Contains(t, msg, "css/base.sass:3:7")
	assert.Contains(t, msg, "sass failed: exit status 65")
}

func TestSiteErrorLocationWithoutColumn(t *testing.T) {
	err := NewIOError(ErrCodeWriteFailed, "write", nil).WithLocation("dist/a.html", 4, 0)
	assert.Contains(t, err.Error(), "dist/a.html:4 ")
	assert.NotContains(t, err.Error(), "dist/a.html:4:")
}

func TestPredicates(t *testing.T) {
	testCases := []struct {
		name        string
		err         error
		compile     bool
		watch       bool
		io          bool
		config      bool
		recoverable bool
	}{
		{"compile", NewCompileError(ErrCodeCompileFailed, "x", nil), true, false, false, false, true},
		{"watch", NewWatchError("x", nil), false, true, false, false, false},
		{"io", NewIOError(ErrCodeWriteFailed, "x", nil), false, false, true, false, true},
		{"config", NewConfigError(ErrCodeConfigInvalid, "x"), false, false, false, true, false},
		{"plain", errors.New("x"), false, false, false, false, false},
		{"wrapped compile", fmt.Errorf("run: %w", NewCompileError(ErrCodeCompileFailed, "x", nil)), true, false, false, false, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.compile, IsCompileError(tc.err))
			assert.Equal(t, tc.watch, IsWatchFatal(tc.err))
			assert.Equal(t, tc.io, IsIOError(tc.err))
			assert.Equal(t, tc.config, IsConfigError(tc.err))
			assert.Equal(t, tc.recoverable, IsRecoverable(tc.err))
		})
	}
}

func TestSiteErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ErrToolNotFound("sass", nil))
	assert.True(t, errors.Is(err, &SiteError{Type: ErrorTypeCompile, Code: ErrCodeToolNotFound}))
	assert.False(t, errors.Is(err, &SiteError{Type: ErrorTypeIO, Code: ErrCodeToolNotFound}))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewIOError(ErrCodeWriteFailed, "write failed", cause)
	require.ErrorIs(t, err, cause)
}

func TestErrInvalidPattern(t *testing.T) {
	err := ErrInvalidPattern("pug", "pug/[")
	assert.True(t, IsConfigError(err))
	assert.Equal(t, "pug", err.Category)
	assert.Contains(t, err.Error(), "pug/[")
}
