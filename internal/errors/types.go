// Package errors defines the error taxonomy of the asset pipeline.
//
// Every failure surfaced by a pipeline run, the file watcher or the
// configuration loader is a *SiteError carrying a Type that decides how far
// it may propagate: compile and I/O errors end only the run that produced
// them, watch errors end dev mode, config errors end startup.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeCompile ErrorType = "compile"
	ErrorTypeWatch   ErrorType = "watch"
	ErrorTypeIO      ErrorType = "io"
	ErrorTypeConfig  ErrorType = "config"
	ErrorTypeNetwork ErrorType = "network"
)

// Common error codes.
const (
	ErrCodeCompileFailed   = "ERR_COMPILE_FAILED"
	ErrCodeToolNotFound    = "ERR_TOOL_NOT_FOUND"
	ErrCodeWatchFailed     = "ERR_WATCH_FAILED"
	ErrCodeReadFailed      = "ERR_READ_FAILED"
	ErrCodeWriteFailed     = "ERR_WRITE_FAILED"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeInvalidPattern  = "ERR_INVALID_PATTERN"
	ErrCodeOptimizerFailed = "ERR_OPTIMIZER_FAILED"
	ErrCodePublishFailed   = "ERR_PUBLISH_FAILED"
)

// SiteError is a structured error type with context.
type SiteError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Category    string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *SiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Category != "" {
		parts = append(parts, "category:"+e.Category)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SiteError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *SiteError) Is(target error) bool {
	var t *SiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLocation adds file location information.
func (e *SiteError) WithLocation(filePath string, line, column int) *SiteError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithCategory adds asset category context.
func (e *SiteError) WithCategory(category string) *SiteError {
	e.Category = category

	return e
}

// NewCompileError creates an error for malformed input to a transform.
func NewCompileError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeCompile,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewWatchError creates an error for a failing OS notification mechanism.
func NewWatchError(message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeWatch,
		Code:        ErrCodeWatchFailed,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SiteError {
	return &SiteError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewNetworkError creates an error for a failed call to a remote service.
func NewNetworkError(code, message string, cause error) *SiteError {
	return &SiteError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// IsRecoverable reports whether err only ends the run that produced it.
func IsRecoverable(err error) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsCompileError checks if an error came from a transform rejecting its input.
func IsCompileError(err error) bool {
	return hasType(err, ErrorTypeCompile)
}

// IsWatchFatal checks if an error must terminate dev mode.
func IsWatchFatal(err error) bool {
	return hasType(err, ErrorTypeWatch)
}

// IsIOError checks if an error is a filesystem failure.
func IsIOError(err error) bool {
	return hasType(err, ErrorTypeIO)
}

// IsConfigError checks if an error is a configuration failure.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

func hasType(err error, t ErrorType) bool {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Type == t
	}

	return false
}

// ErrInvalidPattern creates a glob validation error.
func ErrInvalidPattern(category, pattern string) *SiteError {
	return NewConfigError(ErrCodeInvalidPattern, "invalid glob pattern: "+pattern).
		WithCategory(category)
}

// ErrToolNotFound creates an error for a missing external transform binary.
func ErrToolNotFound(tool string, cause error) *SiteError {
	return NewCompileError(ErrCodeToolNotFound, "tool not found: "+tool, cause)
}

// As is errors.As, re-exported so callers need only this package.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
