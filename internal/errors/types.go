// Package errors defines the typed errors raised by the koisite pipeline.
//
// Every failure the pipeline surfaces is an *Error carrying a Type and a
// Code. Two errors compare equal under errors.Is when their Type and Code
// match, so callers can test against the exported sentinels:
//
//	if errors.Is(err, kerrors.ErrMissingFragment) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeAssembly ErrorType = "assembly"
	ErrorTypeSnippets ErrorType = "snippets"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeProcess  ErrorType = "process"
	ErrorTypeBuild    ErrorType = "build"
	ErrorTypeConfig   ErrorType = "config"
)

// Error codes.
const (
	ErrCodeMissingFragment       = "MISSING_FRAGMENT"
	ErrCodeMalformedMarker       = "MALFORMED_MARKER"
	ErrCodeIOFailure             = "IO_FAILURE"
	ErrCodeUnknownHighlightClass = "UNKNOWN_HIGHLIGHT_CLASS"
	ErrCodeCommandFailed         = "COMMAND_FAILED"
	ErrCodeBuildFailed           = "BUILD_FAILED"
	ErrCodeInvalidConfig         = "INVALID_CONFIG"
)

// Sentinels for errors.Is. They carry no message and are never returned
// directly.
var (
	ErrMissingFragment       = &Error{Type: ErrorTypeAssembly, Code: ErrCodeMissingFragment}
	ErrMalformedMarker       = &Error{Type: ErrorTypeAssembly, Code: ErrCodeMalformedMarker}
	ErrIOFailure             = &Error{Type: ErrorTypeIO, Code: ErrCodeIOFailure}
	ErrUnknownHighlightClass = &Error{Type: ErrorTypeSnippets, Code: ErrCodeUnknownHighlightClass}
	ErrCommandFailed         = &Error{Type: ErrorTypeProcess, Code: ErrCodeCommandFailed}
	ErrInvalidConfig         = &Error{Type: ErrorTypeConfig, Code: ErrCodeInvalidConfig}
)

// Error is a structured error with context.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Path    string
	Offset  int
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		location := e.Path
		if e.Offset > 0 {
			location += fmt.Sprintf("@%d", e.Offset)
		}
		parts = append(parts, location)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by Type and Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the file the error refers to.
func (e *Error) WithPath(path string) *Error {
	e.Path = path

	return e
}

// WithOffset records the byte offset within Path.
func (e *Error) WithOffset(offset int) *Error {
	e.Offset = offset

	return e
}

// Error creation functions

// NewMissingFragment reports a marker name with no fragment behind it.
func NewMissingFragment(name string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeAssembly,
		Code:    ErrCodeMissingFragment,
		Message: fmt.Sprintf("no fragment for snippet %q", name),
		Cause:   cause,
	}
}

// NewMalformedMarker reports a marker that cannot be parsed.
func NewMalformedMarker(offset int, message string) *Error {
	return &Error{
		Type:    ErrorTypeAssembly,
		Code:    ErrCodeMalformedMarker,
		Message: message,
		Offset:  offset,
	}
}

// NewIOFailure wraps an I/O error for path.
func NewIOFailure(path, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeIO,
		Code:    ErrCodeIOFailure,
		Message: message,
		Cause:   cause,
		Path:    path,
	}
}

// NewUnknownHighlightClass reports a highlight digit with no class mapping.
func NewUnknownHighlightClass(digit byte, offset int) *Error {
	return &Error{
		Type:    ErrorTypeSnippets,
		Code:    ErrCodeUnknownHighlightClass,
		Message: fmt.Sprintf("unknown highlight class %q", digit),
		Offset:  offset,
	}
}

// NewCommandFailed wraps the failure of an external process.
func NewCommandFailed(command string, stderr []byte, cause error) *Error {
	e := &Error{
		Type:    ErrorTypeProcess,
		Code:    ErrCodeCommandFailed,
		Message: "command failed: " + command,
		Cause:   cause,
	}
	if s := strings.TrimSpace(string(stderr)); s != "" {
		e.WithContext("stderr", s)
	}

	return e
}

// NewBuildError wraps the failure of a named build task.
func NewBuildError(task string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeBuild,
		Code:    ErrCodeBuildFailed,
		Message: "task " + task + " failed",
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeInvalidConfig,
		Message: message,
	}
}

// IsMissingFragment checks if err reports a missing fragment.
func IsMissingFragment(err error) bool {
	return errors.Is(err, ErrMissingFragment)
}

// IsMalformedMarker checks if err reports a malformed marker.
func IsMalformedMarker(err error) bool {
	return errors.Is(err, ErrMalformedMarker)
}

// IsIOFailure checks if err reports an I/O failure.
func IsIOFailure(err error) bool {
	return errors.Is(err, ErrIOFailure)
}

// Stderr returns the captured stderr of a failed command, if any.
func Stderr(err error) string {
	switch e := err.(type) {
	case nil:
		return ""
	case *Error:
		if s, ok := e.Context["stderr"].(string); ok {
			return s
		}
		return Stderr(e.Cause)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if s := Stderr(inner); s != "" {
				return s
			}
		}
		return ""
	default:
		if errs := multierr.Errors(err); len(errs) > 1 {
			for _, inner := range errs {
				if s := Stderr(inner); s != "" {
					return s
				}
			}
			return ""
		}
		return Stderr(errors.Unwrap(err))
	}
}
