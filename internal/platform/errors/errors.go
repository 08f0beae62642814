// Package errors provides the failure taxonomy shared by the store and its
// transports.
//
// Every failure is either an application failure (expected, caller-facing:
// validation and business-rule violations, unknown operation types) or a
// system failure (infrastructure: serialization, storage I/O, unexpected
// runtime faults). Transports map the kind and code to a response, and the
// logging package picks the severity from the kind.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure as application-level or system-level.
type Kind string

const (
	// KindApplication marks expected, recoverable failures.
	KindApplication Kind = "Application"
	// KindSystem marks infrastructure failures that abort the current operation.
	KindSystem Kind = "System"
)

// Error is the failure type with structured metadata.
type Error struct {
	Kind     Kind              // Application or System
	Code     Code              // Machine-readable error code
	Message  string            // Context describing what was being attempted
	Metadata map[string]string // Additional context for logs and responses
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
//
// The format is "<Kind> error: <context> (<cause>)" so that logs read the same
// regardless of which layer produced the failure.
func (e *Error) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = KindSystem
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s error: %s", kind, e.Message)
	}
	return fmt.Sprintf("%s error: %s (%v)", kind, e.Message, e.Cause)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a failure of the given kind without a cause.
func New(kind Kind, code Code, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Application creates an application failure wrapping an optional cause.
func Application(code Code, message string, cause error) *Error {
	return &Error{
		Kind:    KindApplication,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// System creates a system failure wrapping an optional cause.
func System(code Code, message string, cause error) *Error {
	return &Error{
		Kind:    KindSystem,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithMetadata returns a copy of e carrying the provided metadata.
func (e *Error) WithMetadata(metadata map[string]string) *Error {
	cloned := *e
	cloned.Metadata = make(map[string]string, len(e.Metadata)+len(metadata))
	for key, value := range e.Metadata {
		cloned.Metadata[key] = value
	}
	for key, value := range metadata {
		cloned.Metadata[key] = value
	}
	return &cloned
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if stderrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf reports the kind of the outermost failure in err's chain.
//
// Errors that never passed through this package are treated as system
// failures: nothing vouched for them being expected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if failure, ok := As(err); ok && failure.Kind != "" {
		return failure.Kind
	}
	return KindSystem
}

// IsApplication reports whether err is an application failure.
func IsApplication(err error) bool {
	return err != nil && KindOf(err) == KindApplication
}

// IsSystem reports whether err is a system failure.
func IsSystem(err error) bool {
	return err != nil && KindOf(err) == KindSystem
}

// CodeOf returns the code of the innermost failure that carries a specific
// code, falling back to the outermost one. Callers use it to surface the most
// precise reason, e.g. a validation code wrapped by "executing mutation".
func CodeOf(err error) Code {
	code := CodeUnknown
	for err != nil {
		if failure, ok := err.(*Error); ok && failure.Code != "" && failure.Code != CodeUnknown {
			code = failure.Code
		}
		err = stderrors.Unwrap(err)
	}
	return code
}
