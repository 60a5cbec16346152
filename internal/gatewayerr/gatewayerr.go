// Package gatewayerr defines the tagged error taxonomy shared across the
// router, the catalogue, the backend supervisors and the HTTP front end.
// Every layer that can fail returns one of the tagged errors below, and
// callers use errors.As/errors.Is instead of matching on message text.
package gatewayerr

import "fmt"

// Kind is a taxonomy tag for a class of user-visible failure.
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindModelNotFound        Kind = "model_not_found"
	KindModelNotLoaded       Kind = "model_not_loaded"
	KindModelInvalidated     Kind = "model_invalidated"
	KindUnsupportedOperation Kind = "unsupported_operation"
	KindBackendInstallFailed Kind = "backend_install_failed"
	KindBackendStartupFailed Kind = "backend_startup_failed"
	KindDownloadCancelled    Kind = "download_cancelled"
	KindDownloadFailed       Kind = "download_failed"
	KindAuthFailed           Kind = "auth_failed"
)

// Error is a user-visible gateway failure. It always carries a short
// human-readable message and a taxonomy Kind, and optionally the offending
// model name and a snippet of detected system configuration.
type Error struct {
	Kind       Kind
	Message    string
	ModelName  string
	SystemInfo string
	Cause      error
}

func (e *Error) Error() string {
	if e.ModelName != "" {
		return fmt.Sprintf("%s: %s (model=%s)", e.Kind, e.Message, e.ModelName)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a tagged error with no model context.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a tagged error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a tagged error that preserves an underlying cause for
// errors.Is/errors.As unwrapping.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithModel attaches the offending model name, returning the receiver for
// chaining at the call site.
func (e *Error) WithModel(name string) *Error {
	e.ModelName = name
	return e
}

// WithSystemInfo attaches a detected system configuration snippet (processor
// string, OS version) as required for install/startup failures.
func (e *Error) WithSystemInfo(info string) *Error {
	e.SystemInfo = info
	return e
}

// Is reports whether target is a gatewayerr.Error with the same Kind,
// enabling errors.Is(err, gatewayerr.New(KindModelNotFound, "")) style checks
// that ignore the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// Of reports whether err is (or wraps) a gatewayerr.Error of the given Kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

// as walks err's single-error Unwrap chain looking for a *Error, the subset
// of errors.As that Of needs; errors joined by errors.Join are not searched.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
