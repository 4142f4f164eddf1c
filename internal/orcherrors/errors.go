// Package orcherrors implements the error taxonomy of §7: structured
// failure kinds that travel from a component up through the pipeline to a
// terminal Progress Event and meta.json, without losing the kind tag or the
// underlying cause.
package orcherrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories defined in spec §7.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindConfiguration     Kind = "ConfigurationError"
	KindSource            Kind = "SourceError"
	KindTemplate          Kind = "TemplateError"
	KindSubprocessLaunch  Kind = "SubprocessLaunchError"
	KindSubprocessExit    Kind = "SubprocessExitError"
	KindIaCPlanMismatch   Kind = "IaCPlanMismatch"
	KindRolloutTimeout    Kind = "RolloutTimeout"
	KindDecommission      Kind = "DecommissionError"
	KindCredential        Kind = "CredentialError"
)

// Error is the concrete type every orcherrors constructor returns. It
// implements error and Unwrap so callers can still errors.Is/As against the
// wrapped cause.
type Error struct {
	kind    Kind
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Kind reports the taxonomy category, used when serializing a terminal
// Progress Event or meta.json.last_error.
func (e *Error) Kind() Kind { return e.kind }

func new_(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func Validation(message string) *Error                 { return new_(KindValidation, message, nil) }
func Validationf(format string, a ...any) *Error        { return new_(KindValidation, fmt.Sprintf(format, a...), nil) }
func Configuration(message string) *Error               { return new_(KindConfiguration, message, nil) }
func Source(message string, cause error) *Error         { return new_(KindSource, message, cause) }
func Template(message string) *Error                    { return new_(KindTemplate, message, nil) }
func SubprocessLaunch(bin string, cause error) *Error {
	return new_(KindSubprocessLaunch, fmt.Sprintf("binary %q not launchable", bin), cause)
}
func SubprocessExit(bin string, code int, tail string) *Error {
	return new_(KindSubprocessExit, fmt.Sprintf("%q exited %d: %s", bin, code, tail), nil)
}
func IaCPlanMismatch(summary string) *Error { return new_(KindIaCPlanMismatch, summary, nil) }
func RolloutTimeout(status string) *Error   { return new_(KindRolloutTimeout, status, nil) }
func Decommission(message string, cause error) *Error {
	return new_(KindDecommission, message, cause)
}
func Credential(message string) *Error { return new_(KindCredential, message, nil) }

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to "" when err carries no known kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}
