// Package fault defines the error envelope surfaced to callers: an error
// kind for dispatch, a stable machine code, and a human-readable message.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies surfaced errors.
type Kind string

const (
	NotFound            Kind = "not_found"
	Invalid             Kind = "invalid"
	Infeasible          Kind = "infeasible"
	ExternalTransient   Kind = "external_transient"
	ExternalUnavailable Kind = "external_unavailable"
	ExternalPermanent   Kind = "external_permanent"
	Conflict            Kind = "conflict"
	IO                  Kind = "io"
)

// Stable machine codes.
const (
	CodeCityNotFound        = "CITY_NOT_FOUND"
	CodePOINotFound         = "POI_NOT_FOUND"
	CodeTourNotFound        = "TOUR_NOT_FOUND"
	CodeVersionNotFound     = "VERSION_NOT_FOUND"
	CodeLanguageNotFound    = "LANGUAGE_NOT_FOUND"
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeInfeasible          = "INFEASIBLE"
	CodeTimeWindowsEmpty    = "TIME_WINDOWS_EMPTY"
	CodeInfeasibleWindows   = "INFEASIBLE_TIME_WINDOWS"
	CodeReplacementInvalid  = "REPLACEMENT_NOT_IN_BACKUPS"
	CodeExternalUnavailable = "EXTERNAL_UNAVAILABLE"
	CodeExternalPermanent   = "EXTERNAL_PERMANENT"
	CodeConflict            = "CONCURRENT_EDIT"
	CodeIO                  = "IO_FAILURE"
)

// Error is the surfaced error envelope.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without a cause.
func New(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a cause.
func Wrap(kind Kind, code string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind of err, or empty when err is not a fault.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// CodeOf extracts the machine code of err, or empty.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
