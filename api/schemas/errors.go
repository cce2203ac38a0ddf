package schemas

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a terminal failure of the capture pipeline.
// Using a custom type ensures that only predefined constants can be used
// where an ErrorCode is expected.
type ErrorCode string

const (
	ErrCodeDestinationExists  ErrorCode = "DESTINATION_EXISTS"
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeInvalidTenant      ErrorCode = "INVALID_TENANT"
	ErrCodeExportNotReady     ErrorCode = "EXPORT_NOT_READY"
	ErrCodeAutomation         ErrorCode = "AUTOMATION_FAILURE"
	ErrCodeFilesystem         ErrorCode = "FILESYSTEM_FAILURE"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
)

// Error is the typed failure propagated up to the command layer. None of the
// codes are retried.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// NewError builds a typed pipeline error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrDestinationExists  = &Error{Code: ErrCodeDestinationExists, Message: "file with same name already exists"}
	ErrInvalidCredentials = &Error{Code: ErrCodeInvalidCredentials, Message: "invalid username or password"}
	ErrInvalidTenant      = &Error{Code: ErrCodeInvalidTenant, Message: "invalid tenant"}
	ErrExportNotReady     = &Error{Code: ErrCodeExportNotReady, Message: "please save search and retry"}
	ErrAutomation         = &Error{Code: ErrCodeAutomation, Message: "browser automation failed"}
	ErrFilesystem         = &Error{Code: ErrCodeFilesystem, Message: "failed to write artifact"}
	ErrInvalidRequest     = &Error{Code: ErrCodeInvalidRequest, Message: "invalid report request"}
)

// CodeOf extracts the error code from err, defaulting to ErrCodeAutomation
// for untyped failures (navigation, timeouts, missing elements).
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeAutomation
}

// Automation wraps a low level browser failure.
func Automation(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(ErrCodeAutomation, op, err)
}
