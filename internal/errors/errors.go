package errors

import (
	"strings"
)

// Code classifies every error the sync layer can surface to its consumers.
type Code string

const (
	// No session token was available while opening the global channel.
	CodeAuthMissing Code = "auth_missing"
	// A transport closed unexpectedly and the single reconnect attempt failed.
	CodeConnectionLost Code = "connection_lost"
	// An inbound wire frame could not be normalized into an event.
	CodeParseError Code = "parse_error"
	// The REST acknowledgement for an optimistic send returned an error.
	CodeSendFailed Code = "send_failed"
	// Catch-all for failures outside the sync taxonomy (I/O, validation).
	CodeInternal Code = "internal"
)

// Standard for error values passed around inside Berserk and to consumers.
type SyncError struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error is required by the error interface.
func (e SyncError) Error() string {
	return e.Message
}

// ErrCode extracts the taxonomy code out of any error.
// Errors produced outside this package map to CodeInternal.
func ErrCode(err error) Code {
	if serr, ok := err.(SyncError); ok {
		return serr.Code
	}
	return CodeInternal
}

// Replicates the New method of default errors package.
func New(err string) error {
	return SyncError{
		Code:    CodeInternal,
		Message: err,
	}
}

// AuthMissing creates a new error representing an absent or expired session token.
func AuthMissing(msg string) SyncError {
	if msg == "" {
		msg = "No session token is available to open the global channel."
	}
	return SyncError{
		Code:    CodeAuthMissing,
		Message: msg,
	}
}

// ConnectionLost creates a new error representing an unrecovered transport closure.
func ConnectionLost(msg string) SyncError {
	if msg == "" {
		msg = "The connection was lost and could not be reestablished."
	}
	return SyncError{
		Code:    CodeConnectionLost,
		Message: msg,
	}
}

// ParseError creates a new error representing a malformed inbound frame.
func ParseError(msg string) SyncError {
	if msg == "" {
		msg = "An inbound frame could not be parsed."
	}
	return SyncError{
		Code:    CodeParseError,
		Message: msg,
	}
}

// SendFailed creates a new error representing a failed optimistic send.
func SendFailed(msg string) SyncError {
	if msg == "" {
		msg = "The message could not be delivered to the server."
	}
	return SyncError{
		Code:    CodeSendFailed,
		Message: msg,
	}
}

// InternalError creates a new error for failures outside the sync taxonomy.
func InternalError(msg string) SyncError {
	if msg == "" {
		msg = "We encountered an error while processing your request."
	}
	return SyncError{
		Code:    CodeInternal,
		Message: msg,
	}
}

// Standard for validation-error details attached to a SyncError.
type validationError struct {
	Param   string `json:"param"`   // Parameter or Field
	Message string `json:"message"` // Issue in Field
}

// Captures multiple validation issues and reports them in one go.
// Use-case of this would be a bunch of issues caught while validating config.
type ValidationErrorDetails struct {
	Errors []validationError `json:"errors"`
}

// Scans through set of validation errors found by govalidator,
// Generates a SyncError carrying every issue as details.
func GenerateValidationError(errs []error) SyncError {
	// govalidator returns array of errors in -> Param:Message format
	// We split the error from ":"
	details := []validationError{}
	for _, err := range errs {
		e := strings.SplitN(err.Error(), ":", 2)
		if len(e) != 2 {
			details = append(details, validationError{Param: "", Message: err.Error()})
			continue
		}
		details = append(
			details, validationError{
				Param:   e[0],
				Message: strings.TrimSpace(e[1]),
			},
		)
	}
	return SyncError{
		Code:    CodeInternal,
		Message: "Data validation error",
		Details: ValidationErrorDetails{Errors: details},
	}
}
