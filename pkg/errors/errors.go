// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling for the MCP gateway.
// Every failure that crosses a package boundary is a *GateError so that
// callers, the HTTP surface and the audit log can classify it without
// parsing message text.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies gateway errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeMissingParameter indicates a required request field was absent.
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"

	// CodeInvalidArguments indicates a malformed JSON argument payload.
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"

	// CodeToolNotFound indicates the requested tool does not exist.
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"

	// CodeToolNotExecutable indicates the entry resolved but cannot be called.
	CodeToolNotExecutable ErrorCode = "TOOL_NOT_EXECUTABLE"

	// CodeToolExecutionFailed indicates the remote tool raised during execution.
	CodeToolExecutionFailed ErrorCode = "TOOL_EXECUTION_FAILED"

	// CodeResourceNotFound indicates no server holds the requested resource URI.
	CodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// CodePromptsUnsupported indicates the client has no prompts capability.
	CodePromptsUnsupported ErrorCode = "PROMPTS_UNSUPPORTED"

	// CodePromptNotFound indicates no server declares the requested prompt.
	CodePromptNotFound ErrorCode = "PROMPT_NOT_FOUND"

	// CodeUnknownAction indicates an unrecognized action tag.
	CodeUnknownAction ErrorCode = "UNKNOWN_ACTION"

	// CodeUpstream indicates a remote server or transport failure.
	CodeUpstream ErrorCode = "UPSTREAM_ERROR"
)

// GateError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type GateError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
	StatusCode  int
}

// Error implements the error interface.
func (e *GateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *GateError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *GateError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Recoverable bool                   `json:"recoverable"`
		Context     map[string]interface{} `json:"context,omitempty"`
	}{
		Code:        string(e.Code),
		Message:     e.Error(),
		Recoverable: e.Recoverable,
		Context:     e.Context,
	})
}

// New creates a new GateError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *GateError {
	return &GateError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		StatusCode: codeToStatusCode(code),
	}
}

// Newf creates a new GateError without a cause, formatting its message.
func Newf(code ErrorCode, format string, args ...interface{}) *GateError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *GateError) WithContext(key string, value interface{}) *GateError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *GateError) WithRecoverable(recoverable bool) *GateError {
	e.Recoverable = recoverable
	return e
}

// AsGateError attempts to convert an error to a GateError.
// Returns the error as GateError if it is one, or wraps it otherwise.
func AsGateError(err error) *GateError {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*GateError); ok {
		return ge
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf extracts the error code from an error, defaulting to CodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ge, ok := err.(*GateError); ok {
		return ge.Code
	}
	return CodeInternal
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *GateError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeToolNotFound, CodeResourceNotFound, CodePromptNotFound:
		return 404
	case CodeMissingParameter, CodeInvalidArguments, CodeUnknownAction:
		return 400
	case CodeToolNotExecutable, CodePromptsUnsupported:
		return 422
	case CodeUpstream, CodeToolExecutionFailed:
		return 502
	default:
		return 500
	}
}
