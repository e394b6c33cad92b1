package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures of an index computation
type ErrorCode string

const (
	// CodeValidation: requested variable or dimension absent. Raised before any computation.
	CodeValidation ErrorCode = "VALIDATION"
	// CodeInputData: malformed or empty input (e.g. zero raster tiles).
	CodeInputData ErrorCode = "INPUT_DATA"
	// CodeComputation: a reduction produced an unexpected result.
	CodeComputation ErrorCode = "COMPUTATION"
	// CodeIO: store or sink failure.
	CodeIO ErrorCode = "IO"
)

// Error is the error type returned by stores, the engine and the orchestrators
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewValidationError reports a missing variable or dimension
func NewValidationError(format string, args ...interface{}) *Error {
	return NewError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewInputDataError reports malformed or empty input
func NewInputDataError(format string, args ...interface{}) *Error {
	return NewError(CodeInputData, fmt.Sprintf(format, args...))
}

// NewComputationError reports an unexpected reduction result
func NewComputationError(format string, args ...interface{}) *Error {
	return NewError(CodeComputation, fmt.Sprintf(format, args...))
}

// WrapIO wraps a store or sink failure
func WrapIO(err error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    CodeIO,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool {
	return CodeOf(err) == CodeValidation
}

// IsInputData reports whether err is an input data failure
func IsInputData(err error) bool {
	return CodeOf(err) == CodeInputData
}

// IsComputation reports whether err is a computation failure
func IsComputation(err error) bool {
	return CodeOf(err) == CodeComputation
}
