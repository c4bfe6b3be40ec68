package transcode

import (
	"errors"
	"fmt"
)

// Code is a platform error code reported by a failed transcode.
type Code uint32

// Error codes
const (
	// CodeTransformTypeNotSet means the encoder rejected the requested
	// combination of size, frame rate and bitrate.
	CodeTransformTypeNotSet Code = 0xC00D6D60
	// CodeEncoderUnavailable means the encoder could not be started.
	CodeEncoderUnavailable Code = 0x80070002
	// CodeInvalidProfile means the profile failed validation before encoding.
	CodeInvalidProfile Code = 0x80070057
	// CodeEncodeFailed covers any other encoder failure.
	CodeEncodeFailed Code = 0x80004005
)

// Error is a transcode failure carrying a platform error code.
type Error struct {
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transcode %s: 0x%08X: %s: %v", e.Op, uint32(e.Code), e.Message, e.Cause)
	}
	return fmt.Sprintf("transcode %s: 0x%08X: %s", e.Op, uint32(e.Code), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new transcode error
func NewError(code Code, op, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var te *Error
	if errors.As(err, &te) {
		return te.Code, true
	}
	return 0, false
}
