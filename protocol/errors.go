package protocol

import (
	"errors"
	"fmt"
)

// NackError represents a negative acknowledgement returned by the target.
// Contains the error code from the response frame.
type NackError struct {
	// Operation is the step that was rejected
	Operation string

	// ErrorCode is the error code from the target
	ErrorCode byte

	// LastChunk is the target's chunk counter at the time of the NACK
	LastChunk uint32
}

func (e *NackError) Error() string {
	return fmt.Sprintf("%s rejected: %s (0x%02X, last chunk %d)",
		e.Operation, ErrorCodeName(e.ErrorCode), e.ErrorCode, e.LastChunk)
}

// IsNackError returns true if err is or wraps a NackError.
func IsNackError(err error) bool {
	var nack *NackError
	return errors.As(err, &nack)
}

// ErrorCodeName returns a human-readable name for a target error code.
func ErrorCodeName(code byte) string {
	switch code {
	case ErrNone:
		return "no error"
	case ErrCRC:
		return "CRC mismatch"
	case ErrSize:
		return "invalid size"
	case ErrFlash:
		return "flash operation failed"
	case ErrSequence:
		return "sequence error"
	case ErrTimeout:
		return "target timeout"
	default:
		return fmt.Sprintf("unknown error code 0x%02X", code)
	}
}
