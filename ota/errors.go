package ota

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-otaflash/protocol"
)

// StepError reports which step of the transfer failed and why.
// Err is one of *TransportError, *TimeoutError, *ProtocolError,
// *protocol.NackError or a context error.
type StepError struct {
	Step Step

	// Chunk is the DATA chunk index, -1 for START and END
	Chunk int

	// Attempts is the number of times the step's packet was sent
	Attempts int

	Err error
}

func (e *StepError) Error() string {
	switch {
	case e.Step == StepData:
		return fmt.Sprintf("DATA chunk %d failed: %v", e.Chunk, e.Err)
	case e.Attempts > 1:
		return fmt.Sprintf("%s failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
	}
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// TransportError indicates a write or receive failure on the port.
// It is never retried.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates no response arrived within the step's deadline.
type TimeoutError struct {
	Step    Step
	Timeout time.Duration

	// Received is the number of bytes buffered when the deadline passed
	Received int
}

func (e *TimeoutError) Error() string {
	if e.Received > 0 {
		return fmt.Sprintf("no complete %s response within %v (%d bytes received)", e.Step, e.Timeout, e.Received)
	}
	return fmt.Sprintf("no %s response within %v", e.Step, e.Timeout)
}

// ProtocolError indicates a response that could not be interpreted.
// It is handled like a NACK.
type ProtocolError struct {
	Message string
	Raw     []byte
}

func (e *ProtocolError) Error() string {
	if len(e.Raw) > 0 {
		return fmt.Sprintf("malformed response: %s (% X)", e.Message, e.Raw)
	}
	return fmt.Sprintf("malformed response: %s", e.Message)
}

// retryable reports whether err may consume a START attempt instead of
// failing the upload outright.
func retryable(err error) bool {
	var (
		nack    *protocol.NackError
		timeout *TimeoutError
		proto   *ProtocolError
	)
	return errors.As(err, &nack) || errors.As(err, &timeout) || errors.As(err, &proto)
}

// IsTimeout returns true if err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// IsTransportError returns true if err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}
