package ota

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is a transfer engine state.
type State int

const (
	// StateInit is the state before the first packet is sent
	StateInit State = iota

	// StateSendingStart is writing the START packet
	StateSendingStart

	// StateAwaitingStartAck is waiting for the response to START
	StateAwaitingStartAck

	// StateSendingData is writing a DATA packet
	StateSendingData

	// StateAwaitingDataAck is waiting for the response to a DATA packet
	StateAwaitingDataAck

	// StateSendingEnd is writing the END packet
	StateSendingEnd

	// StateAwaitingEndAck is waiting for the target to verify the image
	StateAwaitingEndAck

	// StateComplete means the target accepted the image
	StateComplete

	// StateFailed means the upload stopped on an error
	StateFailed
)

var stateNames = [...]string{
	StateInit:             "Init",
	StateSendingStart:     "SendingStart",
	StateAwaitingStartAck: "AwaitingStartAck",
	StateSendingData:      "SendingData",
	StateAwaitingDataAck:  "AwaitingDataAck",
	StateSendingEnd:       "SendingEnd",
	StateAwaitingEndAck:   "AwaitingEndAck",
	StateComplete:         "Complete",
	StateFailed:           "Failed",
}

// String returns the state name, or State(n) for unknown values.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s is Complete or Failed.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Step identifies the packet exchange a failure belongs to.
type Step int

const (
	// StepStart is the START exchange, including its retries
	StepStart Step = iota

	// StepData is the exchange for one DATA chunk
	StepData

	// StepEnd is the END exchange
	StepEnd
)

// String returns the packet name of the step.
func (s Step) String() string {
	switch s {
	case StepStart:
		return "START"
	case StepData:
		return "DATA"
	case StepEnd:
		return "END"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Result summarizes an upload. It is returned on failure too, describing how
// far the transfer got.
type Result struct {
	// SessionID identifies this upload in logs
	SessionID string

	// State is StateComplete or StateFailed
	State State

	// Step is the last step attempted
	Step Step

	// Chunk is the DATA chunk in flight when the upload ended, -1 outside DATA
	Chunk int

	// ChunksSent is the number of DATA packets acknowledged
	ChunksSent int

	// TotalChunks is the number of DATA packets in the image
	TotalChunks int

	// StartAttempts is the number of START packets sent
	StartAttempts int

	// LastChunk is the last_chunk field of the most recent response
	LastChunk uint32

	// Elapsed is the duration of the upload
	Elapsed time.Duration
}

// Success reports whether the upload reached StateComplete.
func (r *Result) Success() bool {
	return r != nil && r.State == StateComplete
}

// session is the per-upload state owned by one Upload call.
type session struct {
	id      string
	state   State
	result  Result
	started time.Time
}

func newSession(totalChunks int) *session {
	id := uuid.NewString()
	return &session{
		id:      id,
		state:   StateInit,
		started: time.Now(),
		result: Result{
			SessionID:   id,
			State:       StateInit,
			Chunk:       -1,
			TotalChunks: totalChunks,
		},
	}
}

func (s *session) elapsed() time.Duration {
	return time.Since(s.started)
}

func (s *session) finish(state State) *Result {
	s.state = state
	s.result.State = state
	s.result.Elapsed = s.elapsed()
	r := s.result
	return &r
}
