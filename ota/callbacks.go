package ota

import "time"

// Phase names reported in Progress.
const (
	PhaseStart    = "start"
	PhaseData     = "data"
	PhaseEnd      = "end"
	PhaseComplete = "complete"
	PhaseFailed   = "failed"
)

// Progress contains information about the transfer progress.
// Passed to ProgressCallback after every acknowledged step.
type Progress struct {
	// Phase is one of PhaseStart, PhaseData, PhaseEnd, PhaseComplete or PhaseFailed
	Phase string

	// CurrentChunk is the number of chunks acknowledged so far
	CurrentChunk int

	// TotalChunks is the number of DATA packets in the transfer
	TotalChunks int

	// Attempt is the START attempt in progress (1-based), 0 outside the START step
	Attempt int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// BytesSent is the number of firmware bytes acknowledged by the target
	BytesSent int

	// ElapsedTime is the time elapsed since the upload started
	ElapsedTime time.Duration
}

// ProgressCallback is called synchronously from Upload.
// Implementations should return quickly; the target is waiting.
//
// Example:
//
//	up := ota.New(port,
//	    ota.WithProgressCallback(func(p ota.Progress) {
//	        fmt.Printf("[%s] %.1f%% - chunk %d/%d\n",
//	            p.Phase, p.Percentage, p.CurrentChunk, p.TotalChunks)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the uploader.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	up := ota.New(port, ota.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
