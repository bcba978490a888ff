package ota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/protocol"
	"github.com/moffa90/go-otaflash/transport"
)

// Uploader drives the START / DATA / END exchange for one image over one port.
//
// Upload is strictly stop-and-wait: a packet is never written before the
// previous packet's response or timeout has resolved. An Uploader must not
// run two uploads at the same time.
type Uploader struct {
	port   transport.Port
	config Config
}

// New creates a new Uploader with the given port and options.
//
// Example:
//
//	port, _ := uart.Open("/dev/ttyACM0", uart.DefaultConfig())
//	up := ota.New(port,
//	    ota.WithProgressCallback(progressFunc),
//	    ota.WithStartTimeout(5*time.Second),
//	)
func New(port transport.Port, opts ...Option) *Uploader {
	if port == nil {
		panic("port cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Uploader{
		port:   port,
		config: cfg,
	}
}

// Config returns the effective configuration.
func (u *Uploader) Config() Config {
	return u.config
}

// Upload performs the complete transfer sequence:
//  1. Send START, retrying on NACK, timeout or malformed response
//  2. Send every chunk as a DATA packet, failing on the first rejection
//  3. Send END and wait for the target to accept the image
//
// The returned Result is non-nil whenever img is valid, including on
// failure. The error is a *StepError naming the step and chunk that failed.
//
// Example:
//
//	img, _ := firmware.Load("app.bin", firmware.WithBank(protocol.BankA))
//	result, err := up.Upload(context.Background(), img)
func (u *Uploader) Upload(ctx context.Context, img *firmware.Image) (*Result, error) {
	if img == nil {
		return nil, fmt.Errorf("firmware image cannot be nil")
	}

	s := newSession(img.TotalChunks())
	l := newListener(u.port, u.config.Resync)

	u.logInfo("starting upload",
		"session", s.id,
		"size", img.Size(),
		"chunks", img.TotalChunks(),
		"bank", img.Bank().String(),
		"version", fmt.Sprintf("0x%08X", img.Version()),
		"crc32", fmt.Sprintf("0x%08X", img.CRC32()),
		"checksum", img.Checksum().String(),
	)

	if err := sleep(ctx, u.config.StartDelay); err != nil {
		return u.fail(ctx, s, &StepError{Step: StepStart, Chunk: -1, Err: err})
	}

	if err := u.start(ctx, s, l, img); err != nil {
		return u.fail(ctx, s, err)
	}

	if err := u.data(ctx, s, l, img); err != nil {
		return u.fail(ctx, s, err)
	}

	if err := u.end(ctx, s, l, img); err != nil {
		return u.fail(ctx, s, err)
	}

	result := s.finish(StateComplete)

	u.reportProgress(Progress{
		Phase:        PhaseComplete,
		CurrentChunk: result.ChunksSent,
		TotalChunks:  result.TotalChunks,
		Percentage:   100,
		BytesSent:    img.Size(),
		ElapsedTime:  result.Elapsed,
	})

	u.logInfo("upload complete",
		"session", s.id,
		"chunks", result.ChunksSent,
		"bytes", img.Size(),
		"elapsed", result.Elapsed.String(),
	)

	return result, nil
}

// start sends START until it is acknowledged or the attempts run out.
func (u *Uploader) start(ctx context.Context, s *session, l *listener, img *firmware.Image) error {
	packet := protocol.EncodeStart(img.StartPacket())
	s.result.Step = StepStart

	var lastErr error
	for attempt := 1; attempt <= u.config.StartAttempts; attempt++ {
		s.result.StartAttempts = attempt

		u.reportProgress(Progress{
			Phase:       PhaseStart,
			TotalChunks: img.TotalChunks(),
			Attempt:     attempt,
			ElapsedTime: s.elapsed(),
		})

		_, err := u.exchange(ctx, s, l, StepStart, packet, u.config.StartTimeout,
			StateSendingStart, StateAwaitingStartAck)
		if err == nil {
			u.logDebug("START acknowledged", "attempt", attempt)
			return nil
		}

		lastErr = err
		if !retryable(err) {
			break
		}

		u.logInfo("START attempt failed",
			"attempt", attempt,
			"max_attempts", u.config.StartAttempts,
			"error", err.Error(),
		)
	}

	return &StepError{
		Step:     StepStart,
		Chunk:    -1,
		Attempts: s.result.StartAttempts,
		Err:      lastErr,
	}
}

// data sends every chunk in order. Any failure is final.
func (u *Uploader) data(ctx context.Context, s *session, l *listener, img *firmware.Image) error {
	s.result.Step = StepData
	bytesSent := 0

	for i, chunk := range img.Chunks() {
		s.result.Chunk = i

		packet, crc, err := protocol.EncodeData(uint32(i), chunk, img.Checksum())
		if err != nil {
			return &StepError{Step: StepData, Chunk: i, Err: err}
		}

		u.logDebug("sending chunk",
			"chunk", i,
			"size", len(chunk),
			"crc32", fmt.Sprintf("0x%08X", crc),
		)

		if _, err := u.exchange(ctx, s, l, StepData, packet, u.config.ChunkTimeout,
			StateSendingData, StateAwaitingDataAck); err != nil {
			return &StepError{Step: StepData, Chunk: i, Attempts: 1, Err: err}
		}

		s.result.ChunksSent = i + 1
		bytesSent += len(chunk)

		// Report progress (2% to 98%)
		percentage := 2 + (float64(i+1)/float64(img.TotalChunks()))*96
		u.reportProgress(Progress{
			Phase:        PhaseData,
			CurrentChunk: i + 1,
			TotalChunks:  img.TotalChunks(),
			Percentage:   percentage,
			BytesSent:    bytesSent,
			ElapsedTime:  s.elapsed(),
		})
	}

	s.result.Chunk = -1
	return nil
}

// end sends END once.
func (u *Uploader) end(ctx context.Context, s *session, l *listener, img *firmware.Image) error {
	s.result.Step = StepEnd

	u.reportProgress(Progress{
		Phase:        PhaseEnd,
		CurrentChunk: s.result.ChunksSent,
		TotalChunks:  img.TotalChunks(),
		Percentage:   98,
		BytesSent:    img.Size(),
		ElapsedTime:  s.elapsed(),
	})

	if _, err := u.exchange(ctx, s, l, StepEnd, protocol.EncodeEnd(), u.config.EndTimeout,
		StateSendingEnd, StateAwaitingEndAck); err != nil {
		return &StepError{Step: StepEnd, Chunk: -1, Attempts: 1, Err: err}
	}

	u.logDebug("END acknowledged", "last_chunk", s.result.LastChunk)
	return nil
}

// exchange sends one packet and waits for its response. It returns the
// response only when it is a well-formed ACK.
func (u *Uploader) exchange(ctx context.Context, s *session, l *listener, step Step, packet []byte,
	timeout time.Duration, sending, awaiting State) (*protocol.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.transition(s, sending)

	if err := l.reset(); err != nil {
		return nil, &TransportError{Op: "reset input", Err: err}
	}

	if err := u.send(ctx, packet); err != nil {
		return nil, err
	}

	u.transition(s, awaiting)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := l.await(waitCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// A full response's worth of bytes arrived but none of it
			// started with the magic
			if n := l.unmatched(); n >= protocol.ResponseSize {
				return nil, &ProtocolError{
					Message: fmt.Sprintf("no response magic in %d bytes", n),
					Raw:     append([]byte(nil), l.buf...),
				}
			}
			return nil, &TimeoutError{Step: step, Timeout: timeout, Received: l.buffered()}
		}
		return nil, &TransportError{Op: "receive", Err: err}
	}

	resp, ok := protocol.DecodeResponse(raw)
	if !ok {
		return nil, &ProtocolError{Message: "short response", Raw: raw}
	}

	if resp.Magic != protocol.MagicStart {
		return nil, &ProtocolError{
			Message: fmt.Sprintf("magic 0x%08X, expected 0x%08X", resp.Magic, protocol.MagicStart),
			Raw:     raw,
		}
	}

	if !resp.KnownKind() {
		return nil, &ProtocolError{
			Message: fmt.Sprintf("unknown response type 0x%02X", byte(resp.Kind)),
			Raw:     raw,
		}
	}

	s.result.LastChunk = resp.LastChunk

	if resp.IsNack() {
		return resp, &protocol.NackError{
			Operation: step.String(),
			ErrorCode: resp.ErrorCode,
			LastChunk: resp.LastChunk,
		}
	}

	return resp, nil
}

// fail finalizes a failed upload, sending ABORT first when configured.
func (u *Uploader) fail(ctx context.Context, s *session, err error) (*Result, error) {
	failedIn := s.state
	result := s.finish(StateFailed)

	// A transport failure or cancellation leaves nothing to abort over
	if u.config.AbortOnFailure && retryable(err) {
		if aerr := u.send(context.WithoutCancel(ctx), protocol.EncodeAbort()); aerr != nil {
			u.logError("abort failed", "session", s.id, "error", aerr.Error())
		} else {
			u.logInfo("abort sent", "session", s.id)
		}
	}

	u.reportProgress(Progress{
		Phase:        PhaseFailed,
		CurrentChunk: result.ChunksSent,
		TotalChunks:  result.TotalChunks,
		ElapsedTime:  result.Elapsed,
	})

	u.logError("upload failed",
		"session", s.id,
		"state", failedIn.String(),
		"step", result.Step.String(),
		"chunk", result.Chunk,
		"last_chunk", result.LastChunk,
		"error", err.Error(),
	)

	return result, err
}

func (u *Uploader) transition(s *session, next State) {
	u.logDebug("state", "from", s.state.String(), "to", next.String())
	s.state = next
	s.result.State = next
}

// reportProgress calls the progress callback if configured.
func (u *Uploader) reportProgress(progress Progress) {
	if u.config.ProgressCallback != nil {
		u.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if logger is configured.
func (u *Uploader) logDebug(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is configured.
func (u *Uploader) logInfo(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is configured.
func (u *Uploader) logError(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Error(msg, keysAndValues...)
	}
}
