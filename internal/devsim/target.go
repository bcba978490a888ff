// Package devsim simulates an OTA bootloader behind a transport.Port.
//
// The Target reassembles frames from arbitrarily fragmented writes, applies
// the same checks as the device firmware (state, sequence, size, CRC, bank)
// and queues 10-byte responses for Receive. Tests script misbehavior with a
// Hook; the CLI uses it for dry runs with -transport sim.
package devsim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moffa90/go-otaflash/protocol"
	"github.com/moffa90/go-otaflash/transport"
)

// BankSize is the capacity of each simulated bank.
const BankSize = 256 * 1024

// Phase is the simulated bootloader state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReceiving
	PhaseVerifying
	PhaseComplete
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReceiving:
		return "receiving"
	case PhaseVerifying:
		return "verifying"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Frame is one complete host-to-target frame seen by the Target.
type Frame struct {
	// Seq is the zero-based position of the frame in the session
	Seq int

	// Type is the packet type byte
	Type byte

	// Chunk is the chunk number of a DATA frame, -1 otherwise
	Chunk int

	Raw []byte
}

// Reply selects how the Target answers a frame.
type Reply int

const (
	// ReplyDefault runs the bootloader logic and answers accordingly
	ReplyDefault Reply = iota

	// ReplyAck answers ACK without touching state
	ReplyAck

	// ReplyNack answers NACK with Action.ErrorCode without touching state
	ReplyNack

	// ReplySilent drops the frame
	ReplySilent

	// ReplyRaw sends Action.Raw verbatim
	ReplyRaw
)

// Action is a Hook's decision for one frame.
type Action struct {
	Reply     Reply
	ErrorCode byte
	Raw       []byte

	// Delay postpones the response
	Delay time.Duration
}

// Hook inspects every complete frame before the bootloader logic runs.
type Hook func(Frame) Action

// Option configures a Target.
type Option func(*Target)

// WithMaxWrite rejects writes longer than n bytes, like a BLE characteristic.
func WithMaxWrite(n int) Option {
	return func(t *Target) { t.maxWrite = n }
}

// WithSplit delivers each response in pieces of at most n bytes.
func WithSplit(n int) Option {
	return func(t *Target) { t.split = n }
}

// WithNoise prefixes every response with b.
func WithNoise(b []byte) Option {
	return func(t *Target) { t.noise = append([]byte(nil), b...) }
}

// WithChecksum sets the CRC algorithm the Target verifies with.
func WithChecksum(c protocol.ChecksumType) Option {
	return func(t *Target) { t.checksum = c }
}

// WithActiveBank sets the running bank. START must name the other one.
func WithActiveBank(b protocol.Bank) Option {
	return func(t *Target) { t.activeBank = b }
}

// WithHook installs a frame hook.
func WithHook(h Hook) Option {
	return func(t *Target) { t.hook = h }
}

// WithWriteError makes every write after the first n fail with err.
func WithWriteError(n int, err error) Option {
	return func(t *Target) {
		t.failAfter = n
		t.writeErr = err
	}
}

// Target is a simulated bootloader. It implements transport.Port.
type Target struct {
	inbox *transport.Inbox

	maxWrite   int
	split      int
	noise      []byte
	checksum   protocol.ChecksumType
	activeBank protocol.Bank
	hook       Hook
	failAfter  int
	writeErr   error

	mu       sync.Mutex
	pending  []byte
	frames   []Frame
	writes   []int
	resets   int
	closed   bool
	timers   []*time.Timer
	phase    Phase
	start    protocol.StartPacket
	flash    []byte
	received uint32
	written  uint32
	errCode  byte
}

var _ transport.Port = (*Target)(nil)

// New creates an idle Target running bank A.
func New(opts ...Option) *Target {
	t := &Target{
		inbox:      transport.NewInbox(transport.DefaultInboxDepth),
		checksum:   protocol.ChecksumIEEE,
		activeBank: protocol.BankA,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Write feeds bytes to the bootloader. Complete frames are processed
// immediately and their responses queued before Write returns.
func (t *Target) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, transport.ErrClosed
	}
	if t.writeErr != nil && len(t.writes) >= t.failAfter {
		return 0, t.writeErr
	}
	if t.maxWrite > 0 && len(p) > t.maxWrite {
		return 0, fmt.Errorf("write of %d bytes exceeds mtu %d", len(p), t.maxWrite)
	}

	t.writes = append(t.writes, len(p))
	t.pending = append(t.pending, p...)
	t.drain()

	return len(p), nil
}

// Receive returns the next queued response bytes.
func (t *Target) Receive(ctx context.Context) ([]byte, error) {
	return t.inbox.Receive(ctx)
}

// ResetInput drops queued responses.
func (t *Target) ResetInput() error {
	t.mu.Lock()
	t.resets++
	t.mu.Unlock()

	t.inbox.Reset()
	return nil
}

// MaxWriteSize returns the configured write limit.
func (t *Target) MaxWriteSize() int { return t.maxWrite }

// Close stops pending delayed responses.
func (t *Target) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	for _, timer := range t.timers {
		timer.Stop()
	}
	t.inbox.Close()
	return nil
}

// Frames returns the frames received so far.
func (t *Target) Frames() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Frame(nil), t.frames...)
}

// FrameTypes returns the type byte of every frame received so far.
func (t *Target) FrameTypes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	types := make([]byte, len(t.frames))
	for i, f := range t.frames {
		types[i] = f.Type
	}
	return types
}

// Writes returns the length of every write so far.
func (t *Target) Writes() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.writes...)
}

// Resets returns how many times ResetInput was called.
func (t *Target) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

// Phase returns the bootloader state.
func (t *Target) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Image returns the bytes written to the target bank, trimmed to the
// announced firmware size.
func (t *Target) Image() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.flash == nil {
		return nil
	}
	n := int(t.start.Size)
	if n > len(t.flash) {
		n = len(t.flash)
	}
	return append([]byte(nil), t.flash[:n]...)
}

// ActiveBank returns the running bank. It switches after a verified END.
func (t *Target) ActiveBank() protocol.Bank {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeBank
}

// drain extracts complete frames from pending. Bytes that cannot start a
// frame are discarded one at a time.
func (t *Target) drain() {
	for len(t.pending) >= protocol.HeaderSize {
		magic := binary.LittleEndian.Uint32(t.pending[0:4])
		size := protocol.FrameSize(t.pending[4])
		if (magic != protocol.MagicStart && magic != protocol.MagicData) || size == 0 {
			t.pending = t.pending[1:]
			continue
		}
		if len(t.pending) < size {
			return
		}

		raw := append([]byte(nil), t.pending[:size]...)
		t.pending = t.pending[size:]
		t.handle(raw)
	}
}

func (t *Target) handle(raw []byte) {
	f := Frame{Seq: len(t.frames), Type: raw[4], Chunk: -1, Raw: raw}
	if f.Type == protocol.TypeData {
		f.Chunk = int(binary.LittleEndian.Uint32(raw[5:9]))
	}
	t.frames = append(t.frames, f)

	action := Action{}
	if t.hook != nil {
		action = t.hook(f)
	}

	var resp []byte
	switch action.Reply {
	case ReplyAck:
		resp = protocol.EncodeResponse(protocol.KindAck, protocol.ErrNone, t.received)
	case ReplyNack:
		resp = protocol.EncodeResponse(protocol.KindNack, action.ErrorCode, t.received)
	case ReplySilent:
		return
	case ReplyRaw:
		resp = action.Raw
	default:
		resp = t.process(raw)
	}

	if resp != nil {
		t.respond(resp, action.Delay)
	}
}

// process applies the bootloader rules and returns the response, or nil for
// frames the bootloader does not answer.
func (t *Target) process(raw []byte) []byte {
	switch raw[4] {
	case protocol.TypeStart:
		return t.processStart(raw)
	case protocol.TypeData:
		return t.processData(raw)
	case protocol.TypeEnd:
		return t.processEnd(raw)
	case protocol.TypeAbort:
		t.reset()
		return nil
	default:
		return t.nack(protocol.ErrSequence, true)
	}
}

func (t *Target) processStart(raw []byte) []byte {
	if t.phase != PhaseIdle {
		return t.nack(protocol.ErrSequence, true)
	}

	p, err := protocol.DecodeStart(raw)
	if err != nil {
		return t.nack(protocol.ErrSequence, true)
	}
	if p.Size == 0 || p.Size > BankSize {
		return t.nack(protocol.ErrSize, true)
	}
	if !p.Bank.Valid() || p.Bank == t.activeBank {
		return t.nack(protocol.ErrSequence, true)
	}

	t.start = *p
	t.flash = make([]byte, BankSize)
	for i := range t.flash {
		t.flash[i] = protocol.PadByte
	}
	t.received = 0
	t.written = 0
	t.errCode = protocol.ErrNone
	t.phase = PhaseReceiving

	return t.ack()
}

func (t *Target) processData(raw []byte) []byte {
	if t.phase != PhaseReceiving {
		return t.nack(protocol.ErrSequence, true)
	}

	size := binary.LittleEndian.Uint16(raw[9:11])
	if size == 0 || int(size) > protocol.ChunkSize {
		return t.nack(protocol.ErrSize, true)
	}

	p, err := protocol.DecodeData(raw)
	if err != nil {
		return t.nack(protocol.ErrSequence, true)
	}

	// Out of order and CRC failures leave the transfer open.
	if p.ChunkNumber != t.received {
		return t.nack(protocol.ErrSequence, false)
	}
	if t.checksum.Sum(p.Data()) != p.ChunkCRC32 {
		return t.nack(protocol.ErrCRC, false)
	}

	off := int(p.ChunkNumber) * protocol.ChunkSize
	if off+int(p.ChunkSize) > len(t.flash) {
		return t.nack(protocol.ErrFlash, true)
	}
	copy(t.flash[off:], p.Data())

	t.received++
	t.written += uint32(p.ChunkSize)
	resp := t.ack()

	if t.received == t.start.TotalChunks {
		t.phase = PhaseVerifying
	}
	return resp
}

func (t *Target) processEnd(raw []byte) []byte {
	if t.phase != PhaseVerifying {
		return t.nack(protocol.ErrSequence, true)
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != protocol.MagicStart {
		return t.nack(protocol.ErrSequence, true)
	}
	if t.written != t.start.Size {
		return t.nack(protocol.ErrSize, true)
	}
	if t.checksum.Sum(t.flash[:t.start.Size]) != t.start.CRC32 {
		return t.nack(protocol.ErrCRC, true)
	}

	t.phase = PhaseComplete
	t.activeBank = t.start.Bank
	return t.ack()
}

func (t *Target) reset() {
	t.phase = PhaseIdle
	t.received = 0
	t.written = 0
	t.errCode = protocol.ErrNone
}

func (t *Target) ack() []byte {
	return protocol.EncodeResponse(protocol.KindAck, t.errCode, t.received)
}

func (t *Target) nack(code byte, fatal bool) []byte {
	t.errCode = code
	if fatal {
		t.phase = PhaseError
	}
	return protocol.EncodeResponse(protocol.KindNack, code, t.received)
}

// respond queues resp, prefixed with noise and split as configured.
// Called with t.mu held.
func (t *Target) respond(resp []byte, delay time.Duration) {
	out := append(append([]byte(nil), t.noise...), resp...)

	push := func() {
		step := t.split
		if step <= 0 {
			step = len(out)
		}
		for off := 0; off < len(out); off += step {
			end := off + step
			if end > len(out) {
				end = len(out)
			}
			if !t.inbox.Push(out[off:end]) {
				return
			}
		}
	}

	if delay > 0 {
		t.timers = append(t.timers, time.AfterFunc(delay, push))
		return
	}
	push()
}

// ErrInjected is a convenience error for WithWriteError.
var ErrInjected = errors.New("injected write failure")
