// Package uart implements transport.Port over a serial port.
//
// Example:
//
//	port, err := uart.Open("/dev/ttyACM0", uart.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
package uart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/moffa90/go-otaflash/transport"
)

// Config holds the serial port settings.
type Config struct {
	// BaudRate is the line speed, 8N1 framing is always used
	BaudRate int

	// ReadTimeout bounds each blocking read in the reader goroutine so that
	// Close is noticed promptly; it is not a response timeout
	ReadTimeout time.Duration

	// MaxWriteSize caps a single write; 0 sends every packet in one write
	MaxWriteSize int

	// InboxDepth is the number of reads buffered before the reader blocks
	InboxDepth int
}

// DefaultConfig returns 115200 8N1 with unlimited write size.
func DefaultConfig() Config {
	return Config{
		BaudRate:    115200,
		ReadTimeout: 100 * time.Millisecond,
		InboxDepth:  transport.DefaultInboxDepth,
	}
}

// Port is a transport.Port backed by a serial port.
type Port struct {
	name  string
	port  serial.Port
	cfg   Config
	inbox *transport.Inbox

	mu      sync.Mutex
	closed  bool
	readErr error
	wg      sync.WaitGroup
}

var _ transport.Port = (*Port)(nil)

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Open opens the named serial port and starts the reader goroutine.
func Open(name string, cfg Config) (*Port, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultConfig().BaudRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}

	sp, err := serial.Open(name, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	if err := sp.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}

	return newPort(name, sp, cfg), nil
}

func newPort(name string, sp serial.Port, cfg Config) *Port {
	p := &Port{
		name:  name,
		port:  sp,
		cfg:   cfg,
		inbox: transport.NewInbox(cfg.InboxDepth),
	}

	p.wg.Add(1)
	go p.readLoop()

	return p
}

// Name returns the port path.
func (p *Port) Name() string { return p.name }

// Write sends b to the target.
func (p *Port) Write(b []byte) (int, error) {
	if p.isClosed() {
		return 0, transport.ErrClosed
	}
	n, err := p.port.Write(b)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", p.name, err)
	}
	return n, nil
}

// Receive returns the next chunk of bytes read from the port.
func (p *Port) Receive(ctx context.Context) ([]byte, error) {
	buf, err := p.inbox.Receive(ctx)
	if err == transport.ErrClosed {
		if rerr := p.err(); rerr != nil {
			return nil, rerr
		}
	}
	return buf, err
}

// ResetInput drops queued bytes and flushes the OS input buffer.
func (p *Port) ResetInput() error {
	p.inbox.Reset()
	if p.isClosed() {
		return transport.ErrClosed
	}
	if err := p.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("reset input %s: %w", p.name, err)
	}
	return nil
}

// MaxWriteSize returns the configured cap, 0 when unlimited.
func (p *Port) MaxWriteSize() int { return p.cfg.MaxWriteSize }

// Close stops the reader and closes the port.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.port.Close()
	p.inbox.Close()
	p.wg.Wait()
	return err
}

func (p *Port) readLoop() {
	defer p.wg.Done()

	buf := make([]byte, 256)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			if !p.isClosed() {
				p.mu.Lock()
				p.readErr = fmt.Errorf("read %s: %w", p.name, err)
				p.mu.Unlock()
			}
			p.inbox.Close()
			return
		}
		// n == 0 is a read timeout
		if n > 0 && !p.inbox.Push(buf[:n]) {
			return
		}
	}
}

func (p *Port) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Port) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readErr
}
