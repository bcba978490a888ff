package ota

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/moffa90/go-otaflash/protocol"
	"github.com/moffa90/go-otaflash/transport"
)

// responseMagic is MagicStart as it appears on the wire.
var responseMagic = func() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, protocol.MagicStart)
	return b
}()

// listener accumulates inbound bytes for the step in flight. It is reset
// before every send and signals readiness once ResponseSize bytes are held.
type listener struct {
	port   transport.Port
	resync bool
	buf    []byte

	// dropped counts bytes align discarded since the last reset
	dropped int
}

func newListener(port transport.Port, resync bool) *listener {
	return &listener{
		port:   port,
		resync: resync,
		buf:    make([]byte, 0, 2*protocol.ResponseSize),
	}
}

// reset drops everything received so far, including bytes still queued in
// the port.
func (l *listener) reset() error {
	l.buf = l.buf[:0]
	l.dropped = 0
	return l.port.ResetInput()
}

// buffered is the number of bytes held toward the next response.
func (l *listener) buffered() int {
	return len(l.buf)
}

// unmatched is the number of bytes received without a response magic in
// front of them. It is 0 once a magic is aligned at the start of buf.
func (l *listener) unmatched() int {
	if bytes.HasPrefix(l.buf, responseMagic) {
		return 0
	}
	return l.dropped + len(l.buf)
}

// await blocks until a full response is buffered or ctx is done, and returns
// the first ResponseSize bytes of it.
func (l *listener) await(ctx context.Context) ([]byte, error) {
	for {
		if l.ready() {
			frame := make([]byte, protocol.ResponseSize)
			copy(frame, l.buf)
			return frame, nil
		}

		data, err := l.port.Receive(ctx)
		if err != nil {
			return nil, err
		}
		l.buf = append(l.buf, data...)
	}
}

func (l *listener) ready() bool {
	if l.resync {
		l.align()
	}
	return len(l.buf) >= protocol.ResponseSize
}

// align drops bytes in front of the first response magic. Without a magic
// the last len(magic)-1 bytes are kept in case it is split across reads.
func (l *listener) align() {
	idx := bytes.Index(l.buf, responseMagic)
	switch {
	case idx == 0:
		return
	case idx > 0:
		l.dropped += idx
		l.buf = append(l.buf[:0], l.buf[idx:]...)
	default:
		keep := len(responseMagic) - 1
		if len(l.buf) > keep {
			l.dropped += len(l.buf) - keep
			l.buf = append(l.buf[:0], l.buf[len(l.buf)-keep:]...)
		}
	}
}
