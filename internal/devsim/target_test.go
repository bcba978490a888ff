package devsim

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moffa90/go-otaflash/protocol"
)

func recv(t *testing.T, target *Target) *protocol.Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var buf []byte
	for len(buf) < protocol.ResponseSize {
		data, err := target.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		buf = append(buf, data...)
	}

	resp, ok := protocol.DecodeResponse(buf)
	if !ok {
		t.Fatalf("DecodeResponse(% X) failed", buf)
	}
	return resp
}

func expectSilence(t *testing.T, target *Target) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if data, err := target.Receive(ctx); err == nil {
		t.Fatalf("unexpected response % X", data)
	}
}

func write(t *testing.T, target *Target, frame []byte, step int) {
	t.Helper()

	for off := 0; off < len(frame); off += step {
		end := off + step
		if end > len(frame) {
			end = len(frame)
		}
		if _, err := target.Write(frame[off:end]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
}

func startFrame(data []byte, bank protocol.Bank) []byte {
	return protocol.EncodeStart(protocol.StartPacket{
		Size:        uint32(len(data)),
		Version:     protocol.DefaultVersion,
		CRC32:       protocol.ChecksumIEEE.Sum(data),
		TotalChunks: uint32((len(data) + protocol.ChunkSize - 1) / protocol.ChunkSize),
		Bank:        bank,
	})
}

func dataFrame(t *testing.T, data []byte, i int) []byte {
	t.Helper()

	off := i * protocol.ChunkSize
	end := off + protocol.ChunkSize
	if end > len(data) {
		end = len(data)
	}
	frame, _, err := protocol.EncodeData(uint32(i), data[off:end], protocol.ChecksumIEEE)
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	return frame
}

func image(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*13 + 1)
	}
	return data
}

func TestTargetFullTransfer(t *testing.T) {
	data := image(2500)
	target := New()

	write(t, target, startFrame(data, protocol.BankB), 7)
	if resp := recv(t, target); !resp.IsAck() {
		t.Fatalf("START response = %v, want ACK", resp.Kind)
	}

	for i := 0; i < 3; i++ {
		write(t, target, dataFrame(t, data, i), 20)
		resp := recv(t, target)
		if !resp.IsAck() {
			t.Fatalf("DATA %d response = %v (code %d), want ACK", i, resp.Kind, resp.ErrorCode)
		}
		if resp.LastChunk != uint32(i+1) {
			t.Errorf("DATA %d last_chunk = %d, want %d", i, resp.LastChunk, i+1)
		}
	}

	if target.Phase() != PhaseVerifying {
		t.Fatalf("Phase() = %v, want verifying", target.Phase())
	}

	write(t, target, protocol.EncodeEnd(), 20)
	if resp := recv(t, target); !resp.IsAck() {
		t.Fatalf("END response = %v (code %d), want ACK", resp.Kind, resp.ErrorCode)
	}

	if target.Phase() != PhaseComplete {
		t.Errorf("Phase() = %v, want complete", target.Phase())
	}
	if !bytes.Equal(target.Image(), data) {
		t.Error("flashed image differs from the uploaded data")
	}
	if target.ActiveBank() != protocol.BankB {
		t.Errorf("ActiveBank() = %v, want B", target.ActiveBank())
	}
	if got := target.FrameTypes(); !bytes.Equal(got, []byte{1, 2, 2, 2, 3}) {
		t.Errorf("FrameTypes() = %v, want [1 2 2 2 3]", got)
	}
}

func TestTargetRejects(t *testing.T) {
	data := image(1500)

	tests := []struct {
		name     string
		opts     []Option
		frames   func(t *testing.T) [][]byte
		wantCode byte
		wantPh   Phase
	}{
		{
			name: "active bank",
			frames: func(t *testing.T) [][]byte {
				return [][]byte{startFrame(data, protocol.BankA)}
			},
			wantCode: protocol.ErrSequence,
			wantPh:   PhaseError,
		},
		{
			name: "oversized image",
			frames: func(t *testing.T) [][]byte {
				return [][]byte{protocol.EncodeStart(protocol.StartPacket{Size: BankSize + 1, TotalChunks: 257, Bank: protocol.BankB})}
			},
			wantCode: protocol.ErrSize,
			wantPh:   PhaseError,
		},
		{
			name: "data before start",
			frames: func(t *testing.T) [][]byte {
				return [][]byte{dataFrame(t, data, 0)}
			},
			wantCode: protocol.ErrSequence,
			wantPh:   PhaseError,
		},
		{
			name: "out of order chunk",
			frames: func(t *testing.T) [][]byte {
				return [][]byte{startFrame(data, protocol.BankB), dataFrame(t, data, 1)}
			},
			wantCode: protocol.ErrSequence,
			wantPh:   PhaseReceiving,
		},
		{
			name: "crc algorithm mismatch",
			opts: []Option{WithChecksum(protocol.ChecksumSTM32)},
			frames: func(t *testing.T) [][]byte {
				return [][]byte{startFrame(data, protocol.BankB), dataFrame(t, data, 0)}
			},
			wantCode: protocol.ErrCRC,
			wantPh:   PhaseReceiving,
		},
		{
			name: "end before all chunks",
			frames: func(t *testing.T) [][]byte {
				return [][]byte{startFrame(data, protocol.BankB), dataFrame(t, data, 0), protocol.EncodeEnd()}
			},
			wantCode: protocol.ErrSequence,
			wantPh:   PhaseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := New(tt.opts...)
			frames := tt.frames(t)

			var last *protocol.Response
			for _, f := range frames {
				write(t, target, f, len(f))
				last = recv(t, target)
			}

			if !last.IsNack() {
				t.Fatalf("last response = %v, want NACK", last.Kind)
			}
			if last.ErrorCode != tt.wantCode {
				t.Errorf("error code = %d, want %d", last.ErrorCode, tt.wantCode)
			}
			if target.Phase() != tt.wantPh {
				t.Errorf("Phase() = %v, want %v", target.Phase(), tt.wantPh)
			}
		})
	}
}

func TestTargetAbort(t *testing.T) {
	data := image(100)
	target := New()

	write(t, target, startFrame(data, protocol.BankA), 22)
	recv(t, target)
	if target.Phase() != PhaseError {
		t.Fatalf("Phase() = %v, want error", target.Phase())
	}

	write(t, target, protocol.EncodeAbort(), 5)
	expectSilence(t, target)
	if target.Phase() != PhaseIdle {
		t.Fatalf("Phase() after ABORT = %v, want idle", target.Phase())
	}

	write(t, target, startFrame(data, protocol.BankB), 22)
	if resp := recv(t, target); !resp.IsAck() {
		t.Errorf("START after ABORT = %v, want ACK", resp.Kind)
	}
}

func TestTargetSkipsGarbage(t *testing.T) {
	target := New()

	frame := append([]byte{0x00, 0x13, 0x37}, startFrame(image(10), protocol.BankB)...)
	write(t, target, frame, 4)

	if resp := recv(t, target); !resp.IsAck() {
		t.Errorf("response = %v, want ACK", resp.Kind)
	}
}

func TestTargetHook(t *testing.T) {
	calls := 0
	target := New(WithHook(func(f Frame) Action {
		calls++
		if f.Type == protocol.TypeStart && calls == 1 {
			return Action{Reply: ReplyNack, ErrorCode: protocol.ErrFlash}
		}
		if f.Type == protocol.TypeStart && calls == 2 {
			return Action{Reply: ReplySilent}
		}
		return Action{}
	}))

	frame := startFrame(image(10), protocol.BankB)

	write(t, target, frame, len(frame))
	if resp := recv(t, target); !resp.IsNack() || resp.ErrorCode != protocol.ErrFlash {
		t.Errorf("first START = %v/%d, want NACK/flash", resp.Kind, resp.ErrorCode)
	}
	if target.Phase() != PhaseIdle {
		t.Errorf("scripted reply must not change phase, got %v", target.Phase())
	}

	write(t, target, frame, len(frame))
	expectSilence(t, target)

	write(t, target, frame, len(frame))
	if resp := recv(t, target); !resp.IsAck() {
		t.Errorf("third START = %v, want ACK", resp.Kind)
	}
}

func TestTargetResponseShaping(t *testing.T) {
	noise := []byte{0x0D, 0x0A}
	target := New(WithSplit(3), WithNoise(noise))

	frame := startFrame(image(10), protocol.BankB)
	write(t, target, frame, len(frame))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var pieces [][]byte
	total := 0
	for total < len(noise)+protocol.ResponseSize {
		data, err := target.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		pieces = append(pieces, data)
		total += len(data)
	}

	if len(pieces) != 4 {
		t.Errorf("got %d pieces, want 4", len(pieces))
	}
	all := bytes.Join(pieces, nil)
	if !bytes.HasPrefix(all, noise) {
		t.Errorf("response % X should start with noise", all)
	}
}

func TestTargetWriteLimits(t *testing.T) {
	t.Run("mtu", func(t *testing.T) {
		target := New(WithMaxWrite(20))
		if _, err := target.Write(make([]byte, 21)); err == nil {
			t.Error("expected error for oversized write")
		}
		if target.MaxWriteSize() != 20 {
			t.Errorf("MaxWriteSize() = %d, want 20", target.MaxWriteSize())
		}
	})

	t.Run("injected failure", func(t *testing.T) {
		target := New(WithWriteError(1, ErrInjected))
		if _, err := target.Write([]byte{1}); err != nil {
			t.Fatalf("first write: %v", err)
		}
		if _, err := target.Write([]byte{2}); !errors.Is(err, ErrInjected) {
			t.Errorf("second write error = %v, want ErrInjected", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		target := New()
		_ = target.Close()
		if _, err := target.Write([]byte{1}); err == nil {
			t.Error("expected error after Close")
		}
	})
}
