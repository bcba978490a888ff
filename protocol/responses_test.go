package protocol

import (
	"strings"
	"testing"
)

func TestDecodeResponse(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		wantOK bool
		want   Response
	}{
		{
			name:   "ack",
			input:  []byte{0x55, 0xAA, 0x55, 0xAA, 0x04, 0x00, 0x03, 0x00, 0x00, 0x00},
			wantOK: true,
			want:   Response{Magic: MagicStart, Kind: KindAck, ErrorCode: ErrNone, LastChunk: 3},
		},
		{
			name:   "nack with crc error",
			input:  []byte{0x55, 0xAA, 0x55, 0xAA, 0x05, 0x01, 0x02, 0x00, 0x00, 0x00},
			wantOK: true,
			want:   Response{Magic: MagicStart, Kind: KindNack, ErrorCode: ErrCRC, LastChunk: 2},
		},
		{
			name:   "wrong magic still decodes",
			input:  []byte{0xAA, 0x55, 0xAA, 0x55, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00},
			wantOK: true,
			want:   Response{Magic: MagicData, Kind: KindAck},
		},
		{
			name:   "extra bytes ignored",
			input:  []byte{0x55, 0xAA, 0x55, 0xAA, 0x04, 0x00, 0x01, 0x00, 0x00, 0x00, 0xDE, 0xAD},
			wantOK: true,
			want:   Response{Magic: MagicStart, Kind: KindAck, LastChunk: 1},
		},
		{name: "nil", input: nil, wantOK: false},
		{name: "empty", input: []byte{}, wantOK: false},
		{name: "nine bytes", input: []byte{0x55, 0xAA, 0x55, 0xAA, 0x04, 0x00, 0x00, 0x00, 0x00}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeResponse(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if got != nil {
					t.Errorf("expected nil response, got %+v", got)
				}
				return
			}
			if *got != tt.want {
				t.Errorf("DecodeResponse() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestDecodeResponseNeverPanics(t *testing.T) {
	for n := 0; n < 32; n++ {
		buf := make([]byte, n)
		for i := range buf {
			buf[i] = byte(i * 37)
		}
		resp, ok := DecodeResponse(buf)
		if n < ResponseSize && ok {
			t.Errorf("len %d: expected failure", n)
		}
		if n >= ResponseSize && (!ok || resp == nil) {
			t.Errorf("len %d: expected success", n)
		}
	}
}

func TestEncodeResponse(t *testing.T) {
	frame := EncodeResponse(KindNack, ErrSequence, 7)
	if len(frame) != ResponseSize {
		t.Fatalf("len = %d, want %d", len(frame), ResponseSize)
	}

	resp, ok := DecodeResponse(frame)
	if !ok {
		t.Fatal("DecodeResponse failed on encoded frame")
	}
	if resp.Magic != MagicStart || !resp.IsNack() || resp.ErrorCode != ErrSequence || resp.LastChunk != 7 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestResponseKind(t *testing.T) {
	tests := []struct {
		kind      Kind
		wantKnown bool
		wantName  string
	}{
		{kind: KindAck, wantKnown: true, wantName: "ACK"},
		{kind: KindNack, wantKnown: true, wantName: "NACK"},
		{kind: Kind(TypeAbort), wantKnown: false, wantName: "Kind(0x06)"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			r := &Response{Kind: tt.kind}
			if r.KnownKind() != tt.wantKnown {
				t.Errorf("KnownKind() = %v, want %v", r.KnownKind(), tt.wantKnown)
			}
			if tt.kind.String() != tt.wantName {
				t.Errorf("String() = %q, want %q", tt.kind.String(), tt.wantName)
			}
		})
	}
}

func TestNackError(t *testing.T) {
	err := &NackError{Operation: "DATA chunk 1", ErrorCode: ErrCRC, LastChunk: 1}

	msg := err.Error()
	for _, want := range []string{"DATA chunk 1", "CRC mismatch", "0x01", "last chunk 1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error message %q should contain %q", msg, want)
		}
	}

	if !IsNackError(err) {
		t.Error("IsNackError() = false, want true")
	}
}

func TestErrorCodeName(t *testing.T) {
	tests := []struct {
		code byte
		want string
	}{
		{code: ErrNone, want: "no error"},
		{code: ErrCRC, want: "CRC mismatch"},
		{code: ErrSize, want: "invalid size"},
		{code: ErrFlash, want: "flash operation failed"},
		{code: ErrSequence, want: "sequence error"},
		{code: ErrTimeout, want: "target timeout"},
		{code: 0x42, want: "unknown error code 0x42"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := ErrorCodeName(tt.code); got != tt.want {
				t.Errorf("ErrorCodeName(0x%02X) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}
