package firmware

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
		errMsg  string
	}{
		{
			name: "single data record",
			input: ":0400000001020304F2\n" +
				":00000001FF\n",
			want: []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name: "gap filled with 0xFF",
			input: ":0400000001020304F2\n" +
				":020006000708E9\n" +
				":00000001FF\n",
			want: []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0x07, 0x08},
		},
		{
			name: "extended linear address and start linear address",
			input: ":020000040800F2\n" +
				":04001000DEADBEEFB4\n" +
				":0400000508000101ED\n" +
				":00000001FF\n",
			want: []byte{0xDE, 0xAD, 0xBE, 0xEF},
		},
		{
			name: "extended segment address",
			input: ":020000021000EC\n" +
				":02000200AABB97\n" +
				":00000001FF\n",
			want: []byte{0xAA, 0xBB},
		},
		{
			name: "records out of order",
			input: ":020006000708E9\n" +
				":0400000001020304F2\n",
			want: []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0xFF, 0x07, 0x08},
		},
		{
			name:  "blank lines and CRLF",
			input: "\r\n:0400000001020304F2\r\n\r\n:00000001FF\r\n",
			want:  []byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			name:    "bad checksum",
			input:   ":0400000001020304F3\n",
			wantErr: true,
			errMsg:  "checksum mismatch",
		},
		{
			name:    "missing colon",
			input:   "0400000001020304F2\n",
			wantErr: true,
			errMsg:  "must start with ':'",
		},
		{
			name:    "invalid hex",
			input:   ":04000000010203ZZF2\n",
			wantErr: true,
			errMsg:  "invalid hex data",
		},
		{
			name:    "length mismatch",
			input:   ":0500000001020304F1\n",
			wantErr: true,
			errMsg:  "data length mismatch",
		},
		{
			name:    "too short",
			input:   ":0000\n",
			wantErr: true,
			errMsg:  "record too short",
		},
		{
			name: "overlapping records",
			input: ":0400000001020304F2\n" +
				":0400020001020304F0\n",
			wantErr: true,
			errMsg:  "overlapping",
		},
		{
			name: "data after eof",
			input: ":00000001FF\n" +
				":0400000001020304F2\n",
			wantErr: true,
			errMsg:  "after end-of-file",
		},
		{
			name:    "no data",
			input:   ":00000001FF\n",
			wantErr: true,
			errMsg:  "no data records",
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
			errMsg:  "no data records",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHex(strings.NewReader(tt.input))

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("ParseHex() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestParseHexErrorIncludesLineNumber(t *testing.T) {
	input := ":0400000001020304F2\n" +
		":0400000001020304F3\n"

	_, err := ParseHex(strings.NewReader(input))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error = %v, want line 2", err)
	}
}

func TestCalculateRecordChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "eof record", data: []byte{0x00, 0x00, 0x00, 0x01}, want: 0xFF},
		{name: "data record", data: []byte{0x04, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04}, want: 0xF2},
		{name: "empty", data: nil, want: 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateRecordChecksum(tt.data); got != tt.want {
				t.Errorf("calculateRecordChecksum() = 0x%02X, want 0x%02X", got, tt.want)
			}
		})
	}
}
