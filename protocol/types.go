package protocol

import (
	"fmt"
	"strings"
)

// Bank selects one of the two firmware storage regions on the target.
type Bank byte

const (
	// BankA is the first firmware region
	BankA Bank = 0x00

	// BankB is the second firmware region
	BankB Bank = 0x01
)

// String returns "A" or "B".
func (b Bank) String() string {
	switch b {
	case BankA:
		return "A"
	case BankB:
		return "B"
	default:
		return fmt.Sprintf("Bank(0x%02X)", byte(b))
	}
}

// Valid reports whether b is BankA or BankB.
func (b Bank) Valid() bool {
	return b == BankA || b == BankB
}

// ParseBank accepts "A", "B", "BANK_A", "BANK_B", "0" or "1" (case-insensitive).
func ParseBank(s string) (Bank, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "BANK_A", "0":
		return BankA, nil
	case "B", "BANK_B", "1":
		return BankB, nil
	default:
		return 0, fmt.Errorf("invalid bank %q: must be A or B", s)
	}
}

// StartPacket describes the image about to be transferred.
type StartPacket struct {
	// Size is the firmware size in bytes
	Size uint32

	// Version is the caller-supplied firmware version
	Version uint32

	// CRC32 is the checksum of the whole image
	CRC32 uint32

	// TotalChunks is ceil(Size / ChunkSize)
	TotalChunks uint32

	// Bank is the target bank
	Bank Bank
}

// DataPacket is one decoded DATA frame.
type DataPacket struct {
	// ChunkNumber is the zero-based chunk index
	ChunkNumber uint32

	// ChunkSize is the number of real bytes in Payload
	ChunkSize uint16

	// ChunkCRC32 is the checksum of the unpadded chunk
	ChunkCRC32 uint32

	// Payload is always ChunkSize bytes long, padded with PadByte
	Payload []byte
}

// Data returns the unpadded chunk bytes.
func (p *DataPacket) Data() []byte {
	return p.Payload[:p.ChunkSize]
}

// Kind is the type of a response frame.
type Kind byte

const (
	// KindAck is a positive acknowledgement
	KindAck Kind = TypeAck

	// KindNack is a negative acknowledgement
	KindNack Kind = TypeNack
)

// String returns "ACK", "NACK" or the raw code.
func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ACK"
	case KindNack:
		return "NACK"
	default:
		return fmt.Sprintf("Kind(0x%02X)", byte(k))
	}
}

// Response is a decoded ACK/NACK frame.
type Response struct {
	// Magic is the frame magic; the target always sends MagicStart
	Magic uint32

	// Kind is TypeAck or TypeNack for well-formed responses
	Kind Kind

	// ErrorCode is one of the Err* codes when Kind is KindNack
	ErrorCode byte

	// LastChunk is the number of chunks the target has accepted so far
	LastChunk uint32
}
