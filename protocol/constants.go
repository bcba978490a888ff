package protocol

// Frame magic numbers. START, END, ABORT and every response carry MagicStart;
// only DATA frames carry MagicData.
const (
	// MagicStart marks START/END-class frames (0xAA55AA55)
	MagicStart uint32 = 0xAA55AA55

	// MagicData marks DATA frames (0x55AA55AA)
	MagicData uint32 = 0x55AA55AA
)

// Packet type codes, the byte following the magic in every frame.
const (
	// TypeStart opens a transfer with the firmware description
	TypeStart = 0x01

	// TypeData carries one firmware chunk
	TypeData = 0x02

	// TypeEnd closes a transfer and asks the target to verify the image
	TypeEnd = 0x03

	// TypeAck is a positive response from the target
	TypeAck = 0x04

	// TypeNack is a negative response from the target
	TypeNack = 0x05

	// TypeAbort resets the target's transfer state; the target does not reply
	TypeAbort = 0x06
)

// Error codes reported by the target in the error_code field of a response.
const (
	// ErrNone indicates no error
	ErrNone = 0x00

	// ErrCRC indicates a chunk or image CRC32 mismatch
	ErrCRC = 0x01

	// ErrSize indicates an invalid chunk size or image size
	ErrSize = 0x02

	// ErrFlash indicates an erase or program failure on the target
	ErrFlash = 0x03

	// ErrSequence indicates an unexpected packet, chunk number or magic
	ErrSequence = 0x04

	// ErrTimeout indicates the target timed out waiting for data
	ErrTimeout = 0x05
)

// ChunkSize is the payload size of every DATA frame. Both ends must agree on it.
const ChunkSize = 1024

// Frame sizes in bytes. All frames are packed, little-endian, with no padding
// between fields.
const (
	// HeaderSize is magic(4) + type(1)
	HeaderSize = 5

	// StartPacketSize is header(5) + size(4) + version(4) + crc32(4) + total_chunks(4) + bank(1)
	StartPacketSize = 22

	// DataHeaderSize is header(5) + chunk_number(4) + chunk_size(2) + chunk_crc32(4)
	DataHeaderSize = 15

	// DataPacketSize is DataHeaderSize + ChunkSize
	DataPacketSize = DataHeaderSize + ChunkSize

	// EndPacketSize is header(5)
	EndPacketSize = HeaderSize

	// AbortPacketSize is header(5)
	AbortPacketSize = HeaderSize

	// ResponseSize is header(5) + error_code(1) + last_chunk(4)
	ResponseSize = 10
)

// PadByte fills the unused tail of the last chunk's payload (erased flash value).
const PadByte = 0xFF

// DefaultVersion is the firmware version sent when the caller does not supply one.
const DefaultVersion uint32 = 0x00010000
