package protocol

import (
	"encoding/binary"
	"fmt"
)

// EncodeStart constructs a START frame.
//
// Frame structure (StartPacketSize bytes):
//
//	[MAGIC(4)][TYPE][SIZE(4)][VERSION(4)][CRC32(4)][TOTAL_CHUNKS(4)][BANK]
func EncodeStart(p StartPacket) []byte {
	frame := make([]byte, StartPacketSize)

	putHeader(frame, MagicStart, TypeStart)
	binary.LittleEndian.PutUint32(frame[5:9], p.Size)
	binary.LittleEndian.PutUint32(frame[9:13], p.Version)
	binary.LittleEndian.PutUint32(frame[13:17], p.CRC32)
	binary.LittleEndian.PutUint32(frame[17:21], p.TotalChunks)
	frame[21] = byte(p.Bank)

	return frame
}

// EncodeData constructs a DATA frame for one chunk and returns it together with
// the chunk's CRC32. The checksum covers the unpadded chunk only; the payload
// is then padded with PadByte up to ChunkSize.
//
// Frame structure (DataPacketSize bytes):
//
//	[MAGIC(4)][TYPE][CHUNK_NUMBER(4)][CHUNK_SIZE(2)][CHUNK_CRC32(4)][PAYLOAD(ChunkSize)]
func EncodeData(chunkNumber uint32, chunk []byte, checksum ChecksumType) ([]byte, uint32, error) {
	if len(chunk) == 0 {
		return nil, 0, fmt.Errorf("chunk cannot be empty")
	}
	if len(chunk) > ChunkSize {
		return nil, 0, fmt.Errorf("chunk length %d exceeds maximum %d bytes", len(chunk), ChunkSize)
	}

	crc := checksum.Sum(chunk)

	frame := make([]byte, DataPacketSize)
	putHeader(frame, MagicData, TypeData)
	binary.LittleEndian.PutUint32(frame[5:9], chunkNumber)
	binary.LittleEndian.PutUint16(frame[9:11], uint16(len(chunk)))
	binary.LittleEndian.PutUint32(frame[11:15], crc)

	payload := frame[DataHeaderSize:]
	n := copy(payload, chunk)
	for i := n; i < len(payload); i++ {
		payload[i] = PadByte
	}

	return frame, crc, nil
}

// EncodeEnd constructs an END frame: [MAGIC(4)][TYPE].
func EncodeEnd() []byte {
	frame := make([]byte, EndPacketSize)
	putHeader(frame, MagicStart, TypeEnd)
	return frame
}

// EncodeAbort constructs an ABORT frame: [MAGIC(4)][TYPE].
func EncodeAbort() []byte {
	frame := make([]byte, AbortPacketSize)
	putHeader(frame, MagicStart, TypeAbort)
	return frame
}

// DecodeStart parses a START frame. Used by target simulators.
func DecodeStart(frame []byte) (*StartPacket, error) {
	if len(frame) < StartPacketSize {
		return nil, fmt.Errorf("start frame too short: got %d bytes, expected %d", len(frame), StartPacketSize)
	}
	if err := checkHeader(frame, MagicStart, TypeStart); err != nil {
		return nil, err
	}

	return &StartPacket{
		Size:        binary.LittleEndian.Uint32(frame[5:9]),
		Version:     binary.LittleEndian.Uint32(frame[9:13]),
		CRC32:       binary.LittleEndian.Uint32(frame[13:17]),
		TotalChunks: binary.LittleEndian.Uint32(frame[17:21]),
		Bank:        Bank(frame[21]),
	}, nil
}

// DecodeData parses a DATA frame. The returned payload aliases frame.
func DecodeData(frame []byte) (*DataPacket, error) {
	if len(frame) < DataPacketSize {
		return nil, fmt.Errorf("data frame too short: got %d bytes, expected %d", len(frame), DataPacketSize)
	}
	if err := checkHeader(frame, MagicData, TypeData); err != nil {
		return nil, err
	}

	p := &DataPacket{
		ChunkNumber: binary.LittleEndian.Uint32(frame[5:9]),
		ChunkSize:   binary.LittleEndian.Uint16(frame[9:11]),
		ChunkCRC32:  binary.LittleEndian.Uint32(frame[11:15]),
		Payload:     frame[DataHeaderSize:DataPacketSize],
	}
	if int(p.ChunkSize) > ChunkSize {
		return nil, fmt.Errorf("chunk size %d exceeds maximum %d bytes", p.ChunkSize, ChunkSize)
	}

	return p, nil
}

// FrameSize returns the total frame length implied by a frame header, or 0 if
// the type is not a host-to-target frame.
func FrameSize(packetType byte) int {
	switch packetType {
	case TypeStart:
		return StartPacketSize
	case TypeData:
		return DataPacketSize
	case TypeEnd:
		return EndPacketSize
	case TypeAbort:
		return AbortPacketSize
	default:
		return 0
	}
}

func putHeader(frame []byte, magic uint32, packetType byte) {
	binary.LittleEndian.PutUint32(frame[0:4], magic)
	frame[4] = packetType
}

func checkHeader(frame []byte, magic uint32, packetType byte) error {
	if got := binary.LittleEndian.Uint32(frame[0:4]); got != magic {
		return fmt.Errorf("invalid magic: got 0x%08X, expected 0x%08X", got, magic)
	}
	if frame[4] != packetType {
		return fmt.Errorf("invalid packet type: got 0x%02X, expected 0x%02X", frame[4], packetType)
	}
	return nil
}
