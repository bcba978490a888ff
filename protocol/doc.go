// Package protocol implements the OTA bootloader wire protocol.
//
// This package provides functions to encode host-to-target frames and decode
// target responses. It performs no I/O and holds no state.
//
// # Protocol Overview
//
// Every frame starts with a 4-byte magic and a 1-byte packet type. All
// integers are little-endian and fields are packed without padding:
//
//	START:    [MAGIC_START(4)][0x01][SIZE(4)][VERSION(4)][CRC32(4)][TOTAL_CHUNKS(4)][BANK]
//	DATA:     [MAGIC_DATA(4)][0x02][CHUNK_NUMBER(4)][CHUNK_SIZE(2)][CHUNK_CRC32(4)][PAYLOAD(1024)]
//	END:      [MAGIC_START(4)][0x03]
//	ABORT:    [MAGIC_START(4)][0x06]
//	RESPONSE: [MAGIC_START(4)][0x04|0x05][ERROR_CODE][LAST_CHUNK(4)]
//
// Where:
//   - MAGIC_START = 0xAA55AA55
//   - MAGIC_DATA = 0x55AA55AA
//   - PAYLOAD is always ChunkSize bytes; the final chunk is padded with 0xFF
//   - CHUNK_CRC32 covers the unpadded chunk only
//
// # Encoders
//
//	frame := protocol.EncodeStart(protocol.StartPacket{...})
//	frame, crc, err := protocol.EncodeData(n, chunk, protocol.ChecksumIEEE)
//	frame := protocol.EncodeEnd()
//
// # Responses
//
// DecodeResponse never validates the magic; compare it with MagicStart:
//
//	resp, ok := protocol.DecodeResponse(buf)
//	if !ok || resp.Magic != protocol.MagicStart {
//	    // malformed
//	}
//	if resp.IsNack() {
//	    err := &protocol.NackError{Operation: "START", ErrorCode: resp.ErrorCode}
//	    // err.Error() returns: "START rejected: CRC mismatch (0x01, last chunk 0)"
//	}
//
// # Checksums
//
// CRC32 is used for integrity only. Two variants are available because
// targets differ: ChecksumIEEE (zlib) and ChecksumSTM32 (hardware CRC unit).
package protocol
