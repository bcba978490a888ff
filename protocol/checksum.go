package protocol

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"
)

// ChecksumType selects the CRC32 variant used for the image and chunk checksums.
// The target must compute the same variant, so it is a per-image setting
// rather than a protocol constant.
type ChecksumType int

const (
	// ChecksumIEEE is the zlib/IEEE 802.3 CRC32 (reflected, poly 0xEDB88320)
	ChecksumIEEE ChecksumType = iota

	// ChecksumSTM32 is CRC-32/MPEG-2 fed one little-endian 32-bit word at a
	// time, with a trailing partial word zero-padded. This is what the STM32
	// hardware CRC unit produces with its reset configuration.
	ChecksumSTM32
)

// STM32 CRC unit parameters.
const (
	// STM32Polynomial is the CRC-32 polynomial in normal (MSB-first) form
	STM32Polynomial = 0x04C11DB7

	// STM32InitialValue is the CRC data register reset value
	STM32InitialValue = 0xFFFFFFFF

	// STM32HighBitMask is the high bit mask for MSB-first shifting
	STM32HighBitMask = 0x80000000

	// BitsPerWord is the number of bits fed per CRC step
	BitsPerWord = 32
)

// Sum computes the checksum of data.
func (c ChecksumType) Sum(data []byte) uint32 {
	switch c {
	case ChecksumSTM32:
		return calculateSTM32CRC(data)
	default:
		return crc32.ChecksumIEEE(data)
	}
}

// String returns "ieee" or "stm32".
func (c ChecksumType) String() string {
	switch c {
	case ChecksumIEEE:
		return "ieee"
	case ChecksumSTM32:
		return "stm32"
	default:
		return fmt.Sprintf("ChecksumType(%d)", int(c))
	}
}

// ParseChecksumType accepts "ieee", "zlib", "stm32" or "mpeg2".
func ParseChecksumType(s string) (ChecksumType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ieee", "zlib":
		return ChecksumIEEE, nil
	case "stm32", "mpeg2", "hw":
		return ChecksumSTM32, nil
	default:
		return 0, fmt.Errorf("invalid checksum type %q: must be ieee or stm32", s)
	}
}

// calculateSTM32CRC computes the STM32 hardware CRC of data.
//
// Full words are loaded little-endian, the way the target reads a byte buffer
// through a uint32 pointer. Remaining bytes are copied into a zeroed word and
// accumulated as one more word.
func calculateSTM32CRC(data []byte) uint32 {
	crc := uint32(STM32InitialValue)

	full := len(data) / 4
	for i := 0; i < full; i++ {
		crc = stm32Step(crc, binary.LittleEndian.Uint32(data[i*4:]))
	}

	if rem := len(data) % 4; rem > 0 {
		var last [4]byte
		copy(last[:], data[full*4:])
		crc = stm32Step(crc, binary.LittleEndian.Uint32(last[:]))
	}

	return crc
}

func stm32Step(crc, word uint32) uint32 {
	crc ^= word
	for i := 0; i < BitsPerWord; i++ {
		if crc&STM32HighBitMask != 0 {
			crc = (crc << 1) ^ STM32Polynomial
		} else {
			crc <<= 1
		}
	}
	return crc
}
