package firmware

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/moffa90/go-otaflash/protocol"
)

// Constants for Intel HEX parsing.
const (
	// MinimumRecordLength is the minimum record length in hex characters
	// after the ':' (length(2) + address(4) + type(2) + checksum(2))
	MinimumRecordLength = 10

	// RecordHeaderSize is the size of length + address + type in bytes
	RecordHeaderSize = 4

	// RecordChecksumSize is the size of the record checksum field
	RecordChecksumSize = 1

	// MaxImageSize is the largest image the START frame can describe
	MaxImageSize = math.MaxUint32

	// MaxHexSpan bounds the flattened image size of an Intel HEX file, so a
	// stray high-address record cannot allocate gigabytes
	MaxHexSpan = 16 << 20

	// DefaultSegmentCapacity is the default initial capacity for the segments slice
	DefaultSegmentCapacity = 64
)

// Intel HEX record types.
const (
	recordData                   = 0x00
	recordEOF                    = 0x01
	recordExtendedSegmentAddress = 0x02
	recordStartSegmentAddress    = 0x03
	recordExtendedLinearAddress  = 0x04
	recordStartLinearAddress     = 0x05
)

type segment struct {
	addr uint32
	data []byte
}

// ParseHex parses an Intel HEX file and flattens it into a contiguous binary
// image starting at the lowest data address. Gaps between records are filled
// with protocol.PadByte (0xFF), the erased-flash value.
//
// Supported record types: 00 (data), 01 (EOF), 02 (extended segment address),
// 03 (start segment address, ignored), 04 (extended linear address) and
// 05 (start linear address, ignored).
//
// Example:
//
//	f, _ := os.Open("app.hex")
//	data, err := firmware.ParseHex(f)
func ParseHex(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024), 1024*1024)

	var (
		base     uint32
		segments = make([]segment, 0, DefaultSegmentCapacity)
		sawEOF   bool
		lineNum  int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines
		if line == "" {
			continue
		}
		if sawEOF {
			return nil, fmt.Errorf("line %d: data after end-of-file record", lineNum)
		}

		recType, addr, data, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch recType {
		case recordData:
			if len(data) > 0 {
				segments = append(segments, segment{addr: base + uint32(addr), data: data})
			}
		case recordEOF:
			sawEOF = true
		case recordExtendedSegmentAddress:
			if len(data) != 2 {
				return nil, fmt.Errorf("line %d: extended segment address record must carry 2 bytes, got %d", lineNum, len(data))
			}
			base = (uint32(data[0])<<8 | uint32(data[1])) << 4
		case recordExtendedLinearAddress:
			if len(data) != 2 {
				return nil, fmt.Errorf("line %d: extended linear address record must carry 2 bytes, got %d", lineNum, len(data))
			}
			base = (uint32(data[0])<<8 | uint32(data[1])) << 16
		case recordStartSegmentAddress, recordStartLinearAddress:
			// Entry point; irrelevant for a flat image.
		default:
			return nil, fmt.Errorf("line %d: unsupported record type 0x%02X", lineNum, recType)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("no data records found in file")
	}

	return flatten(segments)
}

// parseRecord parses a single Intel HEX record.
//
// Record format:
//
//	:[LEN(1)][ADDR(2)][TYPE(1)][DATA(LEN)][CHECKSUM(1)]
//
// All values are hex-encoded, ADDR is big-endian and CHECKSUM is the two's
// complement of the sum of all preceding bytes.
func parseRecord(line string) (recType byte, addr uint16, data []byte, err error) {
	if line[0] != ':' {
		return 0, 0, nil, fmt.Errorf("record must start with ':'")
	}
	line = line[1:]

	if len(line) < MinimumRecordLength {
		return 0, 0, nil, fmt.Errorf("record too short: got %d characters, minimum is %d", len(line), MinimumRecordLength)
	}

	raw, err := hex.DecodeString(line)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("invalid hex data: %w", err)
	}

	dataLen := int(raw[0])
	expectedLen := RecordHeaderSize + dataLen + RecordChecksumSize
	if len(raw) != expectedLen {
		return 0, 0, nil, fmt.Errorf("data length mismatch: got %d bytes, expected %d (header=%d + data=%d + checksum=%d)",
			len(raw), expectedLen, RecordHeaderSize, dataLen, RecordChecksumSize)
	}

	checksum := raw[len(raw)-1]
	if calculated := calculateRecordChecksum(raw[:len(raw)-1]); checksum != calculated {
		return 0, 0, nil, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X", checksum, calculated)
	}

	addr = uint16(raw[1])<<8 | uint16(raw[2])
	recType = raw[3]
	data = bytes.Clone(raw[RecordHeaderSize : RecordHeaderSize+dataLen])

	return recType, addr, data, nil
}

// flatten lays the segments out in address order from the lowest address.
func flatten(segments []segment) ([]byte, error) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].addr < segments[j].addr
	})

	start := uint64(segments[0].addr)
	var end uint64
	for i, seg := range segments {
		segEnd := uint64(seg.addr) + uint64(len(seg.data))
		if i > 0 && uint64(seg.addr) < end {
			return nil, fmt.Errorf("overlapping data records at address 0x%08X", seg.addr)
		}
		end = max(end, segEnd)
	}

	if end-start > MaxHexSpan {
		return nil, fmt.Errorf("image spans %d bytes from 0x%08X, maximum is %d", end-start, start, MaxHexSpan)
	}

	image := bytes.Repeat([]byte{protocol.PadByte}, int(end-start))
	for _, seg := range segments {
		copy(image[uint64(seg.addr)-start:], seg.data)
	}

	return image, nil
}

// calculateRecordChecksum computes the 8-bit Intel HEX record checksum.
// Uses basic summation with 2's complement.
func calculateRecordChecksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1 // 2's complement
}
