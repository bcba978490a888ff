package firmware

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/moffa90/go-otaflash/protocol"
)

// Image is an immutable firmware buffer together with the values the START
// frame announces. Create one with New, Load or LoadReader.
type Image struct {
	data        []byte
	version     uint32
	bank        protocol.Bank
	checksum    protocol.ChecksumType
	crc         uint32
	totalChunks int
}

// Option configures an Image.
type Option func(*Image)

// WithVersion sets the version announced in the START frame.
// Default is protocol.DefaultVersion.
func WithVersion(version uint32) Option {
	return func(img *Image) {
		img.version = version
	}
}

// WithBank sets the target bank. Default is protocol.BankB.
func WithBank(bank protocol.Bank) Option {
	return func(img *Image) {
		img.bank = bank
	}
}

// WithChecksum sets the CRC32 variant for the image and chunk checksums.
// Default is protocol.ChecksumIEEE.
func WithChecksum(checksum protocol.ChecksumType) Option {
	return func(img *Image) {
		img.checksum = checksum
	}
}

// New creates an Image from data. The buffer is copied, so later changes to
// data do not affect the image.
//
// Example:
//
//	img, err := firmware.New(bin, firmware.WithBank(protocol.BankA))
func New(data []byte, opts ...Option) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("firmware image cannot be empty")
	}
	if uint64(len(data)) > MaxImageSize {
		return nil, fmt.Errorf("firmware image too large: %d bytes, maximum is %d", len(data), uint64(MaxImageSize))
	}

	img := &Image{
		data:     bytes.Clone(data),
		version:  protocol.DefaultVersion,
		bank:     protocol.BankB,
		checksum: protocol.ChecksumIEEE,
	}
	for _, opt := range opts {
		opt(img)
	}

	if !img.bank.Valid() {
		return nil, fmt.Errorf("invalid target bank: %v", img.bank)
	}

	img.crc = img.checksum.Sum(img.data)
	img.totalChunks = TotalChunks(len(img.data))

	return img, nil
}

// Load reads a firmware file from disk. Files ending in ".hex" or ".ihex" are
// parsed as Intel HEX; anything else is taken as a raw binary image.
//
// Example:
//
//	img, err := firmware.Load("app.bin", firmware.WithVersion(0x02000100))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("CRC32: 0x%08X, chunks: %d\n", img.CRC32(), img.TotalChunks())
func Load(path string, opts ...Option) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex":
		data, err := ParseHex(f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		return New(data, opts...)
	default:
		return LoadReader(f, opts...)
	}
}

// LoadReader reads a raw binary image from any io.Reader.
func LoadReader(r io.Reader, opts ...Option) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read firmware: %w", err)
	}
	return New(data, opts...)
}

// TotalChunks returns ceil(size / protocol.ChunkSize).
func TotalChunks(size int) int {
	return (size + protocol.ChunkSize - 1) / protocol.ChunkSize
}

// Size returns the image length in bytes.
func (img *Image) Size() int { return len(img.data) }

// CRC32 returns the checksum of the whole image.
func (img *Image) CRC32() uint32 { return img.crc }

// TotalChunks returns the number of DATA frames needed for the image.
func (img *Image) TotalChunks() int { return img.totalChunks }

// Version returns the version announced in the START frame.
func (img *Image) Version() uint32 { return img.version }

// Bank returns the target bank.
func (img *Image) Bank() protocol.Bank { return img.bank }

// Checksum returns the CRC32 variant used for this image.
func (img *Image) Checksum() protocol.ChecksumType { return img.checksum }

// StartPacket returns the START frame contents describing this image.
func (img *Image) StartPacket() protocol.StartPacket {
	return protocol.StartPacket{
		Size:        uint32(len(img.data)),
		Version:     img.version,
		CRC32:       img.crc,
		TotalChunks: uint32(img.totalChunks),
		Bank:        img.bank,
	}
}

// Chunk returns chunk i, unpadded. The last chunk may be shorter than
// protocol.ChunkSize. The returned slice must not be modified.
func (img *Image) Chunk(i int) ([]byte, error) {
	if i < 0 || i >= img.totalChunks {
		return nil, fmt.Errorf("chunk %d out of range: image has %d chunks", i, img.totalChunks)
	}
	start := i * protocol.ChunkSize
	end := min(start+protocol.ChunkSize, len(img.data))
	return img.data[start:end:end], nil
}

// Chunks yields every chunk in order with its index. The sequence can be
// iterated any number of times; each chunk is sliced from the image on demand.
//
// Example:
//
//	for i, chunk := range img.Chunks() {
//	    fmt.Printf("chunk %d: %d bytes\n", i, len(chunk))
//	}
func (img *Image) Chunks() iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		for i := 0; i < img.totalChunks; i++ {
			chunk, _ := img.Chunk(i)
			if !yield(i, chunk) {
				return
			}
		}
	}
}
