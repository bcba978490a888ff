// Package firmware loads firmware images and slices them into transfer chunks.
//
// # Images
//
// An Image is an immutable copy of the firmware bytes plus the values the
// START frame announces: size, CRC32, chunk count, version and target bank.
//
//	img, err := firmware.Load("app.bin",
//	    firmware.WithVersion(0x02000100),
//	    firmware.WithBank(protocol.BankB),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Size: %d, CRC32: 0x%08X, chunks: %d\n",
//	    img.Size(), img.CRC32(), img.TotalChunks())
//
// # Chunks
//
// Chunks are fixed protocol.ChunkSize slices; only the last may be shorter.
// Padding is left to the packet codec. Chunk(i) recomputes any chunk
// independently and Chunks() is a restartable sequence:
//
//	for i, chunk := range img.Chunks() {
//	    frame, crc, err := protocol.EncodeData(uint32(i), chunk, img.Checksum())
//	    // ...
//	}
//
// # File Formats
//
// Load accepts raw binaries and Intel HEX files (".hex", ".ihex"). Intel HEX
// files are flattened from their lowest data address with 0xFF filling any
// gaps. Parse errors include the line number and what failed.
package firmware
