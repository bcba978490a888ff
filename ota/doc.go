// Package ota uploads a firmware image to a bootloader over a transport.Port.
//
// # Overview
//
// An upload is a stop-and-wait exchange of fixed-layout packets:
//   - START announces size, version, image CRC32, chunk count and target bank
//   - DATA carries one 1024 byte chunk, padded with 0xFF, plus the chunk CRC32
//   - END asks the target to verify the image and switch banks
//
// Every packet is answered with a 10 byte ACK or NACK. START is retried
// (3 attempts, 10s each by default); a NACK, timeout or malformed response to
// DATA or END fails the upload immediately.
//
// # Basic Usage
//
//	port, err := uart.Open("/dev/ttyACM0", uart.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	img, err := firmware.Load("app.bin", firmware.WithBank(protocol.BankB))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	up := ota.New(port)
//	result, err := up.Upload(context.Background(), img)
//	if err != nil {
//	    log.Fatalf("upload failed after %d chunks: %v", result.ChunksSent, err)
//	}
//
// # Configuration Options
//
//	up := ota.New(port,
//	    ota.WithProgressCallback(progressFunc),
//	    ota.WithLogger(myLogger),
//	    ota.WithStartAttempts(5),
//	    ota.WithChunkTimeout(5*time.Second),
//	    ota.WithFragmentSize(20),
//	    ota.WithAbortOnFailure(true),
//	)
//
// # Fragmentation
//
// Packets larger than the port's MaxWriteSize (or WithFragmentSize) are
// written in pieces with a short pause between them. The response wait
// starts after the last piece.
//
// # Error Handling
//
// Upload returns a *StepError naming the step and chunk. Its cause is one of:
//   - TransportError: the port failed, never retried
//   - TimeoutError: no response before the deadline
//   - ProtocolError: short response, wrong magic or unknown type
//   - protocol.NackError: the target rejected the packet
//   - context.Canceled or context.DeadlineExceeded from the caller's context
package ota
