package ota

import (
	"context"
	"time"
)

// fragmentSize returns the write size for a packet of n bytes.
func (u *Uploader) fragmentSize(n int) int {
	size := u.port.MaxWriteSize()
	if limit := u.config.FragmentSize; limit > 0 && (size <= 0 || limit < size) {
		size = limit
	}
	if size <= 0 || size > n {
		size = n
	}
	return size
}

// send writes packet in fragments, pausing between them. The packet counts
// as sent once the last fragment is written.
func (u *Uploader) send(ctx context.Context, packet []byte) error {
	size := u.fragmentSize(len(packet))

	for off := 0; off < len(packet); off += size {
		if off > 0 {
			if err := sleep(ctx, u.config.FragmentDelay); err != nil {
				return err
			}
		}

		end := off + size
		if end > len(packet) {
			end = len(packet)
		}

		if _, err := u.port.Write(packet[off:end]); err != nil {
			return &TransportError{Op: "write", Err: err}
		}
	}

	return nil
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
