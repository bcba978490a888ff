package protocol

import "encoding/binary"

// DecodeResponse parses the first ResponseSize bytes of buf as a response frame.
// Bytes beyond ResponseSize are ignored.
//
// Response frame structure:
//
//	[MAGIC(4)][TYPE][ERROR_CODE][LAST_CHUNK(4)]
//
// It returns false when fewer than ResponseSize bytes are supplied. It never
// panics, and it does not check the magic or the kind: callers compare
// Magic with the value expected for their step and treat unknown kinds
// as malformed.
func DecodeResponse(buf []byte) (*Response, bool) {
	if len(buf) < ResponseSize {
		return nil, false
	}

	return &Response{
		Magic:     binary.LittleEndian.Uint32(buf[0:4]),
		Kind:      Kind(buf[4]),
		ErrorCode: buf[5],
		LastChunk: binary.LittleEndian.Uint32(buf[6:10]),
	}, true
}

// EncodeResponse constructs a response frame. Used by target simulators.
func EncodeResponse(kind Kind, errorCode byte, lastChunk uint32) []byte {
	frame := make([]byte, ResponseSize)
	putHeader(frame, MagicStart, byte(kind))
	frame[5] = errorCode
	binary.LittleEndian.PutUint32(frame[6:10], lastChunk)
	return frame
}

// IsAck reports whether r is a positive acknowledgement.
func (r *Response) IsAck() bool {
	return r.Kind == KindAck
}

// IsNack reports whether r is a negative acknowledgement.
func (r *Response) IsNack() bool {
	return r.Kind == KindNack
}

// KnownKind reports whether r carries an ACK or NACK type byte.
func (r *Response) KnownKind() bool {
	return r.Kind == KindAck || r.Kind == KindNack
}
