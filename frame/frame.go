// Package frame reassembles provider wire frames from arbitrary byte fragments.
//
// A Reassembler is pure: given the carry-over buffer from the previous call and
// the next fragment it returns every frame completed by that fragment plus the
// bytes that belong to a not-yet-complete frame. Neither input is mutated and the
// returned rest never aliases the fragment, so a caller may reuse its read buffer.
package frame

import "errors"

var (
	// ErrIncomplete is returned by EventStream.NextMessage when the buffer does
	// not yet hold a full message.
	ErrIncomplete = errors.New("frame: incomplete message")

	// ErrPreludeChecksum marks a binary message whose prelude CRC did not match.
	ErrPreludeChecksum = errors.New("frame: prelude checksum mismatch")

	// ErrMessageChecksum marks a binary message whose trailing CRC did not match.
	ErrMessageChecksum = errors.New("frame: message checksum mismatch")

	// ErrInvalidLength marks a binary prelude declaring an impossible length.
	ErrInvalidLength = errors.New("frame: invalid message length")

	// ErrMalformed marks a binary message the decoder rejected for another reason.
	ErrMalformed = errors.New("frame: malformed message")

	// ErrTruncated marks bytes left over when the stream ended mid-frame.
	ErrTruncated = errors.New("frame: stream ended mid-frame")
)

// Frame is one complete wire-level message.
type Frame struct {
	// Event is the SSE event name, or the :event-type (or :exception-type)
	// header of a binary message.
	Event string

	// ID is the SSE id field, if any.
	ID string

	// Data is the SSE data payload (multiple data lines joined with "\n") or
	// the binary message payload.
	Data []byte

	// Headers holds binary message headers. Nil for SSE frames.
	Headers map[string]string

	// Done is set for the SSE "[DONE]" sentinel.
	Done bool

	// Err is set when the bytes could not be validated as a frame. Raw then
	// holds the bytes that were consumed for it.
	Err error
	Raw []byte
}

// MessageType returns the :message-type header of a binary frame ("event",
// "exception" or "error"), or "event" for SSE frames.
func (f Frame) MessageType() string {
	if t, ok := f.Headers[":message-type"]; ok {
		return t
	}
	return "event"
}

// Reassembler turns a byte stream into frames.
type Reassembler interface {
	// Reassemble appends fragment to buf and splits off every complete frame.
	Reassemble(buf, fragment []byte) (frames []Frame, rest []byte)

	// Flush is called once the stream has ended and handles whatever rest was
	// left by the last Reassemble call.
	Flush(rest []byte) []Frame
}

func concat(buf, fragment []byte) []byte {
	out := make([]byte, 0, len(buf)+len(fragment))
	out = append(out, buf...)
	return append(out, fragment...)
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
