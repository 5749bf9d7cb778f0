package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/aws/smithy-go/logging"
)

const (
	preludeLen       = 8
	preludeCRCLen    = 4
	messageCRCLen    = 4
	minMessageLen    = preludeLen + preludeCRCLen + messageCRCLen
	maxMessageLength = 16 << 20
)

// EventStream reassembles application/vnd.amazon.eventstream bodies, the
// length-prefixed binary framing used by Bedrock streaming APIs.
//
// A message whose trailing CRC fails is reported as an error frame and
// skipped; its length prefix was valid, so the following message is still
// found. A bad prelude cannot be re-synchronized: the whole remaining buffer is
// reported as one error frame and dropped.
type EventStream struct {
	// Logger, when set, receives a hex dump of every decoded message.
	Logger logging.Logger
}

// NextMessage decodes the first message in buf. It returns ErrIncomplete and
// n == 0 while buf does not hold a full message; otherwise n is the number of
// bytes consumed. Validation failures are reported through Frame.Err with a
// nil error.
func (es EventStream) NextMessage(buf []byte) (Frame, int, error) {
	if len(buf) < preludeLen+preludeCRCLen {
		return Frame{}, 0, ErrIncomplete
	}

	total := binary.BigEndian.Uint32(buf[0:4])
	headersLen := binary.BigEndian.Uint32(buf[4:8])
	preludeCRC := binary.BigEndian.Uint32(buf[8:12])

	if crc32.ChecksumIEEE(buf[:preludeLen]) != preludeCRC {
		return Frame{Err: ErrPreludeChecksum, Raw: clone(buf)}, len(buf), nil
	}
	if total < minMessageLen || total > maxMessageLength || headersLen > total-minMessageLen {
		err := fmt.Errorf("%w: total=%d headers=%d", ErrInvalidLength, total, headersLen)
		return Frame{Err: err, Raw: clone(buf)}, len(buf), nil
	}
	if uint32(len(buf)) < total {
		return Frame{}, 0, ErrIncomplete
	}

	raw := buf[:total]
	msg, err := es.decoder().Decode(bytes.NewReader(raw), nil)
	if err != nil {
		var crcErr eventstream.ChecksumError
		if errors.As(err, &crcErr) {
			return Frame{Err: ErrMessageChecksum, Raw: clone(raw)}, int(total), nil
		}
		return Frame{Err: fmt.Errorf("%w: %v", ErrMalformed, err), Raw: clone(raw)}, int(total), nil
	}

	return messageFrame(msg), int(total), nil
}

// Reassemble implements Reassembler.
func (es EventStream) Reassemble(buf, fragment []byte) ([]Frame, []byte) {
	data := concat(buf, fragment)

	var frames []Frame
	off := 0
	for off < len(data) {
		f, n, err := es.NextMessage(data[off:])
		if err != nil {
			break
		}
		frames = append(frames, f)
		off += n
	}
	return frames, clone(data[off:])
}

// Flush reports any leftover bytes as a truncated frame.
func (EventStream) Flush(rest []byte) []Frame {
	if len(rest) == 0 {
		return nil
	}
	return []Frame{{Err: ErrTruncated, Raw: clone(rest)}}
}

func (es EventStream) decoder() *eventstream.Decoder {
	if es.Logger == nil {
		return eventstream.NewDecoder()
	}
	return eventstream.NewDecoder(func(o *eventstream.DecoderOptions) {
		o.Logger = es.Logger
		o.LogMessages = true
	})
}

func messageFrame(msg eventstream.Message) Frame {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Name] = headerString(h.Value)
	}

	f := Frame{
		Event:   headers[":event-type"],
		Data:    clone(msg.Payload),
		Headers: headers,
	}
	switch headers[":message-type"] {
	case "exception":
		f.Event = headers[":exception-type"]
	case "error":
		f.Event = headers[":error-code"]
	}
	if f.Data == nil {
		f.Data = []byte{}
	}
	return f
}

func headerString(v eventstream.Value) string {
	switch val := v.Get().(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}
