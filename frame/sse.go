package frame

import (
	"bytes"
)

// DoneSentinel is the data payload OpenAI-compatible APIs send as the last event.
const DoneSentinel = "[DONE]"

// SSE reassembles text/event-stream bodies.
//
// Events end at a blank line; lines may end in "\n", "\r\n" or a bare "\r",
// mixed freely. Comment lines (leading ':') and the retry field are ignored.
// Lines are only interpreted once their terminator has arrived, so a fragment
// boundary may fall anywhere, including inside a UTF-8 sequence or between
// the "\r" and "\n" of a CRLF.
type SSE struct{}

// Reassemble implements Reassembler.
func (SSE) Reassemble(buf, fragment []byte) ([]Frame, []byte) {
	data := concat(buf, fragment)

	var (
		frames     []Frame
		ev         sseEvent
		pos        int
		eventStart int
	)
	for {
		line, n := nextLine(data[pos:])
		if n == 0 {
			break
		}
		pos += n

		if len(line) == 0 {
			if f, ok := ev.frame(); ok {
				frames = append(frames, f)
			}
			ev = sseEvent{}
			eventStart = pos
			continue
		}
		ev.field(line)
	}

	return frames, clone(data[eventStart:])
}

// nextLine returns the first complete line in data without its terminator,
// and the number of bytes consumed. n is zero when no line is complete. A
// trailing '\r' is not a terminator yet since a '\n' may follow it.
func nextLine(data []byte) (line []byte, n int) {
	i := bytes.IndexAny(data, "\r\n")
	if i < 0 {
		return nil, 0
	}
	if data[i] == '\n' {
		return data[:i], i + 1
	}
	if i+1 == len(data) {
		return nil, 0
	}
	if data[i+1] == '\n' {
		return data[:i], i + 2
	}
	return data[:i], i + 1
}

// Flush emits a trailing event that was never terminated by a blank line.
func (s SSE) Flush(rest []byte) []Frame {
	if len(bytes.TrimSpace(rest)) == 0 {
		return nil
	}
	frames, _ := s.Reassemble(rest, []byte("\n\n"))
	return frames
}

type sseEvent struct {
	event   string
	id      string
	data    []byte
	hasData bool
}

func (e *sseEvent) field(line []byte) {
	if line[0] == ':' {
		return
	}

	name, value := line, []byte(nil)
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		name, value = line[:i], line[i+1:]
		value = bytes.TrimPrefix(value, []byte(" "))
	}

	switch string(name) {
	case "event":
		e.event = string(value)
	case "id":
		e.id = string(value)
	case "data":
		if e.hasData {
			e.data = append(e.data, '\n')
		}
		e.data = append(e.data, value...)
		e.hasData = true
	}
}

func (e *sseEvent) frame() (Frame, bool) {
	if !e.hasData {
		return Frame{}, false
	}
	f := Frame{Event: e.event, ID: e.id}
	if string(bytes.TrimSpace(e.data)) == DoneSentinel {
		f.Done = true
		return f, true
	}
	f.Data = e.data
	if f.Data == nil {
		f.Data = []byte{}
	}
	return f, true
}
