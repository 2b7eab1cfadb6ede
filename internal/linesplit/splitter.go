package linesplit

import "bytes"

// Splitter turns arbitrary-sized chunks into complete lines.
//
// The carry-over buffer has no upper bound: a peer that never sends a
// newline makes it grow without limit.
//
// A Splitter is not safe for concurrent use. Each stream owns its own.
type Splitter struct {
	buf []byte
}

// New creates an empty Splitter.
func New() *Splitter {
	return &Splitter{}
}

// Feed appends chunk to the carry-over buffer and returns every line that is
// now complete, in arrival order. Returned lines do not include the newline;
// a trailing carriage return is trimmed as well.
//
// Feed returns nil when the chunk completes no line.
func (s *Splitter) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	s.buf = append(s.buf, chunk...)

	var lines []string

	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			break
		}

		line := s.buf[:idx]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))

		s.buf = s.buf[idx+1:]
	}

	// Compact so the consumed prefix can be collected.
	if len(s.buf) == 0 {
		s.buf = nil
	} else if len(lines) > 0 {
		s.buf = append([]byte(nil), s.buf...)
	}

	return lines
}

// Pending returns the number of bytes held for the current incomplete line.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// Reset discards any buffered partial line.
func (s *Splitter) Reset() {
	s.buf = nil
}
