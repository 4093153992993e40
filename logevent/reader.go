package logevent

import (
	"bufio"
	"bytes"
	"io"

	"github.com/teranos/wptmeta/errors"
)

// maxLineSize bounds a single log record; run_info and leak frames can be large
const maxLineSize = 32 * 1024 * 1024

// Reader yields events from a newline-delimited log stream
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader wraps a log stream
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Line returns the 1-based number of the last line read
func (r *Reader) Line() int {
	return r.line
}

// Next returns the next event, or io.EOF once the stream is exhausted.
// Blank lines are skipped. Decoding errors carry the line number.
func (r *Reader) Next() (Event, error) {
	for r.scanner.Scan() {
		r.line++
		raw := bytes.TrimSpace(r.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		ev, err := Decode(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", r.line)
		}
		return ev, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading log after line %d", r.line)
	}
	return nil, io.EOF
}
