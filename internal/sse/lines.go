// Package sse reads upstream server-sent event streams line by line and
// re-encodes them on demand.
package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// DefaultMaxLineSize bounds a single SSE line. Chunks carrying large tool
// arguments or thinking blocks stay well below it.
const DefaultMaxLineSize = 1024 * 1024

var ErrLineTooLong = errors.New("sse: line too long")

var dataPrefix = []byte("data:")

// LineReader returns complete lines from r. A line split across several
// upstream reads is kept until its terminator arrives; an unterminated final
// line is returned at EOF.
type LineReader struct {
	r          *bufio.Reader
	maxLine    int
	partial    []byte
	discarding bool
}

func NewLineReader(r io.Reader, maxLine int) *LineReader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	return &LineReader{
		r:       bufio.NewReaderSize(r, 32*1024),
		maxLine: maxLine,
	}
}

// ReadLine returns the next line without its "\n" or "\r\n" terminator. The
// returned slice is only valid until the next call. A line longer than the
// limit yields ErrLineTooLong once and is then skipped up to its terminator.
func (lr *LineReader) ReadLine() ([]byte, error) {
	for {
		chunk, err := lr.r.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if lr.discarding {
				continue
			}
			lr.partial = append(lr.partial, chunk...)
			if len(lr.partial) > lr.maxLine {
				lr.partial = lr.partial[:0]
				lr.discarding = true
				return nil, ErrLineTooLong
			}
			continue

		case errors.Is(err, io.EOF):
			if lr.discarding {
				lr.discarding = false
				lr.partial = lr.partial[:0]
				return nil, io.EOF
			}
			if len(lr.partial) == 0 && len(chunk) == 0 {
				return nil, io.EOF
			}
			line := append(lr.partial, chunk...)
			lr.partial = nil
			return trimEOL(line), nil

		case err != nil:
			return nil, err
		}

		if lr.discarding {
			lr.discarding = false
			continue
		}
		line := chunk
		if len(lr.partial) > 0 {
			line = append(lr.partial, chunk...)
			lr.partial = lr.partial[:0]
		}
		line = trimEOL(line)
		if len(line) > lr.maxLine {
			return nil, ErrLineTooLong
		}
		return line, nil
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// Data returns the payload of a "data:" line. Other fields, comments and blank
// lines report ok == false.
func Data(line []byte) (payload []byte, ok bool) {
	rest, found := bytes.CutPrefix(line, dataPrefix)
	if !found {
		return nil, false
	}
	return bytes.TrimPrefix(rest, []byte(" ")), true
}
