package sse

import (
	"errors"
	"io"
	"log/slog"

	"github.com/mixaill76/byok_router/internal/converter"
)

// EventConverter turns upstream data payloads into outgoing frames.
type EventConverter interface {
	ConvertEvent(data []byte) ([]converter.Frame, error)
	Finish() []converter.Frame
}

// Transformer is a pull-based re-encoding of an upstream SSE body. Upstream
// lines are read only while Read has nothing buffered, so a slow client slows
// the upstream read rate instead of growing memory. Close closes the upstream
// body, which aborts the upstream request.
type Transformer struct {
	body      io.ReadCloser
	lines     *LineReader
	conv      EventConverter
	logger    *slog.Logger
	out       []byte
	off       int
	err       error
	malformed int
}

func NewTransformer(body io.ReadCloser, conv EventConverter, logger *slog.Logger) *Transformer {
	return &Transformer{
		body:   body,
		lines:  NewLineReader(body, DefaultMaxLineSize),
		conv:   conv,
		logger: logger,
		out:    make([]byte, 0, 4096),
	}
}

func (t *Transformer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for t.off >= len(t.out) {
		if t.err != nil {
			return 0, t.err
		}
		t.out = t.out[:0]
		t.off = 0
		t.fill()
	}
	n := copy(p, t.out[t.off:])
	t.off += n
	return n, nil
}

// fill consumes one upstream line and appends whatever it produces.
func (t *Transformer) fill() {
	line, err := t.lines.ReadLine()
	switch {
	case errors.Is(err, io.EOF):
		for _, f := range t.conv.Finish() {
			t.out = f.AppendTo(t.out)
		}
		t.err = io.EOF
		return
	case errors.Is(err, ErrLineTooLong):
		t.skip(err)
		return
	case err != nil:
		t.err = err
		return
	}

	data, ok := Data(line)
	if !ok {
		return
	}
	frames, err := t.conv.ConvertEvent(data)
	if err != nil {
		t.skip(err)
		return
	}
	for _, f := range frames {
		t.out = f.AppendTo(t.out)
	}
}

func (t *Transformer) skip(err error) {
	t.malformed++
	t.logger.Debug("Skipping malformed stream event", "error", err)
}

// Malformed returns the number of upstream events that were skipped.
func (t *Transformer) Malformed() int {
	return t.malformed
}

func (t *Transformer) Close() error {
	return t.body.Close()
}
