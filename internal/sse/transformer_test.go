package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/byok_router/internal/converter"
)

// upperConverter echoes payloads upper-cased and rejects "bad".
type upperConverter struct {
	finished bool
}

func (c *upperConverter) ConvertEvent(data []byte) ([]converter.Frame, error) {
	if string(data) == "bad" {
		return nil, fmt.Errorf("%w: bad", converter.ErrMalformedEvent)
	}
	return []converter.Frame{{Event: "e", Data: bytes.ToUpper(data)}}, nil
}

func (c *upperConverter) Finish() []converter.Frame {
	if c.finished {
		return nil
	}
	c.finished = true
	return []converter.Frame{{Data: []byte("END")}}
}

// chunkedBody returns one chunk per Read and counts the reads.
type chunkedBody struct {
	chunks []string
	reads  int
	closed bool
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		return 0, io.EOF
	}
	b.reads++
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTransformer_ConvertsAndFinishes(t *testing.T) {
	body := &chunkedBody{chunks: []string{"event: x\nda", "ta: hello\n\n", ": comment\n", "data: bad\n", "data: world"}}
	tr := NewTransformer(body, &upperConverter{}, discardLogger())

	out, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "event: e\ndata: HELLO\n\nevent: e\ndata: WORLD\n\ndata: END\n\n", string(out))
	assert.Equal(t, 1, tr.Malformed())

	require.NoError(t, tr.Close())
	assert.True(t, body.closed)
}

func TestTransformer_PullsOnDemand(t *testing.T) {
	var chunks []string
	for i := 0; i < 50; i++ {
		chunks = append(chunks, fmt.Sprintf("data: chunk-%d\n", i))
	}
	body := &chunkedBody{chunks: chunks}
	tr := NewTransformer(body, &upperConverter{}, discardLogger())

	buf := make([]byte, 8)
	n, err := tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, 1, body.reads, "only the first upstream chunk is pulled")

	// Drain the first frame; still no new upstream reads.
	for tr.off < len(tr.out) {
		_, err := tr.Read(buf)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, body.reads)

	_, err = tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, body.reads)
}

func TestTransformer_UpstreamErrorPropagates(t *testing.T) {
	boom := errors.New("stream reset")
	body := io.NopCloser(io.MultiReader(strings.NewReader("data: one\n"), errReader{boom}))
	tr := NewTransformer(body, &upperConverter{}, discardLogger())

	out, err := io.ReadAll(tr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "event: e\ndata: ONE\n\n", string(out))
}

func TestTransformer_EmptyUpstream(t *testing.T) {
	tr := NewTransformer(io.NopCloser(strings.NewReader("")), &upperConverter{}, discardLogger())
	out, err := io.ReadAll(tr)
	require.NoError(t, err)
	assert.Equal(t, "data: END\n\n", string(out))
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
