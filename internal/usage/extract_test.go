package usage

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Tokens
	}{
		{"openai body", `{"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`, Tokens{10, 5}},
		{"openai chunk without usage", `{"choices":[{"delta":{"content":"hi"}}],"usage":null}`, Tokens{}},
		{"anthropic body", `{"type":"message","usage":{"input_tokens":7,"output_tokens":3}}`, Tokens{7, 3}},
		{"anthropic message_start", `{"type":"message_start","message":{"id":"m","usage":{"input_tokens":12,"output_tokens":1}}}`, Tokens{12, 1}},
		{"anthropic message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":9}}`, Tokens{0, 9}},
		{"not json", `usage`, Tokens{}},
		{"no usage", `{"type":"ping"}`, Tokens{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract([]byte(tt.payload)))
		})
	}
}

func TestStreamMeter_AnthropicEvents(t *testing.T) {
	stream := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"m","usage":{"input_tokens":12,"output_tokens":1}}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}` + "\n\n" +
		"event: message_delta\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":9}}` + "\r\n\r\n"

	m := NewStreamMeter()
	// Feed in awkward fragments through a TeeReader as the router does.
	r := io.TeeReader(strings.NewReader(stream), m)
	buf := make([]byte, 7)
	for {
		_, err := r.Read(buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, Tokens{Input: 12, Output: 9}, m.Tokens())
}

func TestStreamMeter_OpenAIFinalUsageWithoutNewline(t *testing.T) {
	m := NewStreamMeter()
	_, _ = m.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n\n"))
	_, _ = m.Write([]byte(`data: {"choices":[],"usage":{"prompt_tokens":4,"completion_tokens":2,"total_tokens":6}}`))
	assert.Equal(t, Tokens{Input: 4, Output: 2}, m.Tokens())
}

func TestBodyMeter(t *testing.T) {
	m := NewBodyMeter(1024)
	body := `{"id":"x","usage":{"prompt_tokens":3,"completion_tokens":8,"total_tokens":11}}`
	_, _ = m.Write([]byte(body[:10]))
	_, _ = m.Write([]byte(body[10:]))
	assert.Equal(t, Tokens{Input: 3, Output: 8}, m.Tokens())

	small := NewBodyMeter(8)
	_, _ = small.Write([]byte(body))
	assert.Equal(t, Tokens{}, small.Tokens(), "oversized bodies are not metered")
}
