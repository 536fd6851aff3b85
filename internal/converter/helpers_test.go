package converter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustUnmarshal[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "unmarshal %s", data)
	return v
}

// feed runs payloads through c, failing the test on any conversion error,
// and appends the Finish frames.
func feed(t *testing.T, c StreamConverter, payloads ...string) []Frame {
	t.Helper()
	var out []Frame
	for _, p := range payloads {
		frames, err := c.ConvertEvent([]byte(p))
		require.NoError(t, err, "payload %s", p)
		out = append(out, frames...)
	}
	return append(out, c.Finish()...)
}

func eventNames(frames []Frame) []string {
	names := make([]string, 0, len(frames))
	for _, f := range frames {
		names = append(names, f.Event)
	}
	return names
}

func openAIChunk(content string, finishReason string) string {
	chunk := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{"content": content},
			"finish_reason": nil,
		}},
	}
	if finishReason != "" {
		chunk["choices"].([]map[string]any)[0]["finish_reason"] = finishReason
	}
	b, _ := json.Marshal(chunk)
	return string(b)
}

func joinText(parts []string) string {
	return strings.Join(parts, "")
}
