package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, New("info", "text"))
	assert.NotNil(t, New("debug", "json"))
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", "text")

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "key=value")
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "debug", "JSON")

	logger.Debug("hello", "n", 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "DEBUG", entry["level"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"Warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestTruncateLongFields_InvalidJSON(t *testing.T) {
	assert.Equal(t, "not valid json", TruncateLongFields("not valid json", 100))
}

func TestTruncateLongFields_ChatRequest(t *testing.T) {
	longText := strings.Repeat("x", 300)
	image := strings.Repeat("A", 500)
	input := `{"model":"claude","messages":[` +
		`{"role":"user","content":[` +
		`{"type":"text","text":"` + longText + `"},` +
		`{"type":"image","source":{"type":"base64","media_type":"image/png","data":"` + image + `"}},` +
		`{"type":"image_url","image_url":{"url":"data:image/png;base64,` + image + `"}}` +
		`]}]}`

	result := TruncateLongFields(input, 100)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &data))
	assert.Equal(t, "claude", data["model"])

	parts := data["messages"].([]any)[0].(map[string]any)["content"].([]any)
	text := parts[0].(map[string]any)["text"].(string)
	assert.Equal(t, strings.Repeat("x", 100)+"... [truncated]", text)

	b64 := parts[1].(map[string]any)["source"].(map[string]any)["data"].(string)
	assert.Contains(t, b64, "[truncated 450 chars]")

	url := parts[2].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	assert.Contains(t, url, "truncated")
}

func TestTruncateLongFields_ShortValuesUntouched(t *testing.T) {
	input := `{"messages":[{"role":"user","content":"hi"}],"system":"short"}`
	result := TruncateLongFields(input, 100)
	assert.JSONEq(t, input, result)
}

func TestTruncateLongFields_RegularURLKept(t *testing.T) {
	url := "https://example.com/" + strings.Repeat("p", 60)
	input := `{"url":"` + url + `"}`
	assert.JSONEq(t, input, TruncateLongFields(input, 100))
}
