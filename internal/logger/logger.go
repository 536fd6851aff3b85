// Package logger builds the process-wide slog.Logger.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a text logger on stdout. level can be "debug", "info", "warn"
// or "error"; anything else means info. format "json" selects the JSON handler.
func New(level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// inlineMediaLimit applies to fields that usually carry base64 media or long
// prompt text.
const inlineMediaLimit = 50

// TruncateLongFields shortens long string values of a JSON chat request so it
// can be logged. Invalid JSON is returned unchanged.
func TruncateLongFields(body string, maxFieldLength int) string {
	var data any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return body
	}

	truncateValue(data, maxFieldLength)

	truncated, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return string(truncated)
}

func truncateValue(v any, maxLength int) {
	switch val := v.(type) {
	case map[string]any:
		for key, value := range val {
			str, isString := value.(string)
			switch {
			case !isString:
				truncateValue(value, maxLength)
			case key == "data" || (key == "url" && strings.HasPrefix(str, "data:")):
				if len(str) > inlineMediaLimit {
					val[key] = fmt.Sprintf("%s... [truncated %d chars]", str[:inlineMediaLimit], len(str)-inlineMediaLimit)
				}
			case len(str) > maxLength:
				val[key] = str[:maxLength] + "... [truncated]"
			}
		}
	case []any:
		for _, item := range val {
			truncateValue(item, maxLength)
		}
	}
}
