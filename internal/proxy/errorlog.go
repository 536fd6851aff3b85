package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mixaill76/byok_router/internal/logger"
	"github.com/mixaill76/byok_router/internal/security"
)

const (
	// errorLogFieldLimit caps each string field of a logged request body.
	errorLogFieldLimit = 500
	// errorLogBodyLimit caps how much of an error response is kept.
	errorLogBodyLimit = 64 * 1024
)

// ErrorLog appends one JSON line per failed (4xx/5xx) proxy request to a file.
type ErrorLog struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// OpenErrorLog opens (or creates) path for appending.
func OpenErrorLog(path string) (*ErrorLog, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	return &ErrorLog{file: file, now: time.Now}, nil
}

// Close closes the underlying file. Further writes fail.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// responseCapture records the status and, for error statuses only, the body
// written by a handler. Successful (possibly streaming) bodies are never
// buffered.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func newResponseCapture(w http.ResponseWriter) *responseCapture {
	return &responseCapture{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(p []byte) (int, error) {
	if isErrorStatus(rc.statusCode) && rc.body.Len() < errorLogBodyLimit {
		rc.body.Write(p[:min(len(p), errorLogBodyLimit-rc.body.Len())])
	}
	return rc.ResponseWriter.Write(p)
}

// Unwrap lets http.ResponseController reach the real writer for Flush and
// write deadlines.
func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// ErrorLogEntry represents a single error log entry
type ErrorLogEntry struct {
	Timestamp string       `json:"timestamp"`
	RequestID string       `json:"request_id,omitempty"`
	Path      string       `json:"path"`
	Method    string       `json:"method"`
	Status    int          `json:"status"`
	UserID    string       `json:"user_id,omitempty"`
	Request   RequestInfo  `json:"request"`
	Response  ResponseInfo `json:"response"`
}

type RequestInfo struct {
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type ResponseInfo struct {
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// Write appends an entry for req. Credentials in headers are masked and long
// request body fields are truncated.
func (l *ErrorLog) Write(req *http.Request, userID string, requestBody []byte, rc *responseCapture) error {
	entry := ErrorLogEntry{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		RequestID: rc.Header().Get("X-Request-Id"),
		Path:      req.URL.Path,
		Method:    req.Method,
		Status:    rc.statusCode,
		UserID:    userID,
		Request: RequestInfo{
			Headers: firstValues(security.MaskSensitiveHeaders(req.Header)),
			Body:    logger.TruncateLongFields(string(requestBody), errorLogFieldLimit),
		},
		Response: ResponseInfo{
			Headers: firstValues(rc.Header()),
			Body:    rc.body.String(),
		},
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	_, err = l.file.Write(append(entryJSON, '\n'))
	return err
}

func firstValues(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

// isErrorStatus checks if status code is an error (4xx or 5xx)
func isErrorStatus(statusCode int) bool {
	return statusCode >= 400
}
