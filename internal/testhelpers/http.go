package testhelpers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// APIErrorResponse mirrors the OpenAI-style error envelope for test assertions.
type APIErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// AnthropicErrorResponse mirrors the Anthropic-style error envelope.
type AnthropicErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// AssertJSONErrorResponse decodes an OpenAI-style error from the recorder and
// verifies the HTTP status, error type, and error message.
func AssertJSONErrorResponse(t *testing.T, recorder *httptest.ResponseRecorder, expectedStatus int, expectedType, expectedMsg string) {
	t.Helper()

	assert.Equal(t, expectedStatus, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var resp APIErrorResponse
	err := json.NewDecoder(recorder.Body).Decode(&resp)
	require.NoError(t, err, "failed to decode JSON error response")

	assert.Equal(t, expectedType, resp.Error.Type)
	assert.Equal(t, expectedMsg, resp.Error.Message)
}

// AssertAnthropicErrorResponse is AssertJSONErrorResponse for the Anthropic envelope.
func AssertAnthropicErrorResponse(t *testing.T, recorder *httptest.ResponseRecorder, expectedStatus int, expectedType, expectedMsg string) {
	t.Helper()

	assert.Equal(t, expectedStatus, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var resp AnthropicErrorResponse
	err := json.NewDecoder(recorder.Body).Decode(&resp)
	require.NoError(t, err, "failed to decode JSON error response")

	assert.Equal(t, "error", resp.Type)
	assert.Equal(t, expectedType, resp.Error.Type)
	assert.Equal(t, expectedMsg, resp.Error.Message)
}

// NewTestRequest creates an *http.Request with a JSON body for testing.
func NewTestRequest(method, path string, body any) *http.Request {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewTestRequestWithHeaders creates an *http.Request with a JSON body and custom headers.
func NewTestRequestWithHeaders(method, path string, body any, headers map[string]string) *http.Request {
	req := NewTestRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// SSEEvent is one frame written by WriteSSE. Event may be empty.
type SSEEvent struct {
	Event string
	Data  string
}

// WriteSSE writes events as a text/event-stream response, flushing after each one.
func WriteSSE(w http.ResponseWriter, events ...SSEEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, e := range events {
		if e.Event != "" {
			_, _ = fmt.Fprintf(w, "event: %s\n", e.Event)
		}
		_, _ = fmt.Fprintf(w, "data: %s\n\n", e.Data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
