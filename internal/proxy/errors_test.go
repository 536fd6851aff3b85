package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mixaill76/byok_router/internal/provider"
	"github.com/mixaill76/byok_router/internal/testhelpers"
)

func TestWriteJSONError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantType   string
	}{
		{"400", http.StatusBadRequest, "invalid_request_error"},
		{"401", http.StatusUnauthorized, "authentication_error"},
		{"403", http.StatusForbidden, "permission_denied"},
		{"404", http.StatusNotFound, "not_found_error"},
		{"405", http.StatusMethodNotAllowed, "invalid_request_error"},
		{"408", http.StatusRequestTimeout, "timeout_error"},
		{"413", http.StatusRequestEntityTooLarge, "invalid_request_error"},
		{"429", http.StatusTooManyRequests, "rate_limit_error"},
		{"500", http.StatusInternalServerError, "server_error"},
		{"502", http.StatusBadGateway, "api_error"},
		{"503_5xx_default", http.StatusServiceUnavailable, "server_error"},
		{"299_default", 299, "invalid_request_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			WriteJSONError(recorder, tt.statusCode, "test message", errorTypeForStatus(tt.statusCode), nil, nil)
			testhelpers.AssertJSONErrorResponse(t, recorder, tt.statusCode, tt.wantType, "test message")
		})
	}
}

func TestWriteAnthropicError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantType   string
	}{
		{"400", http.StatusBadRequest, "invalid_request_error"},
		{"401", http.StatusUnauthorized, "authentication_error"},
		{"403", http.StatusForbidden, "permission_error"},
		{"405", http.StatusMethodNotAllowed, "invalid_request_error"},
		{"413", http.StatusRequestEntityTooLarge, "request_too_large"},
		{"429", http.StatusTooManyRequests, "rate_limit_error"},
		{"502", http.StatusBadGateway, "api_error"},
		{"503", http.StatusServiceUnavailable, "overloaded_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			WriteAnthropicError(recorder, tt.statusCode, "test message", anthropicErrorType(tt.statusCode))
			testhelpers.AssertAnthropicErrorResponse(t, recorder, tt.statusCode, tt.wantType, "test message")
		})
	}
}

func TestWriteError_PicksEnvelope(t *testing.T) {
	recorder := httptest.NewRecorder()
	WriteError(recorder, provider.FormatAnthropic, http.StatusBadGateway, "all providers failed")
	testhelpers.AssertAnthropicErrorResponse(t, recorder, http.StatusBadGateway, "api_error", "all providers failed")

	recorder = httptest.NewRecorder()
	WriteError(recorder, provider.FormatOpenAI, http.StatusBadGateway, "all providers failed")
	testhelpers.AssertJSONErrorResponse(t, recorder, http.StatusBadGateway, "api_error", "all providers failed")
}
