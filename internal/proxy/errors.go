package proxy

import (
	"encoding/json"
	"net/http"

	"github.com/mixaill76/byok_router/internal/provider"
)

// APIErrorResponse represents an OpenAI-compatible error response.
type APIErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError represents the error object inside an OpenAI-compatible error response.
type APIError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// AnthropicErrorResponse represents an Anthropic Messages API error response.
type AnthropicErrorResponse struct {
	Type  string         `json:"type"`
	Error AnthropicError `json:"error"`
}

type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorTypeForStatus maps HTTP status codes to OpenAI error type strings.
func errorTypeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusMethodNotAllowed:
		return "invalid_request_error"
	case http.StatusRequestTimeout:
		return "timeout_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusBadGateway:
		return "api_error"
	default:
		if statusCode >= 500 {
			return "server_error"
		}
		return "invalid_request_error"
	}
}

// anthropicErrorType maps HTTP status codes to Anthropic error type strings.
func anthropicErrorType(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "permission_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	case http.StatusServiceUnavailable:
		return "overloaded_error"
	default:
		if statusCode >= 500 {
			return "api_error"
		}
		return "invalid_request_error"
	}
}

// WriteJSONError writes an OpenAI-compatible JSON error response.
func WriteJSONError(w http.ResponseWriter, statusCode int, message, errorType string, param, code *string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := APIErrorResponse{
		Error: APIError{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteAnthropicError writes an Anthropic-compatible JSON error response.
func WriteAnthropicError(w http.ResponseWriter, statusCode int, message, errorType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	_ = json.NewEncoder(w).Encode(AnthropicErrorResponse{
		Type: "error",
		Error: AnthropicError{
			Type:    errorType,
			Message: message,
		},
	})
}

// WriteError writes an error in the envelope of the given wire format.
// Anything other than Anthropic gets the OpenAI envelope.
func WriteError(w http.ResponseWriter, envelope provider.Format, statusCode int, message string) {
	if envelope == provider.FormatAnthropic {
		WriteAnthropicError(w, statusCode, message, anthropicErrorType(statusCode))
		return
	}
	WriteJSONError(w, statusCode, message, errorTypeForStatus(statusCode), nil, nil)
}
