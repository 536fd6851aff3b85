// Package converter translates chat requests and responses between the
// OpenAI chat/completions and Anthropic Messages wire formats. It performs no I/O.
package converter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/mixaill76/byok_router/internal/converter/anthropic"
	"github.com/mixaill76/byok_router/internal/converter/openai"
	"github.com/mixaill76/byok_router/internal/provider"
)

// DefaultMaxTokens is used when an OpenAI request without max_tokens is sent
// to an Anthropic provider, which requires the field.
const DefaultMaxTokens = 4096

var (
	ErrInvalidRequest    = errors.New("invalid request body")
	ErrInvalidResponse   = errors.New("invalid upstream response")
	ErrMalformedEvent    = errors.New("malformed stream event")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// Request is a parsed chat request in exactly one wire format.
// Format selects which of OpenAI or Anthropic is set.
type Request struct {
	Format    provider.Format
	OpenAI    *openai.ChatRequest
	Anthropic *anthropic.MessagesRequest
	// Raw is the caller's body, kept only while the request stays in its own
	// format. Marshal sends it in place of the typed view.
	Raw json.RawMessage
}

// ParseRequest decodes body as a request in the given format. The body must be
// a JSON object with a non-empty messages array.
func ParseRequest(body []byte, format provider.Format) (*Request, error) {
	switch format {
	case provider.FormatOpenAI:
		var r openai.ChatRequest
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if len(r.Messages) == 0 {
			return nil, fmt.Errorf("%w: messages must be a non-empty array", ErrInvalidRequest)
		}
		return &Request{Format: format, OpenAI: &r, Raw: bytes.Clone(body)}, nil
	case provider.FormatAnthropic:
		var r anthropic.MessagesRequest
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		if len(r.Messages) == 0 {
			return nil, fmt.Errorf("%w: messages must be a non-empty array", ErrInvalidRequest)
		}
		return &Request{Format: format, Anthropic: &r, Raw: bytes.Clone(body)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Marshal returns the wire body of the request.
func (r *Request) Marshal() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	switch r.Format {
	case provider.FormatOpenAI:
		return json.Marshal(r.OpenAI)
	case provider.FormatAnthropic:
		return json.Marshal(r.Anthropic)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.Format)
	}
}

func (r *Request) Model() string {
	switch r.Format {
	case provider.FormatOpenAI:
		return r.OpenAI.Model
	case provider.FormatAnthropic:
		return r.Anthropic.Model
	}
	return ""
}

// SetModel sets the model on the typed view and on Raw. If Raw cannot be
// patched it is dropped and the typed view is sent instead.
func (r *Request) SetModel(model string) {
	switch r.Format {
	case provider.FormatOpenAI:
		r.OpenAI.Model = model
	case provider.FormatAnthropic:
		r.Anthropic.Model = model
	}
	if len(r.Raw) == 0 {
		return
	}
	raw, err := sjson.SetBytes(r.Raw, "model", model)
	if err != nil {
		r.Raw = nil
		return
	}
	r.Raw = raw
}

// Streaming reports whether the caller asked for an SSE response.
func (r *Request) Streaming() bool {
	switch r.Format {
	case provider.FormatOpenAI:
		return r.OpenAI.Stream
	case provider.FormatAnthropic:
		return r.Anthropic.Stream
	}
	return false
}

// ConvertRequest returns a copy of req in the target format. The source request
// is never modified. When the request carries no model, fallbackModel is used.
// Within one format the caller's body is forwarded unchanged apart from that
// model; fields without a counterpart are dropped only when remapping.
func ConvertRequest(req *Request, to provider.Format, fallbackModel string) (*Request, error) {
	var out *Request
	switch {
	case req.Format == to && to == provider.FormatOpenAI:
		cp := *req.OpenAI
		out = &Request{Format: to, OpenAI: &cp, Raw: req.Raw}
	case req.Format == to && to == provider.FormatAnthropic:
		cp := *req.Anthropic
		out = &Request{Format: to, Anthropic: &cp, Raw: req.Raw}
	case req.Format == provider.FormatOpenAI && to == provider.FormatAnthropic:
		out = &Request{Format: to, Anthropic: openAIToAnthropic(req.OpenAI)}
	case req.Format == provider.FormatAnthropic && to == provider.FormatOpenAI:
		out = &Request{Format: to, OpenAI: anthropicToOpenAI(req.Anthropic)}
	default:
		return nil, fmt.Errorf("%w: %q to %q", ErrUnsupportedFormat, req.Format, to)
	}
	if out.Model() == "" {
		out.SetModel(fallbackModel)
	}
	return out, nil
}

func openAIToAnthropic(r *openai.ChatRequest) *anthropic.MessagesRequest {
	out := &anthropic.MessagesRequest{
		Model:         r.Model,
		MaxTokens:     DefaultMaxTokens,
		Temperature:   clampTemperature(r.Temperature),
		TopP:          r.TopP,
		StopSequences: []string(r.Stop),
		Stream:        r.Stream,
		Messages:      make([]anthropic.Message, 0, len(r.Messages)),
	}
	switch {
	case r.MaxTokens != nil && *r.MaxTokens > 0:
		out.MaxTokens = *r.MaxTokens
	case r.MaxCompletionTokens != nil && *r.MaxCompletionTokens > 0:
		out.MaxTokens = *r.MaxCompletionTokens
	}
	if r.User != "" {
		out.Metadata = &anthropic.Metadata{UserID: r.User}
	}

	var system []string
	for _, m := range r.Messages {
		switch m.Role {
		case "system", "developer":
			if text := m.Content.PlainText(); text != "" {
				system = append(system, text)
			}
		case "assistant":
			out.Messages = append(out.Messages, anthropic.Message{Role: "assistant", Content: toAnthropicContent(m.Content)})
		default:
			out.Messages = append(out.Messages, anthropic.Message{Role: "user", Content: toAnthropicContent(m.Content)})
		}
	}
	if len(system) > 0 {
		out.System = anthropic.SystemPrompt{Text: strings.Join(system, "\n\n")}
	}
	return out
}

func anthropicToOpenAI(r *anthropic.MessagesRequest) *openai.ChatRequest {
	out := &openai.ChatRequest{
		Model:       r.Model,
		Temperature: r.Temperature,
		TopP:        r.TopP,
		Stop:        openai.Stop(r.StopSequences),
		Stream:      r.Stream,
		Messages:    make([]openai.Message, 0, len(r.Messages)+1),
	}
	if r.MaxTokens > 0 {
		maxTokens := r.MaxTokens
		out.MaxTokens = &maxTokens
	}
	if r.Stream {
		out.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	if r.Metadata != nil {
		out.User = r.Metadata.UserID
	}
	if system := r.System.PlainText(); system != "" {
		out.Messages = append(out.Messages, openai.Message{Role: "system", Content: openai.TextContent(system)})
	}
	for _, m := range r.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		out.Messages = append(out.Messages, openai.Message{Role: role, Content: toOpenAIContent(m.Content)})
	}
	return out
}

// Anthropic accepts temperatures in [0, 1]; OpenAI allows up to 2.
func clampTemperature(t *float64) *float64 {
	if t == nil || *t <= 1 {
		return t
	}
	one := 1.0
	return &one
}
