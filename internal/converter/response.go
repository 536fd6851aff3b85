package converter

import (
	"encoding/json"
	"fmt"

	"github.com/mixaill76/byok_router/internal/converter/anthropic"
	"github.com/mixaill76/byok_router/internal/converter/converterutil"
	"github.com/mixaill76/byok_router/internal/converter/openai"
	"github.com/mixaill76/byok_router/internal/provider"
)

// ConvertResponse translates a buffered (stream: false) response body from one
// format to the other. Same-format bodies are returned as is.
func ConvertResponse(body []byte, from, to provider.Format, model string) ([]byte, error) {
	switch {
	case from == to:
		return body, nil
	case from == provider.FormatOpenAI && to == provider.FormatAnthropic:
		return openAIResponseToAnthropic(body, model)
	case from == provider.FormatAnthropic && to == provider.FormatOpenAI:
		return anthropicResponseToOpenAI(body, model)
	default:
		return nil, fmt.Errorf("%w: %q to %q", ErrUnsupportedFormat, from, to)
	}
}

func openAIResponseToAnthropic(body []byte, model string) ([]byte, error) {
	var resp openai.ChatCompletion
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	choice := resp.Choices[0]

	out := anthropic.MessageResponse{
		ID:         converterutil.GenerateMessageID(),
		Type:       "message",
		Role:       "assistant",
		Content:    []anthropic.ContentBlock{},
		Model:      firstNonEmpty(resp.Model, model),
		StopReason: toAnthropicStopReason(choice.FinishReason),
	}
	if choice.Message.Content != "" {
		out.Content = append(out.Content, anthropic.ContentBlock{Type: "text", Text: choice.Message.Content})
	}
	if resp.Usage != nil {
		out.Usage = anthropic.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return json.Marshal(out)
}

func anthropicResponseToOpenAI(body []byte, model string) ([]byte, error) {
	var resp anthropic.MessageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.Type != "" && resp.Type != "message" {
		return nil, fmt.Errorf("%w: unexpected type %q", ErrInvalidResponse, resp.Type)
	}

	text := anthropic.Content{Blocks: resp.Content}.PlainText()
	out := openai.ChatCompletion{
		ID:      converterutil.GenerateChatID(),
		Object:  "chat.completion",
		Created: converterutil.GetCurrentTimestamp(),
		Model:   firstNonEmpty(resp.Model, model),
		Choices: []openai.Choice{{
			Index:        0,
			Message:      openai.ResponseMessage{Role: "assistant", Content: text},
			FinishReason: toOpenAIFinishReason(resp.StopReason),
		}},
		Usage: &openai.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
	return json.Marshal(out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
