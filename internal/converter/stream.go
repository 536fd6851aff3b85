package converter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mixaill76/byok_router/internal/converter/anthropic"
	"github.com/mixaill76/byok_router/internal/converter/converterutil"
	"github.com/mixaill76/byok_router/internal/converter/openai"
	"github.com/mixaill76/byok_router/internal/provider"
)

// Frame is one outgoing SSE frame. Event is empty for unnamed (OpenAI) frames.
type Frame struct {
	Event string
	Data  []byte
}

// AppendTo appends the wire encoding of f to dst.
func (f Frame) AppendTo(dst []byte) []byte {
	if f.Event != "" {
		dst = append(dst, "event: "...)
		dst = append(dst, f.Event...)
		dst = append(dst, '\n')
	}
	dst = append(dst, "data: "...)
	dst = append(dst, f.Data...)
	return append(dst, '\n', '\n')
}

func (f Frame) Encode() []byte {
	return f.AppendTo(make([]byte, 0, len(f.Event)+len(f.Data)+16))
}

// StreamConverter translates one upstream stream, one data payload at a time.
// Implementations keep per-stream state and are not safe for concurrent use.
type StreamConverter interface {
	// ConvertEvent returns the frames produced by one upstream data payload.
	// A payload that cannot be decoded yields an error wrapping ErrMalformedEvent;
	// the stream may continue after it.
	ConvertEvent(data []byte) ([]Frame, error)
	// Finish returns the frames needed to terminate the output when the
	// upstream ends without a terminal event.
	Finish() []Frame
}

// NewStreamConverter returns a converter from one streaming format to the other.
// Same-format streams are passed through and have no converter.
func NewStreamConverter(from, to provider.Format, model string) (StreamConverter, error) {
	switch {
	case from == provider.FormatOpenAI && to == provider.FormatAnthropic:
		return &openAIToAnthropicStream{model: model}, nil
	case from == provider.FormatAnthropic && to == provider.FormatOpenAI:
		return &anthropicToOpenAIStream{
			model:   model,
			id:      converterutil.GenerateChatID(),
			created: converterutil.GetCurrentTimestamp(),
		}, nil
	default:
		return nil, fmt.Errorf("%w: stream %q to %q", ErrUnsupportedFormat, from, to)
	}
}

func jsonFrame(event string, v any) Frame {
	data, _ := json.Marshal(v)
	return Frame{Event: event, Data: data}
}

// ---------------------------------------------------------------------------
// OpenAI chunks -> Anthropic events
// ---------------------------------------------------------------------------

// openAIToAnthropicStream closes the message on the first finish_reason.
// OpenAI sends include_usage totals in a later chunk with no choices, which
// arrives after message_stop and is not forwarded; message_delta then reports
// only usage carried on the finish chunk itself. Usage logging reads the
// upstream bytes and still sees those totals.
type openAIToAnthropicStream struct {
	model        string
	started      bool
	finished     bool
	inputTokens  int
	outputTokens int
}

type openAIStreamPayload struct {
	openai.ChatCompletionChunk
	Error *openai.ErrorBody `json:"error,omitempty"`
}

func (s *openAIToAnthropicStream) ConvertEvent(data []byte) ([]Frame, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte(openai.Done)) {
		return s.close(anthropic.StopEndTurn), nil
	}
	if s.finished {
		return nil, nil
	}

	var chunk openAIStreamPayload
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if chunk.Error != nil {
		s.finished = true
		return []Frame{jsonFrame(anthropic.EventError, anthropic.ErrorEnvelope{
			Type:  "error",
			Error: anthropic.ErrorBody{Type: firstNonEmpty(chunk.Error.Type, "api_error"), Message: chunk.Error.Message},
		})}, nil
	}
	if chunk.Usage != nil {
		s.inputTokens = chunk.Usage.PromptTokens
		s.outputTokens = chunk.Usage.CompletionTokens
	}
	if len(chunk.Choices) == 0 {
		return nil, nil
	}

	choice := chunk.Choices[0]
	var frames []Frame
	if !s.started {
		frames = append(frames, s.start()...)
	}
	if choice.Delta.Content != "" {
		frames = append(frames, jsonFrame(anthropic.EventContentBlockDelta, anthropic.ContentBlockDeltaEvent{
			Type:  anthropic.EventContentBlockDelta,
			Index: 0,
			Delta: anthropic.TextDelta{Type: "text_delta", Text: choice.Delta.Content},
		}))
	}
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		frames = append(frames, s.close(toAnthropicStopReason(*choice.FinishReason))...)
	}
	return frames, nil
}

func (s *openAIToAnthropicStream) Finish() []Frame {
	return s.close(anthropic.StopEndTurn)
}

func (s *openAIToAnthropicStream) start() []Frame {
	s.started = true
	return []Frame{
		jsonFrame(anthropic.EventMessageStart, anthropic.MessageStartEvent{
			Type: anthropic.EventMessageStart,
			Message: anthropic.StreamMessage{
				ID:      converterutil.GenerateMessageID(),
				Type:    "message",
				Role:    "assistant",
				Model:   s.model,
				Content: []anthropic.TextBlock{},
				Usage:   anthropic.Usage{InputTokens: s.inputTokens},
			},
		}),
		jsonFrame(anthropic.EventContentBlockStart, anthropic.ContentBlockStartEvent{
			Type:         anthropic.EventContentBlockStart,
			Index:        0,
			ContentBlock: anthropic.TextBlock{Type: "text"},
		}),
	}
}

// close terminates the message once; later calls return nothing.
func (s *openAIToAnthropicStream) close(stopReason string) []Frame {
	if s.finished {
		return nil
	}
	var frames []Frame
	if !s.started {
		frames = s.start()
	}
	s.finished = true
	return append(frames,
		jsonFrame(anthropic.EventContentBlockStop, anthropic.ContentBlockStopEvent{
			Type:  anthropic.EventContentBlockStop,
			Index: 0,
		}),
		jsonFrame(anthropic.EventMessageDelta, anthropic.MessageDeltaEvent{
			Type:  anthropic.EventMessageDelta,
			Delta: anthropic.MessageDelta{StopReason: stopReason},
			Usage: anthropic.DeltaUsage{OutputTokens: s.outputTokens},
		}),
		jsonFrame(anthropic.EventMessageStop, anthropic.MessageStopEvent{Type: anthropic.EventMessageStop}),
	)
}

// ---------------------------------------------------------------------------
// Anthropic events -> OpenAI chunks
// ---------------------------------------------------------------------------

type anthropicToOpenAIStream struct {
	model        string
	id           string
	created      int64
	roleSent     bool
	finished     bool
	stopReason   string
	inputTokens  int
	outputTokens int
}

func (s *anthropicToOpenAIStream) ConvertEvent(data []byte) ([]Frame, error) {
	if s.finished {
		return nil, nil
	}
	event, err := anthropic.DecodeStreamEvent(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch event.Type {
	case anthropic.EventMessageStart:
		if event.Message.ID != "" {
			s.id = event.Message.ID
		}
		s.inputTokens = int(event.Message.Usage.InputTokens)
		return nil, nil

	case anthropic.EventContentBlockDelta:
		if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
			return nil, nil
		}
		delta := openai.Delta{Content: event.Delta.Text}
		if !s.roleSent {
			delta.Role = "assistant"
			s.roleSent = true
		}
		return []Frame{s.chunk(delta, nil, nil)}, nil

	case anthropic.EventMessageDelta:
		if event.Delta.StopReason != "" {
			s.stopReason = string(event.Delta.StopReason)
		}
		if event.Usage.OutputTokens > 0 {
			s.outputTokens = int(event.Usage.OutputTokens)
		}
		if event.Usage.InputTokens > 0 {
			s.inputTokens = int(event.Usage.InputTokens)
		}
		return nil, nil

	case anthropic.EventMessageStop:
		return s.close(), nil

	case anthropic.EventError:
		body, err := anthropic.DecodeStreamError(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		s.finished = true
		return []Frame{jsonFrame("", openai.ErrorEnvelope{
			Error: openai.ErrorBody{Message: body.Message, Type: body.Type},
		})}, nil
	}
	// ping, content_block_start, content_block_stop and unknown events
	return nil, nil
}

func (s *anthropicToOpenAIStream) Finish() []Frame {
	return s.close()
}

func (s *anthropicToOpenAIStream) close() []Frame {
	if s.finished {
		return nil
	}
	s.finished = true
	finishReason := toOpenAIFinishReason(s.stopReason)
	usage := &openai.Usage{
		PromptTokens:     s.inputTokens,
		CompletionTokens: s.outputTokens,
		TotalTokens:      s.inputTokens + s.outputTokens,
	}
	return []Frame{
		s.chunk(openai.Delta{}, &finishReason, usage),
		{Data: []byte(openai.Done)},
	}
}

func (s *anthropicToOpenAIStream) chunk(delta openai.Delta, finishReason *string, usage *openai.Usage) Frame {
	return jsonFrame("", openai.ChatCompletionChunk{
		ID:      s.id,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []openai.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
		Usage:   usage,
	})
}
