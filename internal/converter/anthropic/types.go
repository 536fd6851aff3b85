// Package anthropic holds the Anthropic Messages API wire types.
package anthropic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// MessagesRequest represents a request to the Anthropic Messages API.
type MessagesRequest struct {
	Model         string       `json:"model"`
	Messages      []Message    `json:"messages"`
	System        SystemPrompt `json:"system,omitzero"`
	MaxTokens     int          `json:"max_tokens"`
	Temperature   *float64     `json:"temperature,omitempty"`
	TopP          *float64     `json:"top_p,omitempty"`
	TopK          *int         `json:"top_k,omitempty"`
	StopSequences []string     `json:"stop_sequences,omitempty"`
	Stream        bool         `json:"stream,omitempty"`
	Metadata      *Metadata    `json:"metadata,omitempty"`
}

// Message is a single conversation turn ("user" or "assistant").
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

type Metadata struct {
	UserID string `json:"user_id,omitempty"`
}

// ContentBlock is used in both requests and responses.
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *MediaSource `json:"source,omitempty"`
}

// MediaSource describes the source of an image block.
type MediaSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Content is either a plain string or an array of content blocks.
type Content struct {
	Text   string
	Blocks []ContentBlock
}

func TextContent(s string) Content {
	return Content{Text: s}
}

func (c Content) IsBlocks() bool {
	return c.Blocks != nil
}

// PlainText concatenates the text blocks.
func (c Content) PlainText() string {
	if !c.IsBlocks() {
		return c.Text
	}
	var sb strings.Builder
	for _, b := range c.Blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsBlocks() {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	blocks, text, err := decodeStringOrBlocks(data)
	if err != nil {
		return err
	}
	*c = Content{Text: text, Blocks: blocks}
	return nil
}

// SystemPrompt is the top-level system field: a string or a list of text blocks.
type SystemPrompt struct {
	Text   string
	Blocks []ContentBlock
}

func (s SystemPrompt) IsZero() bool {
	return s.Text == "" && len(s.Blocks) == 0
}

// PlainText joins text blocks with blank lines.
func (s SystemPrompt) PlainText() string {
	if s.Blocks == nil {
		return s.Text
	}
	parts := make([]string, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.Blocks != nil {
		return json.Marshal(s.Blocks)
	}
	return json.Marshal(s.Text)
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	blocks, text, err := decodeStringOrBlocks(data)
	if err != nil {
		return err
	}
	*s = SystemPrompt{Text: text, Blocks: blocks}
	return nil
}

func decodeStringOrBlocks(data []byte) ([]ContentBlock, string, error) {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		return nil, "", nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, "", err
		}
		return nil, s, nil
	case data[0] == '[':
		blocks := []ContentBlock{}
		if err := json.Unmarshal(data, &blocks); err != nil {
			return nil, "", err
		}
		return blocks, "", nil
	default:
		return nil, "", fmt.Errorf("anthropic: content must be a string or an array, got %s", data[:1])
	}
}

// ---------------------------------------------------------------------------
// Response types
// ---------------------------------------------------------------------------

// MessageResponse is a non-streaming Messages API response.
type MessageResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ErrorEnvelope is the Anthropic error body; it is also the payload of the
// "error" stream event.
type ErrorEnvelope struct {
	Type  string    `json:"type"`
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Streaming output types
// ---------------------------------------------------------------------------

// Stream event names.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

type MessageStartEvent struct {
	Type    string        `json:"type"`
	Message StreamMessage `json:"message"`
}

// StreamMessage is the message skeleton carried by message_start.
type StreamMessage struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Role         string      `json:"role"`
	Model        string      `json:"model"`
	Content      []TextBlock `json:"content"`
	StopReason   *string     `json:"stop_reason"`
	StopSequence *string     `json:"stop_sequence"`
	Usage        Usage       `json:"usage"`
}

// TextBlock always serializes its text, even when empty.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ContentBlockStartEvent struct {
	Type         string    `json:"type"`
	Index        int       `json:"index"`
	ContentBlock TextBlock `json:"content_block"`
}

type ContentBlockDeltaEvent struct {
	Type  string    `json:"type"`
	Index int       `json:"index"`
	Delta TextDelta `json:"delta"`
}

type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage DeltaUsage   `json:"usage"`
}

type MessageDelta struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type DeltaUsage struct {
	OutputTokens int `json:"output_tokens"`
}

type MessageStopEvent struct {
	Type string `json:"type"`
}
