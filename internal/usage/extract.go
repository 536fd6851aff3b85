package usage

import (
	"bytes"
	"encoding/json"
)

// Tokens is the token usage reported by an upstream.
type Tokens struct {
	Input  int
	Output int
}

type usageFields struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
}

type usagePayload struct {
	Usage   *usageFields `json:"usage"`
	Message *struct {
		Usage *usageFields `json:"usage"`
	} `json:"message"`
}

var usageKey = []byte(`"usage"`)

// Extract pulls token usage out of an OpenAI or Anthropic JSON payload: a full
// response body or a single stream event. Unknown payloads yield zero Tokens.
func Extract(payload []byte) Tokens {
	if !bytes.Contains(payload, usageKey) {
		return Tokens{}
	}
	var p usagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Tokens{}
	}
	var t Tokens
	for _, u := range []*usageFields{messageUsage(p), p.Usage} {
		if u == nil {
			continue
		}
		t.merge(Tokens{
			Input:  u.PromptTokens + u.InputTokens,
			Output: u.CompletionTokens + u.OutputTokens,
		})
	}
	return t
}

func messageUsage(p usagePayload) *usageFields {
	if p.Message == nil {
		return nil
	}
	return p.Message.Usage
}

// merge keeps the latest non-zero count per field. Stream events report
// cumulative counts, so the last one wins.
func (t *Tokens) merge(o Tokens) {
	if o.Input > 0 {
		t.Input = o.Input
	}
	if o.Output > 0 {
		t.Output = o.Output
	}
}

// Meter observes response bytes as they flow to the client and keeps the
// reported token usage. It implements io.Writer so it can sit behind an
// io.TeeReader.
type Meter struct {
	stream   bool
	limit    int
	buf      []byte
	overflow bool
	tokens   Tokens
}

// NewStreamMeter meters an SSE body line by line.
func NewStreamMeter() *Meter {
	return &Meter{stream: true, limit: 1 << 20}
}

// NewBodyMeter meters a buffered JSON body of at most limit bytes; larger
// bodies are not metered.
func NewBodyMeter(limit int) *Meter {
	return &Meter{limit: limit}
}

func (m *Meter) Write(p []byte) (int, error) {
	if m.overflow && !m.stream {
		return len(p), nil
	}
	if !m.stream {
		if len(m.buf)+len(p) > m.limit {
			m.overflow = true
			m.buf = nil
			return len(p), nil
		}
		m.buf = append(m.buf, p...)
		return len(p), nil
	}

	m.buf = append(m.buf, p...)
	rest := m.buf
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}
		m.line(rest[:i])
		rest = rest[i+1:]
	}
	if len(rest) > m.limit {
		rest = nil
	}
	m.buf = append(m.buf[:0], rest...)
	return len(p), nil
}

func (m *Meter) line(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return
	}
	m.tokens.merge(Extract(bytes.TrimSpace(data)))
}

// Tokens returns the usage observed so far.
func (m *Meter) Tokens() Tokens {
	t := m.tokens
	if m.stream {
		if len(m.buf) > 0 {
			if data, ok := bytes.CutPrefix(m.buf, []byte("data:")); ok {
				t.merge(Extract(bytes.TrimSpace(data)))
			}
		}
		return t
	}
	if !m.overflow {
		t.merge(Extract(m.buf))
	}
	return t
}
