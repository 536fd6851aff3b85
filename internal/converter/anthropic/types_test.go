package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_StringOrBlocks(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`"hello"`), &c))
	assert.False(t, c.IsBlocks())
	assert.Equal(t, "hello", c.PlainText())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `"hello"`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`[
		{"type":"text","text":"a"},
		{"type":"image","source":{"type":"url","url":"https://example.com/x.png"}},
		{"type":"text","text":"b"}
	]`), &c))
	assert.True(t, c.IsBlocks())
	assert.Equal(t, "ab", c.PlainText())
	require.Len(t, c.Blocks, 3)
	assert.Equal(t, "https://example.com/x.png", c.Blocks[1].Source.URL)

	assert.Error(t, json.Unmarshal([]byte(`42`), &c))
}

func TestContent_EmptyArrayStaysBlocks(t *testing.T) {
	var c Content
	require.NoError(t, json.Unmarshal([]byte(`[]`), &c))
	assert.True(t, c.IsBlocks())

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))
}

func TestSystemPrompt(t *testing.T) {
	var req MessagesRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"model":"claude",
		"max_tokens":10,
		"system":[{"type":"text","text":"one"},{"type":"text","text":""},{"type":"text","text":"two"}],
		"messages":[]
	}`), &req))
	assert.Equal(t, "one\n\ntwo", req.System.PlainText())

	req.System = SystemPrompt{}
	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `"system"`)

	req.System = SystemPrompt{Text: "be brief"}
	out, err = json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"system":"be brief"`)
}

func TestDecodeStreamEvent(t *testing.T) {
	event, err := DecodeStreamEvent([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventContentBlockDelta, event.Type)

	_, err = DecodeStreamEvent([]byte(`{"index":0}`))
	assert.Error(t, err)

	_, err = DecodeStreamEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeStreamError(t *testing.T) {
	body, err := DecodeStreamError([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	require.NoError(t, err)
	assert.Equal(t, "overloaded_error", body.Type)
	assert.Equal(t, "Overloaded", body.Message)

	_, err = DecodeStreamError([]byte(`{"type":"error"}`))
	assert.Error(t, err)
}
