package converter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mixaill76/byok_router/internal/converter/anthropic"
	"github.com/mixaill76/byok_router/internal/converter/openai"
	"github.com/mixaill76/byok_router/internal/provider"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		format  provider.Format
		wantErr error
	}{
		{"openai ok", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`, provider.FormatOpenAI, nil},
		{"anthropic ok", `{"model":"claude-3","max_tokens":10,"messages":[{"role":"user","content":"hi"}]}`, provider.FormatAnthropic, nil},
		{"invalid json", `{"model":`, provider.FormatOpenAI, ErrInvalidRequest},
		{"not an object", `[1,2,3]`, provider.FormatOpenAI, ErrInvalidRequest},
		{"missing messages", `{"model":"gpt-4o"}`, provider.FormatOpenAI, ErrInvalidRequest},
		{"empty messages", `{"model":"claude-3","messages":[]}`, provider.FormatAnthropic, ErrInvalidRequest},
		{"messages not array", `{"model":"gpt-4o","messages":"hi"}`, provider.FormatOpenAI, ErrInvalidRequest},
		{"auto is not a wire format", `{"messages":[{"role":"user","content":"hi"}]}`, provider.FormatAuto, ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.body), tt.format)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, req)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.format, req.Format)
		})
	}
}

func TestConvertRequest_OpenAIToAnthropic(t *testing.T) {
	body := `{
		"model": "",
		"temperature": 1.5,
		"top_p": 0.9,
		"stop": "END",
		"stream": true,
		"user": "u-1",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "developer", "content": "answer in French"},
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "bonjour"},
			{"role": "user", "content": [
				{"type": "text", "text": "what is this?"},
				{"type": "image_url", "image_url": {"url": "data:image/png;base64,AAAA"}},
				{"type": "image_url", "image_url": {"url": "https://example.com/cat.jpg"}}
			]}
		]
	}`
	req, err := ParseRequest([]byte(body), provider.FormatOpenAI)
	require.NoError(t, err)

	out, err := ConvertRequest(req, provider.FormatAnthropic, "claude-sonnet-4")
	require.NoError(t, err)
	require.Equal(t, provider.FormatAnthropic, out.Format)
	a := out.Anthropic

	assert.Equal(t, "claude-sonnet-4", a.Model)
	assert.Equal(t, DefaultMaxTokens, a.MaxTokens)
	assert.Equal(t, "be brief\n\nanswer in French", a.System.PlainText())
	require.NotNil(t, a.Temperature)
	assert.Equal(t, 1.0, *a.Temperature)
	assert.Equal(t, []string{"END"}, a.StopSequences)
	assert.True(t, a.Stream)
	require.NotNil(t, a.Metadata)
	assert.Equal(t, "u-1", a.Metadata.UserID)

	require.Len(t, a.Messages, 3)
	assert.Equal(t, "user", a.Messages[0].Role)
	assert.False(t, a.Messages[0].Content.IsBlocks())
	assert.Equal(t, "hi", a.Messages[0].Content.Text)
	assert.Equal(t, "assistant", a.Messages[1].Role)

	blocks := a.Messages[2].Content.Blocks
	require.Len(t, blocks, 3)
	assert.Equal(t, "text", blocks[0].Type)
	assert.Equal(t, "image", blocks[1].Type)
	assert.Equal(t, &anthropic.MediaSource{Type: "base64", MediaType: "image/png", Data: "AAAA"}, blocks[1].Source)
	assert.Equal(t, &anthropic.MediaSource{Type: "url", URL: "https://example.com/cat.jpg"}, blocks[2].Source)

	// Source request untouched.
	assert.Equal(t, "", req.Model())

	wire, err := out.Marshal()
	require.NoError(t, err)
	decoded := mustUnmarshal[map[string]any](t, wire)
	assert.Equal(t, "be brief\n\nanswer in French", decoded["system"])
	assert.EqualValues(t, DefaultMaxTokens, decoded["max_tokens"])
}

func TestConvertRequest_MaxTokens(t *testing.T) {
	req, err := ParseRequest([]byte(`{"model":"m","max_completion_tokens":256,"messages":[{"role":"user","content":"x"}]}`), provider.FormatOpenAI)
	require.NoError(t, err)
	out, err := ConvertRequest(req, provider.FormatAnthropic, "")
	require.NoError(t, err)
	assert.Equal(t, 256, out.Anthropic.MaxTokens)

	req, err = ParseRequest([]byte(`{"model":"m","max_tokens":64,"max_completion_tokens":256,"messages":[{"role":"user","content":"x"}]}`), provider.FormatOpenAI)
	require.NoError(t, err)
	out, err = ConvertRequest(req, provider.FormatAnthropic, "")
	require.NoError(t, err)
	assert.Equal(t, 64, out.Anthropic.MaxTokens)
}

func TestConvertRequest_AnthropicToOpenAI(t *testing.T) {
	body := `{
		"model": "claude-3-5-sonnet",
		"max_tokens": 512,
		"system": [{"type": "text", "text": "rule one"}, {"type": "text", "text": "rule two"}],
		"stop_sequences": ["\n\nHuman:"],
		"top_k": 5,
		"stream": true,
		"messages": [
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": [{"type": "text", "text": "hi there"}]},
			{"role": "user", "content": [
				{"type": "image", "source": {"type": "base64", "media_type": "image/jpeg", "data": "BBBB"}},
				{"type": "text", "text": "describe"}
			]}
		]
	}`
	req, err := ParseRequest([]byte(body), provider.FormatAnthropic)
	require.NoError(t, err)

	out, err := ConvertRequest(req, provider.FormatOpenAI, "gpt-4o")
	require.NoError(t, err)
	o := out.OpenAI

	assert.Equal(t, "claude-3-5-sonnet", o.Model)
	require.NotNil(t, o.MaxTokens)
	assert.Equal(t, 512, *o.MaxTokens)
	assert.Equal(t, openai.Stop{"\n\nHuman:"}, o.Stop)
	assert.True(t, o.Stream)
	require.NotNil(t, o.StreamOptions)
	assert.True(t, o.StreamOptions.IncludeUsage)

	require.Len(t, o.Messages, 4)
	assert.Equal(t, "system", o.Messages[0].Role)
	assert.Equal(t, "rule one\n\nrule two", o.Messages[0].Content.Text)
	assert.Equal(t, "hello", o.Messages[1].Content.Text)
	assert.True(t, o.Messages[2].Content.IsParts())
	assert.Equal(t, "hi there", o.Messages[2].Content.PlainText())

	parts := o.Messages[3].Content.Parts
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[0].Type)
	assert.Equal(t, "data:image/jpeg;base64,BBBB", parts[0].ImageURL.URL)
	assert.Equal(t, "describe", parts[1].Text)

	wire, err := out.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(wire), "top_k")
}

func TestConvertRequest_SameFormatCopies(t *testing.T) {
	req, err := ParseRequest([]byte(`{"messages":[{"role":"user","content":"x"}]}`), provider.FormatOpenAI)
	require.NoError(t, err)

	first, err := ConvertRequest(req, provider.FormatOpenAI, "model-a")
	require.NoError(t, err)
	second, err := ConvertRequest(req, provider.FormatOpenAI, "model-b")
	require.NoError(t, err)

	assert.Equal(t, "model-a", first.Model())
	assert.Equal(t, "model-b", second.Model())
	assert.Equal(t, "", req.Model())
	assert.Nil(t, first.OpenAI.StreamOptions)

	firstWire, err := first.Marshal()
	require.NoError(t, err)
	secondWire, err := second.Marshal()
	require.NoError(t, err)
	assert.Equal(t, "model-a", gjson.GetBytes(firstWire, "model").String())
	assert.Equal(t, "model-b", gjson.GetBytes(secondWire, "model").String())
	assert.False(t, gjson.GetBytes(req.Raw, "model").Exists())
}

func TestConvertRequest_SameFormatForwardsBodyUnchanged(t *testing.T) {
	tests := []struct {
		name   string
		format provider.Format
		model  string
		rest   string
	}{
		{
			name:   "openai tool calls",
			format: provider.FormatOpenAI,
			model:  `"model":"gpt-4o",`,
			rest: `"messages":[{"role":"user","content":"weather in Paris?"},` +
				`{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Paris\"}"}}]},` +
				`{"role":"tool","tool_call_id":"call_1","content":"sunny"}],` +
				`"tools":[{"type":"function","function":{"name":"get_weather","parameters":{"type":"object","properties":{"city":{"type":"string"}}}}}],` +
				`"tool_choice":"auto","response_format":{"type":"json_object"},"n":1,"seed":7,"frequency_penalty":0.5,"presence_penalty":0.1}`,
		},
		{
			name:   "anthropic tool use",
			format: provider.FormatAnthropic,
			model:  `"model":"claude-x",`,
			rest: `"max_tokens":100,` +
				`"tools":[{"name":"get_weather","input_schema":{"type":"object","properties":{"city":{"type":"string"}}}}],` +
				`"tool_choice":{"type":"auto"},` +
				`"messages":[{"role":"user","content":"weather in Paris?"},` +
				`{"role":"assistant","content":[{"type":"tool_use","id":"toolu_1","name":"get_weather","input":{"city":"Paris"}}]},` +
				`{"role":"user","content":[{"type":"tool_result","tool_use_id":"toolu_1","content":"sunny"}]}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withModel := "{" + tt.model + tt.rest
			req, err := ParseRequest([]byte(withModel), tt.format)
			require.NoError(t, err)
			out, err := ConvertRequest(req, tt.format, "fallback")
			require.NoError(t, err)
			wire, err := out.Marshal()
			require.NoError(t, err)
			assert.Equal(t, withModel, string(wire))

			withoutModel := "{" + tt.rest
			req, err = ParseRequest([]byte(withoutModel), tt.format)
			require.NoError(t, err)
			out, err = ConvertRequest(req, tt.format, "fallback")
			require.NoError(t, err)
			wire, err = out.Marshal()
			require.NoError(t, err)
			assert.Equal(t, withoutModel[:len(withoutModel)-1]+`,"model":"fallback"}`, string(wire))
			assert.Equal(t, withoutModel, string(req.Raw), "the parsed request keeps the caller's body")
		})
	}
}

func TestConvertRequest_CrossFormatDropsRaw(t *testing.T) {
	req, err := ParseRequest([]byte(`{"model":"gpt-4o","tools":[{"type":"function"}],"messages":[{"role":"user","content":"x"}]}`), provider.FormatOpenAI)
	require.NoError(t, err)

	out, err := ConvertRequest(req, provider.FormatAnthropic, "")
	require.NoError(t, err)
	assert.Nil(t, out.Raw)

	wire, err := out.Marshal()
	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(wire, "tools").Exists())
	assert.Equal(t, int64(DefaultMaxTokens), gjson.GetBytes(wire, "max_tokens").Int())
}

func TestConvertRequest_KeepsCallerModel(t *testing.T) {
	req, err := ParseRequest([]byte(`{"model":"gpt-4o-mini","messages":[{"role":"user","content":"x"}]}`), provider.FormatOpenAI)
	require.NoError(t, err)
	out, err := ConvertRequest(req, provider.FormatOpenAI, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", out.Model())
}

func TestRequest_RoundTripPreservesText(t *testing.T) {
	req, err := ParseRequest([]byte(`{"model":"m","messages":[{"role":"system","content":"sys"},{"role":"user","content":"q"},{"role":"assistant","content":"a"}]}`), provider.FormatOpenAI)
	require.NoError(t, err)

	toAnthropic, err := ConvertRequest(req, provider.FormatAnthropic, "")
	require.NoError(t, err)
	back, err := ConvertRequest(toAnthropic, provider.FormatOpenAI, "")
	require.NoError(t, err)

	wire, err := back.Marshal()
	require.NoError(t, err)
	var decoded openai.ChatRequest
	require.NoError(t, json.Unmarshal(wire, &decoded))
	require.Len(t, decoded.Messages, 3)
	for i, want := range []string{"sys", "q", "a"} {
		assert.Equal(t, want, decoded.Messages[i].Content.PlainText())
	}
}

func TestRequest_RoundTripHoistsSystemAndFoldsToolRoles(t *testing.T) {
	req, err := ParseRequest([]byte(`{"model":"m","messages":[`+
		`{"role":"user","content":"q1"},`+
		`{"role":"system","content":"late rule"},`+
		`{"role":"assistant","content":"a1"},`+
		`{"role":"tool","tool_call_id":"call_1","content":"result"}]}`), provider.FormatOpenAI)
	require.NoError(t, err)

	toAnthropic, err := ConvertRequest(req, provider.FormatAnthropic, "")
	require.NoError(t, err)
	assert.Equal(t, "late rule", toAnthropic.Anthropic.System.PlainText())

	back, err := ConvertRequest(toAnthropic, provider.FormatOpenAI, "")
	require.NoError(t, err)

	var roles, texts []string
	for _, m := range back.OpenAI.Messages {
		roles = append(roles, m.Role)
		texts = append(texts, m.Content.PlainText())
	}
	// A system message anywhere in the conversation comes back first, and
	// tool results come back as user turns.
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.Equal(t, []string{"late rule", "q1", "a1", "result"}, texts)
}
