package converterutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateIDs(t *testing.T) {
	chat := GenerateChatID()
	assert.True(t, strings.HasPrefix(chat, "chatcmpl-"))
	assert.Len(t, chat, len("chatcmpl-")+32)
	assert.NotEqual(t, chat, GenerateChatID())

	msg := GenerateMessageID()
	assert.True(t, strings.HasPrefix(msg, "msg_"))
	assert.NotContains(t, msg, "-")
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		mediaType string
		data      string
		ok        bool
	}{
		{"png", "data:image/png;base64,iVBORw0KGgo=", "image/png", "iVBORw0KGgo=", true},
		{"plain url", "https://example.com/cat.jpg", "", "", false},
		{"not base64", "data:text/plain,hello", "", "", false},
		{"no comma", "data:image/png;base64", "", "", false},
		{"empty media", "data:;base64,AAAA", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mediaType, data, ok := ParseDataURL(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.mediaType, mediaType)
			assert.Equal(t, tt.data, data)
		})
	}
}

func TestDataURL_RoundTrip(t *testing.T) {
	mediaType, data, ok := ParseDataURL(DataURL("image/jpeg", "/9j/4AAQ"))
	assert.True(t, ok)
	assert.Equal(t, "image/jpeg", mediaType)
	assert.Equal(t, "/9j/4AAQ", data)
}
