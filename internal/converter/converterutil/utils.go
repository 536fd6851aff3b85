package converterutil

import (
	"strings"

	"github.com/google/uuid"
	"github.com/mixaill76/byok_router/internal/utils"
)

// GenerateChatID returns an id in the chat.completion format.
func GenerateChatID() string {
	return "chatcmpl-" + compactUUID()
}

// GenerateMessageID returns an id in the Messages API format.
func GenerateMessageID() string {
	return "msg_" + compactUUID()
}

// GetCurrentTimestamp returns the current Unix timestamp (UTC).
func GetCurrentTimestamp() int64 {
	return utils.NowUTC().Unix()
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ParseDataURL splits "data:<media>;base64,<payload>" into its media type and
// payload. ok is false for anything that is not a base64 data URL.
func ParseDataURL(url string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	meta, payload, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mediaType, found = strings.CutSuffix(meta, ";base64")
	if !found || mediaType == "" {
		return "", "", false
	}
	return mediaType, payload, true
}

// DataURL is the inverse of ParseDataURL.
func DataURL(mediaType, data string) string {
	return "data:" + mediaType + ";base64," + data
}
