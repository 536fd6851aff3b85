package converter

import (
	"github.com/mixaill76/byok_router/internal/converter/anthropic"
	"github.com/mixaill76/byok_router/internal/converter/openai"
)

func toAnthropicStopReason(finishReason string) string {
	switch finishReason {
	case openai.FinishLength:
		return anthropic.StopMaxTokens
	case openai.FinishToolCalls:
		return anthropic.StopToolUse
	default:
		return anthropic.StopEndTurn
	}
}

func toOpenAIFinishReason(stopReason string) string {
	switch stopReason {
	case anthropic.StopMaxTokens:
		return openai.FinishLength
	case anthropic.StopToolUse:
		return openai.FinishToolCalls
	case "refusal":
		return openai.FinishContentFilter
	default:
		return openai.FinishStop
	}
}
