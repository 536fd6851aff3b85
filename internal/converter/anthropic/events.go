package anthropic

import (
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// APIVersion is sent as anthropic-version on every upstream call.
const APIVersion = "2023-06-01"

// Stop reasons reported by the Messages API.
const (
	StopEndTurn      = string(sdk.StopReasonEndTurn)
	StopMaxTokens    = string(sdk.StopReasonMaxTokens)
	StopStopSequence = string(sdk.StopReasonStopSequence)
	StopToolUse      = string(sdk.StopReasonToolUse)
)

// DecodeStreamEvent decodes one SSE data payload of a Messages stream.
// Payloads without a "type" are rejected.
func DecodeStreamEvent(data []byte) (*sdk.MessageStreamEventUnion, error) {
	var event sdk.MessageStreamEventUnion
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.Type == "" {
		return nil, fmt.Errorf("anthropic: stream event without type")
	}
	return &event, nil
}

// DecodeStreamError extracts the error body of an "error" stream event.
func DecodeStreamError(data []byte) (ErrorBody, error) {
	var env ErrorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ErrorBody{}, err
	}
	if env.Error.Message == "" && env.Error.Type == "" {
		return ErrorBody{}, fmt.Errorf("anthropic: error event without body")
	}
	return env.Error, nil
}
