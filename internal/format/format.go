// Package format decides which wire protocol an upstream provider speaks.
package format

import (
	"net/url"
	"strings"

	"github.com/mixaill76/byok_router/internal/provider"
)

// openAICompatibleHosts serve Claude models behind an OpenAI-compatible API,
// so a claude-* model name alone must not flip them to the Anthropic protocol.
var openAICompatibleHosts = []string{
	"openrouter.ai",
	"api.together.xyz",
	"api.groq.com",
	"api.deepinfra.com",
	"litellm",
}

// DetectFormat classifies an upstream by its base URL and model name.
// Anything not recognisably Anthropic-compatible is treated as OpenAI.
func DetectFormat(baseURL, model string) provider.Format {
	host, path := splitURL(baseURL)

	if strings.Contains(host, "anthropic") {
		return provider.FormatAnthropic
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "anthropic" {
			return provider.FormatAnthropic
		}
	}

	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(model)), "claude") && !isOpenAICompatibleHost(host) {
		return provider.FormatAnthropic
	}

	return provider.FormatOpenAI
}

// Resolve returns the provider's declared format, detecting it when the
// provider is configured as auto.
func Resolve(p *provider.Provider) provider.Format {
	switch p.APIFormat {
	case provider.FormatOpenAI, provider.FormatAnthropic:
		return p.APIFormat
	default:
		return DetectFormat(p.BaseURL, p.Model)
	}
}

func splitURL(raw string) (host, path string) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// Scheme-less values such as "api.anthropic.com/v1".
		lower := strings.ToLower(raw)
		if idx := strings.Index(lower, "/"); idx >= 0 {
			return lower[:idx], lower[idx:]
		}
		return lower, ""
	}
	return strings.ToLower(u.Hostname()), strings.ToLower(u.Path)
}

func isOpenAICompatibleHost(host string) bool {
	for _, h := range openAICompatibleHosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}
