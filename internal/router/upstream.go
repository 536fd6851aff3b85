package router

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/mixaill76/byok_router/internal/converter/anthropic"
	"github.com/mixaill76/byok_router/internal/provider"
)

// UpstreamRequest is a fully built provider call.
type UpstreamRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Upstream performs provider calls. The response body must stay readable
// until closed, independent of how long the call took to start.
type Upstream interface {
	Do(ctx context.Context, req *UpstreamRequest) (*http.Response, error)
}

// HTTPUpstream sends requests with a plain http.Client.
type HTTPUpstream struct {
	Client *http.Client
}

func (u *HTTPUpstream) Do(ctx context.Context, req *UpstreamRequest) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Header
	return u.Client.Do(httpReq)
}

// HeaderConfig carries the fixed headers sent to Anthropic-format upstreams.
type HeaderConfig struct {
	AnthropicVersion string
	AnthropicBeta    string
}

// buildUpstreamRequest derives URL and headers for p in the target format.
func buildUpstreamRequest(p *provider.Provider, target provider.Format, body []byte, streaming bool, hc HeaderConfig) *UpstreamRequest {
	base := strings.TrimRight(p.BaseURL, "/")
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	if streaming {
		header.Set("Accept", "text/event-stream")
	} else {
		header.Set("Accept", "application/json")
	}
	header.Set("Authorization", "Bearer "+p.APIKey)

	url := base + "/chat/completions"
	if target == provider.FormatAnthropic {
		url = base + "/messages"
		header.Set("x-api-key", p.APIKey)
		version := hc.AnthropicVersion
		if version == "" {
			version = anthropic.APIVersion
		}
		header.Set("anthropic-version", version)
		if hc.AnthropicBeta != "" {
			header.Set("anthropic-beta", hc.AnthropicBeta)
		}
	}

	return &UpstreamRequest{
		Method: http.MethodPost,
		URL:    url,
		Header: header,
		Body:   body,
	}
}
