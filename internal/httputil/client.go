// Package httputil builds the outbound HTTP client shared by upstream calls.
package httputil

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultDialTimeout         = 10 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
)

// HTTPClientConfig holds configuration for HTTP client creation.
type HTTPClientConfig struct {
	DialTimeout         time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

func DefaultHTTPClientConfig() *HTTPClientConfig {
	return &HTTPClientConfig{
		DialTimeout:         defaultDialTimeout,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}
}

// NewHTTPClient creates the client used for upstream provider calls.
func NewHTTPClient(cfg *HTTPClientConfig) *http.Client {
	if cfg == nil {
		cfg = DefaultHTTPClientConfig()
	}
	dialTimeout := orDefault(cfg.DialTimeout, defaultDialTimeout)
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	maxIdleConnsPerHost := cfg.MaxIdleConnsPerHost
	if maxIdleConnsPerHost == 0 {
		maxIdleConnsPerHost = defaultMaxIdleConnsPerHost
	}

	return &http.Client{
		// No global timeout: streaming responses can run for minutes. Each
		// attempt bounds its own time to response headers through its context.
		Timeout: 0,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
			MaxIdleConns:        maxIdleConns,
			MaxIdleConnsPerHost: maxIdleConnsPerHost,
			IdleConnTimeout:     orDefault(cfg.IdleConnTimeout, defaultIdleConnTimeout),
			ForceAttemptHTTP2:   true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}
	return d
}

// ReadPreview reads at most limit bytes of r and returns them as a string
// safe to log: invalid UTF-8 is replaced.
func ReadPreview(r io.Reader, limit int64) string {
	data, _ := io.ReadAll(io.LimitReader(r, limit))
	return strings.ToValidUTF8(string(data), "\uFFFD")
}
