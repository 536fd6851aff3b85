package proxy

import (
	"net/http"
)

// hopByHopHeaders are headers that should not be proxied.
// These are hop-by-hop headers as defined in RFC 7230 Section 6.1.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// isHopByHopHeader expects a canonical header key.
func isHopByHopHeader(key string) bool {
	return hopByHopHeaders[key]
}

// copyResponseHeaders copies response headers to the response writer,
// skipping hop-by-hop headers. Content-Length and Content-Encoding are
// dropped as well: the body may have been translated, and the upstream
// client already decoded any compression.
func copyResponseHeaders(w http.ResponseWriter, src http.Header) {
	for key, values := range src {
		key = http.CanonicalHeaderKey(key)
		if isHopByHopHeader(key) || key == "Content-Length" || key == "Content-Encoding" {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
}
