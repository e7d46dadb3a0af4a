// ABOUTME: Hardened HTTP client used for manifest retrieval
// ABOUTME: Bounded transport timeouts plus a fixed User-Agent on every request

package http

import (
	"net/http"
	"time"
)

// DefaultUserAgent identifies pkgsync to the manifest proxy.
const DefaultUserAgent = "pkgsync/1.0"

// SecureHTTPClient creates an HTTP client with bounded handshake, header and
// idle timeouts. A zero timeout leaves the overall request unbounded.
func SecureHTTPClient(timeout time.Duration, userAgent string) *http.Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &userAgentTransport{
			agent: userAgent,
			base: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 15 * time.Second,
				IdleConnTimeout:       30 * time.Second,
				MaxIdleConns:          4,
				MaxIdleConnsPerHost:   2,
			},
		},
	}
}

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(r)
}
