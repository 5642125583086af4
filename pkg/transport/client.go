package transport

import (
	"net"
	"net/http"
	"time"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 15 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 5 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 10 * time.Second
)

// NewHTTPClient creates an HTTP client for the attribution service.
// A zero timeout uses ClientTimeout. Redirects are not followed.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = ClientTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Header names sent with every request.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderRequestID = "X-Request-ID"
)

// setHeaders applies the standard request headers.
func setHeaders(req *http.Request, credential, requestID, userAgent string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAPIKey, credential)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("User-Agent", userAgent)
}
