package clients

import (
	"net"
	"net/http"
	"time"
)

// DefaultTransport caps connections per host. Upstream calls are serialized
// anyway, so a small warm pool is enough.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxConnsPerHost:     16,
		MaxIdleConnsPerHost: 4,
		MaxIdleConns:        32,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewHTTPClient returns a client over DefaultTransport with a whole-request timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Transport: DefaultTransport(), Timeout: timeout}
}
