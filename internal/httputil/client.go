package httputil

import (
	"net/http"
	"time"
)

// NewClient creates an HTTP client with the given timeout and a transport
// tuned for repeated requests to the same hosts (gateway calls, probes).
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
