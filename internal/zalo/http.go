package zalo

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// NewHTTPClient returns a client bounded by a dial timeout and an overall
// request timeout.
func NewHTTPClient(connect, overall time.Duration) *http.Client {
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	if overall <= 0 {
		overall = DefaultRequestTimeout
	}
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = connect
	return &http.Client{Timeout: overall, Transport: transport}
}
