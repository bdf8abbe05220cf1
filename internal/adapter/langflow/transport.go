package langflow

import (
	"net"
	"net/http"
	"time"

	"flowrelay/internal/infra/config"
)

// Default connection pool settings: one backend host, moderate
// concurrency, long-lived connections.
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 120 * time.Second
	defaultConnTimeout         = 5 * time.Second
)

// newHTTPClient builds an *http.Client with a pooled transport. The
// client carries no overall timeout; per-call deadlines come from the
// request context so a fired deadline also closes the connection.
func newHTTPClient(cfg config.BackendConfig) *http.Client {
	connTimeout := cfg.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = defaultConnTimeout
	}

	maxIdle := cfg.Pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxIdlePerHost := cfg.Pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdleConnsPerHost
	}
	idleTimeout := cfg.Pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}

	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        maxIdle,
			MaxIdleConnsPerHost: maxIdlePerHost,
			IdleConnTimeout:     idleTimeout,
			ForceAttemptHTTP2:   true,
		},
	}
}
