package network

import (
	"net/http"
	"net/http/cookiejar"
	"time"
)

// ClientConfig holds configuration for HTTP client
type ClientConfig struct {
	// Timeout bounds the whole exchange including the body; zero means none
	Timeout                time.Duration
	MaxIdleConns           int
	MaxIdleConnsPerHost    int
	MaxConnsPerHost        int
	IdleConnTimeout        time.Duration
	TLSHandshakeTimeout    time.Duration
	ResponseHeaderTimeout  time.Duration
	ExpectContinueTimeout  time.Duration
	DisableKeepAlives      bool
	MaxResponseHeaderBytes int64
	// Cookie, when set, is sent verbatim on every request
	Cookie    string
	UserAgent string
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:                30 * time.Second,
		MaxIdleConns:           100,
		MaxIdleConnsPerHost:    20,
		MaxConnsPerHost:        50,
		IdleConnTimeout:        90 * time.Second,
		TLSHandshakeTimeout:    10 * time.Second,
		ResponseHeaderTimeout:  30 * time.Second,
		ExpectContinueTimeout:  1 * time.Second,
		DisableKeepAlives:      false,
		MaxResponseHeaderBytes: 10 << 20, // 10 MB
	}
}

// NewClient creates a new HTTP client with connection pooling
func NewClient(config *ClientConfig) *http.Client {
	if config == nil {
		config = DefaultClientConfig()
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		DisableKeepAlives:      config.DisableKeepAlives,
		MaxResponseHeaderBytes: config.MaxResponseHeaderBytes,

		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: config.ExpectContinueTimeout,
	}

	if config.Cookie != "" || config.UserAgent != "" {
		transport = &CookieTransport{
			Base:      transport,
			Cookie:    config.Cookie,
			UserAgent: config.UserAgent,
		}
	}

	jar, _ := cookiejar.New(nil)

	return &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
		Jar:       jar,
	}
}

// NewAPIClient returns a client for small JSON requests
func NewAPIClient(timeout time.Duration) *http.Client {
	config := DefaultClientConfig()
	if timeout > 0 {
		config.Timeout = timeout
	}
	return NewClient(config)
}

// NewStreamClient returns a client for long-running media streams. timeout
// bounds the whole transfer and is usually zero; only the wait for response
// headers is always bounded.
func NewStreamClient(timeout time.Duration, cookie string) *http.Client {
	config := DefaultClientConfig()
	config.Timeout = timeout
	config.MaxIdleConnsPerHost = 50
	config.MaxConnsPerHost = 100
	config.IdleConnTimeout = 120 * time.Second
	config.ResponseHeaderTimeout = 60 * time.Second
	config.Cookie = cookie
	return NewClient(config)
}
