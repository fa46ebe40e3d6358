package network

import "net/http"

// CookieTransport adds a fixed Cookie (and optionally User-Agent) header to
// every outgoing request.
type CookieTransport struct {
	Base      http.RoundTripper
	Cookie    string
	UserAgent string
}

// RoundTrip implements http.RoundTripper
func (t *CookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	if t.Cookie != "" {
		if existing := req.Header.Get("Cookie"); existing != "" {
			req.Header.Set("Cookie", existing+"; "+t.Cookie)
		} else {
			req.Header.Set("Cookie", t.Cookie)
		}
	}
	if t.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	return base.RoundTrip(req)
}
