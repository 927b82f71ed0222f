package transport

import (
	"errors"
	"net/http"
	"strings"
)

func buildHeaders(raw map[string]string) (http.Header, error) {
	headers := http.Header{}
	for key, value := range raw {
		name := http.CanonicalHeaderKey(strings.TrimSpace(key))
		if name == "" {
			return nil, errors.New("http headers contain empty key")
		}
		headers.Set(name, value)
	}
	return headers, nil
}

// headerRoundTripper replaces the configured headers on every request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for key, values := range h.headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return h.base.RoundTrip(req)
}
