package domain

import (
	"net/http"
	"sort"
	"strings"
)

// TransportKind selects the wire convention for a remote endpoint.
type TransportKind string

const (
	TransportEventStream   TransportKind = "event-stream"
	TransportStreamingHTTP TransportKind = "streaming-http"
)

const (
	EventStreamPath   = "/sse"
	StreamingHTTPPath = "/mcp"
)

// NormalizeTransportKind maps any configured transport name onto one of the
// two supported kinds. Unknown and empty values select streaming HTTP.
func NormalizeTransportKind(raw string) TransportKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sse", "server-sent-events", string(TransportEventStream):
		return TransportEventStream
	default:
		return TransportStreamingHTTP
	}
}

// Path returns the endpoint sub-path for the kind.
func (k TransportKind) Path() string {
	if NormalizeTransportKind(string(k)) == TransportEventStream {
		return EventStreamPath
	}
	return StreamingHTTPPath
}

// Binding is where and how a remote tool is reached.
type Binding struct {
	URL       string            `json:"url"`
	Transport TransportKind     `json:"transport"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Normalized returns a copy with a trimmed URL, a normalized kind and
// canonical header keys.
func (b Binding) Normalized() Binding {
	out := Binding{
		URL:       strings.TrimRight(strings.TrimSpace(b.URL), "/"),
		Transport: NormalizeTransportKind(string(b.Transport)),
	}
	if len(b.Headers) > 0 {
		out.Headers = make(map[string]string, len(b.Headers))
		for key, value := range b.Headers {
			name := http.CanonicalHeaderKey(strings.TrimSpace(key))
			if name == "" {
				continue
			}
			out.Headers[name] = value
		}
	}
	return out
}

// CacheKey identifies one pooled connection: url + "|" + lowercase kind.
func CacheKey(url string, kind TransportKind) string {
	raw := strings.TrimSpace(string(kind))
	if raw == "" {
		raw = string(TransportStreamingHTTP)
	}
	return url + "|" + strings.ToLower(raw)
}

// Key is the pool cache key of the binding.
func (b Binding) Key() string {
	return CacheKey(b.URL, b.Transport)
}

// HeaderNames lists header keys in sorted order, for logging without values.
func (b Binding) HeaderNames() []string {
	if len(b.Headers) == 0 {
		return nil
	}
	names := make([]string, 0, len(b.Headers))
	for name := range b.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
