package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpbridge/internal/domain"
)

// Factory builds MCP client transports for remote endpoints.
type Factory struct {
	logger         *zap.Logger
	connectTimeout time.Duration
	maxRetries     int
	base           http.RoundTripper
}

type FactoryOptions struct {
	Logger         *zap.Logger
	ConnectTimeout time.Duration
	// MaxRetries bounds streamable HTTP reconnects. Zero selects the default,
	// negative disables retries.
	MaxRetries int
	// Base overrides the underlying round tripper.
	Base http.RoundTripper
}

func NewFactory(opts FactoryOptions) *Factory {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultConnectTimeoutSeconds) * time.Second
	}
	return &Factory{
		logger:         logger.Named("transport"),
		connectTimeout: timeout,
		maxRetries:     effectiveMaxRetries(opts.MaxRetries),
		base:           opts.Base,
	}
}

// CreateTransport returns an unconnected transport for the binding. The kind
// is normalized first; construction never falls back to the other kind.
func (f *Factory) CreateTransport(binding domain.Binding) (mcp.Transport, error) {
	kind := domain.NormalizeTransportKind(string(binding.Transport))
	endpoint, err := Endpoint(binding.URL, kind)
	if err != nil {
		return nil, &domain.TransportCreationError{URL: binding.URL, Kind: kind, Cause: err}
	}
	roundTripper, err := f.roundTripper(binding.Headers)
	if err != nil {
		return nil, &domain.TransportCreationError{URL: binding.URL, Kind: kind, Cause: err}
	}
	client := &http.Client{Transport: roundTripper}

	f.logger.Debug("transport created",
		zap.String("endpoint", endpoint),
		zap.String("transport", string(kind)),
		zap.Strings("headers", binding.HeaderNames()),
	)

	switch kind {
	case domain.TransportEventStream:
		return &mcp.SSEClientTransport{
			Endpoint:   endpoint,
			HTTPClient: client,
		}, nil
	default:
		return &mcp.StreamableClientTransport{
			Endpoint:   endpoint,
			HTTPClient: client,
			MaxRetries: f.maxRetries,
		}, nil
	}
}

// Endpoint joins the base URL with the fixed sub-path of kind.
func Endpoint(base string, kind domain.TransportKind) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return "", errors.New("endpoint url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("endpoint url has no host")
	}
	return trimmed + kind.Path(), nil
}

func (f *Factory) roundTripper(headers map[string]string) (http.RoundTripper, error) {
	base := f.base
	if base == nil {
		defaultTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return nil, errors.New("default http transport is not *http.Transport")
		}
		cloned := defaultTransport.Clone()
		dialer := &net.Dialer{Timeout: f.connectTimeout, KeepAlive: 30 * time.Second}
		cloned.DialContext = dialer.DialContext
		cloned.TLSHandshakeTimeout = f.connectTimeout
		base = cloned
	}
	if len(headers) == 0 {
		return base, nil
	}
	fixed, err := buildHeaders(headers)
	if err != nil {
		return nil, err
	}
	return &headerRoundTripper{base: base, headers: fixed}, nil
}

func effectiveMaxRetries(value int) int {
	if value == 0 {
		return domain.DefaultStreamableHTTPMaxRetries
	}
	return value
}
