// Package mcptest starts real MCP remotes on loopback listeners for tests.
package mcptest

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpbridge/internal/domain"
)

// Tool is a canned remote tool. Handler receives the decoded arguments and
// returns text blocks; a non-nil error is reported as a tool error result.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Handler     func(args map[string]any) ([]string, error)
}

// TextTool answers every call with the given text blocks.
func TextTool(name string, texts ...string) Tool {
	return Tool{
		Name:        name,
		Description: name + " tool",
		Handler: func(map[string]any) ([]string, error) {
			return texts, nil
		},
	}
}

// EchoTool returns the "text" argument unchanged.
func EchoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echoes text",
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
			"required":   []any{"text"},
		},
		Handler: func(args map[string]any) ([]string, error) {
			text, _ := args["text"].(string)
			return []string{text}, nil
		},
	}
}

// FailingTool always answers with an error result carrying message.
func FailingTool(name, message string) Tool {
	return Tool{
		Name:        name,
		Description: "always fails",
		Handler: func(map[string]any) ([]string, error) {
			return nil, errors.New(message)
		},
	}
}

func (tool Tool) schema() map[string]any {
	if tool.Schema != nil {
		return tool.Schema
	}
	return map[string]any{"type": "object"}
}

// StreamableRemote is a go-sdk server mounted at /mcp.
type StreamableRemote struct {
	URL    string
	Server *sdkmcp.Server

	sessions atomic.Int64
}

type StreamableOptions struct {
	Name     string
	Version  string
	PageSize int
}

// NewStreamableRemote serves tools over the streaming HTTP transport. The
// returned URL is the base address; clients append /mcp.
func NewStreamableRemote(t testing.TB, opts StreamableOptions, tools ...Tool) *StreamableRemote {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "remote"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	remote := &StreamableRemote{}
	remote.Server = sdkmcp.NewServer(&sdkmcp.Implementation{Name: opts.Name, Version: opts.Version}, &sdkmcp.ServerOptions{
		HasTools: true,
		PageSize: opts.PageSize,
		InitializedHandler: func(context.Context, *sdkmcp.InitializedRequest) {
			remote.sessions.Add(1)
		},
	})
	for _, tool := range tools {
		remote.AddTool(tool)
	}

	handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server {
		return remote.Server
	}, nil)
	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	httpServer := httptest.NewServer(mux)
	t.Cleanup(func() {
		httpServer.CloseClientConnections()
		httpServer.Close()
	})
	remote.URL = httpServer.URL
	return remote
}

// AddTool registers a tool; connected clients receive a list_changed
// notification.
func (r *StreamableRemote) AddTool(tool Tool) {
	handler := tool.Handler
	r.Server.AddTool(&sdkmcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: tool.schema(),
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
		}
		texts, err := handler(args)
		if err != nil {
			return &sdkmcp.CallToolResult{
				IsError: true,
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: err.Error()}},
			}, nil
		}
		content := make([]sdkmcp.Content, 0, len(texts))
		for _, text := range texts {
			content = append(content, &sdkmcp.TextContent{Text: text})
		}
		return &sdkmcp.CallToolResult{Content: content}, nil
	})
}

// RemoveTools unregisters tools by name.
func (r *StreamableRemote) RemoveTools(names ...string) {
	r.Server.RemoveTools(names...)
}

// Sessions counts completed initialize handshakes.
func (r *StreamableRemote) Sessions() int64 {
	return r.sessions.Load()
}

// Binding addresses the remote over streaming HTTP.
func (r *StreamableRemote) Binding() domain.Binding {
	return domain.Binding{URL: r.URL, Transport: domain.TransportStreamingHTTP}
}

// SSERemote is a mark3labs server on the event-stream transport.
type SSERemote struct {
	URL    string
	Server *server.MCPServer

	mu       sync.Mutex
	requests []Request
}

// Request is what an SSERemote saw of one inbound HTTP request.
type Request struct {
	Method string
	Path   string
	Header http.Header
}

// NewSSERemote serves tools over the event-stream transport on a free
// loopback port. Clients append /sse to URL.
func NewSSERemote(t testing.TB, tools ...Tool) *SSERemote {
	t.Helper()
	mcpServer := server.NewMCPServer("sse-remote", "1.0.0", server.WithToolCapabilities(true))
	remote := &SSERemote{Server: mcpServer}
	for _, tool := range tools {
		remote.AddTool(tool)
	}

	addr := freeAddr(t)
	var sseServer *server.SSEServer
	httpServer := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remote.record(r)
			sseServer.ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	sseServer = server.NewSSEServer(mcpServer,
		server.WithBaseURL("http://"+addr),
		server.WithHTTPServer(httpServer),
	)
	go func() {
		_ = sseServer.Start(addr)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sseServer.Shutdown(ctx)
	})
	waitForListener(t, addr, 5*time.Second)
	remote.URL = "http://" + addr
	return remote
}

func (r *SSERemote) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, Request{Method: req.Method, Path: req.URL.Path, Header: req.Header.Clone()})
}

// Requests returns the requests received so far, in arrival order.
func (r *SSERemote) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

func (r *SSERemote) AddTool(tool Tool) {
	options := []mcp.ToolOption{mcp.WithDescription(tool.Description)}
	if props, ok := tool.schema()["properties"].(map[string]any); ok {
		for name := range props {
			options = append(options, mcp.WithString(name, mcp.Required()))
		}
	}
	handler := tool.Handler
	r.Server.AddTool(mcp.NewTool(tool.Name, options...), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		texts, err := handler(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result := &mcp.CallToolResult{}
		for _, text := range texts {
			result.Content = append(result.Content, mcp.NewTextContent(text))
		}
		return result, nil
	})
}

// Binding addresses the remote over the event stream.
func (r *SSERemote) Binding() domain.Binding {
	return domain.Binding{URL: r.URL, Transport: domain.TransportEventStream}
}

// UnreachableURL returns a loopback address with nothing listening.
func UnreachableURL(t testing.TB) string {
	t.Helper()
	return "http://" + freeAddr(t)
}

func freeAddr(t testing.TB) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return addr
}

func waitForListener(t testing.TB, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("remote did not start within %v", timeout)
}
