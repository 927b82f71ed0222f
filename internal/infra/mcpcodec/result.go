package mcpcodec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpbridge/internal/domain"
)

// TextsFromContent collects text items in order. Other content types are
// ignored.
func TextsFromContent(content []mcp.Content) []string {
	var texts []string
	for _, item := range content {
		if text, ok := item.(*mcp.TextContent); ok && text != nil {
			texts = append(texts, text.Text)
		}
	}
	return texts
}

// ShapeCallResult turns a tools/call response into the tagged result. A
// response flagged as an error yields ErrRemoteToolError carrying its text.
func ShapeCallResult(result *mcp.CallToolResult) (domain.CallResult, error) {
	if result == nil {
		return domain.CallResult{}, errors.New("malformed response: nil call result")
	}
	texts := TextsFromContent(result.Content)
	if result.IsError {
		msg := strings.Join(texts, "\n")
		if msg == "" {
			msg = "no details"
		}
		return domain.CallResult{}, fmt.Errorf("%w: %s", domain.ErrRemoteToolError, msg)
	}
	if len(texts) == 0 && result.StructuredContent != nil {
		raw, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return domain.CallResult{}, fmt.Errorf("malformed response: encode structured content: %w", err)
		}
		texts = []string{string(raw)}
	}
	return domain.ShapeTextResult(texts), nil
}
