package mcpcodec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"mcpbridge/internal/domain"
)

// DescriptorFromMCP converts a listed MCP tool into a descriptor with its
// input schema encoded as JSON.
func DescriptorFromMCP(tool *mcp.Tool) (domain.ToolDescriptor, error) {
	if tool == nil {
		return domain.ToolDescriptor{}, errors.New("tool is nil")
	}
	name := strings.TrimSpace(tool.Name)
	if name == "" {
		return domain.ToolDescriptor{}, errors.New("tool name is empty")
	}
	schema, err := EncodeSchema(tool.InputSchema)
	if err != nil {
		return domain.ToolDescriptor{}, fmt.Errorf("tool %s: %w", name, err)
	}
	return domain.ToolDescriptor{
		Name:        name,
		Description: tool.Description,
		InputSchema: schema,
	}, nil
}

// DescriptorsFromMCP converts a full tools/list result. Any malformed entry
// fails the whole list; duplicate names keep the last occurrence.
func DescriptorsFromMCP(tools []*mcp.Tool) ([]domain.ToolDescriptor, error) {
	out := make([]domain.ToolDescriptor, 0, len(tools))
	index := make(map[string]int, len(tools))
	for _, tool := range tools {
		desc, err := DescriptorFromMCP(tool)
		if err != nil {
			return nil, err
		}
		if pos, ok := index[desc.Name]; ok {
			out[pos] = desc
			continue
		}
		index[desc.Name] = len(out)
		out = append(out, desc)
	}
	return out, nil
}

// EncodeSchema marshals an arbitrary schema value into canonical JSON.
func EncodeSchema(schema any) (json.RawMessage, error) {
	if schema == nil {
		return nil, nil
	}
	if raw, ok := schema.(json.RawMessage); ok {
		return CanonicalJSON(raw)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return CanonicalJSON(raw)
}

// CanonicalJSON re-encodes raw with sorted object keys and no insignificant
// whitespace. Empty input and JSON null canonicalize to nil.
func CanonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var value any
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if value == nil {
		return nil, nil
	}
	out, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return out, nil
}

// SchemaEqual compares two schemas structurally.
func SchemaEqual(a, b json.RawMessage) bool {
	left, err := CanonicalJSON(a)
	if err != nil {
		return bytes.Equal(bytes.TrimSpace(a), bytes.TrimSpace(b))
	}
	right, err := CanonicalJSON(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}

// HashDescriptors returns a stable digest of a tool list, independent of order.
func HashDescriptors(descriptors []domain.ToolDescriptor) (string, error) {
	sorted := append([]domain.ToolDescriptor(nil), descriptors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	hasher := sha256.New()
	for _, desc := range sorted {
		schema, err := CanonicalJSON(desc.InputSchema)
		if err != nil {
			return "", err
		}
		entry, err := json.Marshal(struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Schema      json.RawMessage `json:"schema,omitempty"`
		}{desc.Name, desc.Description, schema})
		if err != nil {
			return "", err
		}
		_, _ = hasher.Write(entry)
		_, _ = hasher.Write([]byte{'\n'})
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
