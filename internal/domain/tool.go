package domain

import (
	"encoding/json"
	"time"
)

// ToolKind is the origin of a tool definition.
type ToolKind string

const (
	ToolKindLocal  ToolKind = "LOCAL"
	ToolKindRemote ToolKind = "REMOTE"
)

// ToolStatus is the lifecycle status of a tool definition.
type ToolStatus string

const (
	ToolStatusEnabled  ToolStatus = "ENABLED"
	ToolStatusDisabled ToolStatus = "DISABLED"
)

// ToolDefinition is the registry record for one tool. Name is unique.
type ToolDefinition struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	ParamSchema json.RawMessage `json:"paramSchema,omitempty"`
	Kind        ToolKind        `json:"kind"`
	Status      ToolStatus      `json:"status"`
	Binding     Binding         `json:"binding"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	// Version increments on every write and guards compare-and-swap updates.
	Version uint64 `json:"version"`
}

func (d ToolDefinition) Enabled() bool {
	return d.Status == ToolStatusEnabled
}

// Clone returns a deep copy.
func (d ToolDefinition) Clone() ToolDefinition {
	out := d
	if d.ParamSchema != nil {
		out.ParamSchema = append(json.RawMessage(nil), d.ParamSchema...)
	}
	if d.Binding.Headers != nil {
		out.Binding.Headers = make(map[string]string, len(d.Binding.Headers))
		for key, value := range d.Binding.Headers {
			out.Binding.Headers[key] = value
		}
	}
	return out
}

// ToolDescriptor is a tool as reported by a remote tools/list call.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolFilter narrows registry listings. Zero fields match everything.
type ToolFilter struct {
	Kind       ToolKind
	Status     ToolStatus
	NameSubstr string
}
