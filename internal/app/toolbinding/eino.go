package toolbinding

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"

	"mcpbridge/internal/domain"
)

// EinoTools adapts every ENABLED tool for an eino agent.
func (b *Binder) EinoTools(ctx context.Context) ([]tool.BaseTool, error) {
	defs, err := b.registry.ByStatus(ctx, domain.ToolStatusEnabled)
	if err != nil {
		return nil, err
	}
	tools := make([]tool.BaseTool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, &einoTool{binder: b, def: def})
	}
	return tools, nil
}

type einoTool struct {
	binder *Binder
	def    domain.ToolDefinition
}

var _ tool.InvokableTool = (*einoTool)(nil)

func (t *einoTool) Info(context.Context) (*schema.ToolInfo, error) {
	info := &schema.ToolInfo{Name: t.def.Name, Desc: t.def.Description}
	if len(t.def.ParamSchema) > 0 {
		var params jsonschema.Schema
		if err := json.Unmarshal(t.def.ParamSchema, &params); err != nil {
			return nil, fmt.Errorf("decode schema for %s: %w", t.def.Name, err)
		}
		info.ParamsOneOf = schema.NewParamsOneOfByJSONSchema(&params)
	}
	return info, nil
}

func (t *einoTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(argumentsInJSON); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
		}
	}
	result, err := t.binder.Invoke(ctx, t.def.Name, args)
	if err != nil {
		return "", err
	}
	return result.String(), nil
}
