// Package toolbinding turns ENABLED registry entries into callables bound to
// their remote endpoints.
package toolbinding

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/telemetry"
)

// Invoker performs a blocking remote call.
type Invoker interface {
	InvokeSync(ctx context.Context, binding domain.Binding, toolName string, args map[string]any) (domain.CallResult, error)
}

// Registry is the read side the binder resolves tools through.
type Registry interface {
	FindByName(ctx context.Context, name string) (domain.ToolDefinition, bool, error)
	ByStatus(ctx context.Context, status domain.ToolStatus) ([]domain.ToolDefinition, error)
}

// Func calls one tool with named arguments and returns its text rendering.
type Func func(ctx context.Context, args map[string]any) (string, error)

type Binder struct {
	logger   *zap.Logger
	registry Registry
	invoker  Invoker

	mu      sync.Mutex
	schemas map[string]compiledSchema
}

type compiledSchema struct {
	version  uint64
	resolved *jsonschema.Resolved
}

type Options struct {
	Logger   *zap.Logger
	Registry Registry
	Invoker  Invoker
}

func New(opts Options) *Binder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Binder{
		logger:   logger.Named("toolbinding"),
		registry: opts.Registry,
		invoker:  opts.Invoker,
		schemas:  make(map[string]compiledSchema),
	}
}

// Functions returns a callable per ENABLED tool. Each call re-resolves the
// tool, so a tool disabled after this returns is refused.
func (b *Binder) Functions(ctx context.Context) (map[string]Func, error) {
	defs, err := b.registry.ByStatus(ctx, domain.ToolStatusEnabled)
	if err != nil {
		return nil, err
	}
	funcs := make(map[string]Func, len(defs))
	for _, def := range defs {
		name := def.Name
		funcs[name] = func(ctx context.Context, args map[string]any) (string, error) {
			result, err := b.Invoke(ctx, name, args)
			if err != nil {
				return "", err
			}
			return result.String(), nil
		}
	}
	return funcs, nil
}

// Invoke resolves name in the registry, refuses disabled or unbound tools,
// validates args against the stored schema and calls the bound endpoint.
func (b *Binder) Invoke(ctx context.Context, name string, args map[string]any) (domain.CallResult, error) {
	ctx, _ = telemetry.EnsureRequestID(ctx)
	def, found, err := b.registry.FindByName(ctx, name)
	if err != nil {
		return domain.CallResult{}, err
	}
	if !found {
		return domain.CallResult{}, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	if !def.Enabled() {
		return domain.CallResult{}, fmt.Errorf("%w: %s", domain.ErrToolDisabled, name)
	}
	if def.Binding.URL == "" {
		return domain.CallResult{}, domain.E(domain.CodeFailedPrecond, "toolbinding.invoke", fmt.Sprintf("tool %q has no remote binding", name), nil)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := b.validate(def, args); err != nil {
		b.logger.Debug("arguments rejected", append(telemetry.RequestFields(ctx), zap.String("tool", name), zap.Error(err))...)
		return domain.CallResult{}, err
	}
	return b.invoker.InvokeSync(ctx, def.Binding, def.Name, args)
}

func (b *Binder) validate(def domain.ToolDefinition, args map[string]any) error {
	resolved, err := b.schemaFor(def)
	if err != nil {
		b.logger.Warn("stored schema unusable; skipping validation", zap.String("tool", def.Name), zap.Error(err))
		return nil
	}
	if resolved == nil {
		return nil
	}
	// Round-trip through JSON so numbers and nested values have the shapes
	// the validator expects.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	var instance map[string]any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidArguments, def.Name, err)
	}
	return nil
}

func (b *Binder) schemaFor(def domain.ToolDefinition) (*jsonschema.Resolved, error) {
	b.mu.Lock()
	cached, ok := b.schemas[def.ID]
	b.mu.Unlock()
	if ok && cached.version == def.Version {
		return cached.resolved, nil
	}

	var resolved *jsonschema.Resolved
	if len(def.ParamSchema) > 0 {
		var schema jsonschema.Schema
		if err := json.Unmarshal(def.ParamSchema, &schema); err != nil {
			return nil, fmt.Errorf("decode schema: %w", err)
		}
		var err error
		resolved, err = schema.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("resolve schema: %w", err)
		}
	}

	b.mu.Lock()
	b.schemas[def.ID] = compiledSchema{version: def.Version, resolved: resolved}
	b.mu.Unlock()
	return resolved, nil
}
