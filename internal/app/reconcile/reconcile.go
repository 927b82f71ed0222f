// Package reconcile brings the registry in line with one endpoint's
// authoritative tool list. Startup discovery and list_changed handling both
// run this pass and differ only in their policy.
package reconcile

import (
	"context"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"mcpbridge/internal/app/registry"
	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/mcpcodec"
)

// Registry is the subset of the registry service a pass needs.
type Registry interface {
	Apply(ctx context.Context, name string, mutate registry.MutateFunc) (domain.ToolDefinition, registry.Outcome, error)
	ByKind(ctx context.Context, kind domain.ToolKind) ([]domain.ToolDefinition, error)
}

// Reconcile inserts descriptors that are new, updates entries whose
// description, schema, kind or binding differ, re-enables DISABLED entries
// when the policy allows, and with DisableMissing soft-removes REMOTE
// entries bound to this endpoint that the list no longer carries.
//
// Per-tool failures are logged and counted; the returned error is set only
// when the pass could not read the registry.
func Reconcile(ctx context.Context, reg Registry, binding domain.Binding, descriptors []domain.ToolDescriptor, policy domain.ReconcilePolicy, logger *zap.Logger) (domain.ReconcileStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	binding = binding.Normalized()
	logger = logger.With(
		zap.String("source", string(policy.Source)),
		zap.String("url", binding.URL),
		zap.String("transport", string(binding.Transport)),
	)

	var stats domain.ReconcileStats
	pushed := make(map[string]domain.ToolDescriptor, len(descriptors))
	order := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Name == "" {
			stats.Failed++
			logger.Warn("skipping tool without name")
			continue
		}
		if _, dup := pushed[descriptor.Name]; !dup {
			order = append(order, descriptor.Name)
		}
		pushed[descriptor.Name] = descriptor
	}

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		descriptor := pushed[name]
		def, outcome, err := reg.Apply(ctx, name, upsertRemote(binding, descriptor, policy))
		if err != nil {
			stats.Failed++
			logger.Warn("tool reconcile failed", zap.String("tool", name), zap.Error(err))
			continue
		}
		switch outcome {
		case registry.OutcomeInserted:
			stats.Added++
			logger.Debug("tool added", zap.String("tool", name), zap.String("id", def.ID))
		case registry.OutcomeUpdated:
			stats.Updated++
			logger.Debug("tool updated", zap.String("tool", name), zap.String("status", string(def.Status)))
		default:
			stats.Unchanged++
		}
	}

	if policy.DisableMissing {
		existing, err := reg.ByKind(ctx, domain.ToolKindRemote)
		if err != nil {
			return stats, fmt.Errorf("list remote tools: %w", err)
		}
		key := binding.Key()
		for _, def := range existing {
			if _, present := pushed[def.Name]; present {
				continue
			}
			if def.Binding.Normalized().Key() != key || def.Status == domain.ToolStatusDisabled {
				continue
			}
			_, outcome, err := reg.Apply(ctx, def.Name, disableIfBound(key))
			if err != nil {
				stats.Failed++
				logger.Warn("tool disable failed", zap.String("tool", def.Name), zap.Error(err))
				continue
			}
			if outcome == registry.OutcomeUpdated {
				stats.Disabled++
				logger.Info("tool disabled", zap.String("tool", def.Name))
			}
		}
	}

	logger.Info("reconcile pass completed",
		zap.Int("added", stats.Added),
		zap.Int("updated", stats.Updated),
		zap.Int("disabled", stats.Disabled),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func upsertRemote(binding domain.Binding, descriptor domain.ToolDescriptor, policy domain.ReconcilePolicy) registry.MutateFunc {
	return func(current domain.ToolDefinition, found bool) (domain.ToolDefinition, bool) {
		if !found {
			return domain.ToolDefinition{
				Name:        descriptor.Name,
				Description: descriptor.Description,
				ParamSchema: descriptor.InputSchema,
				Kind:        domain.ToolKindRemote,
				Status:      domain.ToolStatusEnabled,
				Binding:     binding,
			}, true
		}

		write := false
		if current.Description != descriptor.Description {
			current.Description = descriptor.Description
			write = true
		}
		if !mcpcodec.SchemaEqual(current.ParamSchema, descriptor.InputSchema) {
			current.ParamSchema = descriptor.InputSchema
			write = true
		}
		if current.Kind != domain.ToolKindRemote {
			current.Kind = domain.ToolKindRemote
			write = true
		}
		if !sameBinding(current.Binding, binding) {
			current.Binding = binding
			write = true
		}
		if current.Status == domain.ToolStatusDisabled && policy.ReenableDisabled {
			current.Status = domain.ToolStatusEnabled
			write = true
		}
		return current, write
	}
}

func disableIfBound(key string) registry.MutateFunc {
	return func(current domain.ToolDefinition, found bool) (domain.ToolDefinition, bool) {
		if !found || current.Kind != domain.ToolKindRemote || current.Status == domain.ToolStatusDisabled {
			return current, false
		}
		if current.Binding.Normalized().Key() != key {
			return current, false
		}
		current.Status = domain.ToolStatusDisabled
		return current, true
	}
}

func sameBinding(a, b domain.Binding) bool {
	a, b = a.Normalized(), b.Normalized()
	return a.Key() == b.Key() && maps.Equal(a.Headers, b.Headers)
}
