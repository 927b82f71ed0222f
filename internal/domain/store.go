package domain

import "context"

// ToolStore is the durable record store behind the tool registry.
//
// Save assigns nothing; callers provide ID and timestamps. Update is a
// compare-and-swap on Version and fails with ErrVersionConflict when the
// stored record moved on. Name uniqueness is enforced by the store.
type ToolStore interface {
	Save(ctx context.Context, def ToolDefinition) (ToolDefinition, error)
	Update(ctx context.Context, def ToolDefinition) (ToolDefinition, error)
	FindByID(ctx context.Context, id string) (ToolDefinition, bool, error)
	FindByName(ctx context.Context, name string) (ToolDefinition, bool, error)
	FindByNameLike(ctx context.Context, substr string) ([]ToolDefinition, error)
	FindByType(ctx context.Context, kind ToolKind) ([]ToolDefinition, error)
	FindByStatus(ctx context.Context, status ToolStatus) ([]ToolDefinition, error)
	List(ctx context.Context) ([]ToolDefinition, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}
