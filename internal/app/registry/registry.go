// Package registry is the tool registry service. It owns every write to the
// tool store and stamps identities and timestamps.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"mcpbridge/internal/domain"
)

// Outcome reports what Apply did to the stored record.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeInserted
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// MutateFunc receives the current record for a name, or found=false when
// none exists, and returns the desired record. Returning write=false leaves
// the store untouched.
type MutateFunc func(current domain.ToolDefinition, found bool) (next domain.ToolDefinition, write bool)

type Registry struct {
	logger *zap.Logger
	store  domain.ToolStore
	clock  clockwork.Clock
	newID  func() string
	locks  *nameLocks
}

type Options struct {
	Logger *zap.Logger
	Store  domain.ToolStore
	Clock  clockwork.Clock
	// NewID generates identities for inserted records. Defaults to UUIDv4.
	NewID func() string
}

func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}
	return &Registry{
		logger: logger.Named("registry"),
		store:  opts.Store,
		clock:  clock,
		newID:  newID,
		locks:  newNameLocks(),
	}
}

// Upsert inserts def when it has no identity, assigning one with fresh
// timestamps and ENABLED status by default. With an identity it refreshes
// the updated timestamp and keeps the identity and creation time.
func (r *Registry) Upsert(ctx context.Context, def domain.ToolDefinition) (domain.ToolDefinition, error) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return domain.ToolDefinition{}, domain.E(domain.CodeInvalidArgument, "registry.upsert", "tool name is required", nil)
	}
	unlock := r.locks.lock(def.Name)
	defer unlock()

	if def.ID != "" {
		current, found, err := r.store.FindByID(ctx, def.ID)
		if err != nil {
			return domain.ToolDefinition{}, err
		}
		if found {
			next := def.Clone()
			next.CreatedAt = current.CreatedAt
			next.UpdatedAt = r.clock.Now()
			if next.Version == 0 {
				next.Version = current.Version
			}
			if next.Status == "" {
				next.Status = current.Status
			}
			if next.Kind == "" {
				next.Kind = current.Kind
			}
			return r.store.Update(ctx, next)
		}
	}
	return r.insert(ctx, def)
}

func (r *Registry) insert(ctx context.Context, def domain.ToolDefinition) (domain.ToolDefinition, error) {
	next := def.Clone()
	if next.ID == "" {
		next.ID = r.newID()
	}
	if next.Status == "" {
		next.Status = domain.ToolStatusEnabled
	}
	if next.Kind == "" {
		next.Kind = domain.ToolKindLocal
	}
	now := r.clock.Now()
	next.CreatedAt = now
	next.UpdatedAt = now
	next.Version = 0
	return r.store.Save(ctx, next)
}

// Apply runs a read-compare-write for one name while holding that name's
// lock. A compare-and-swap conflict from a writer outside this process is
// retried once against a fresh read.
func (r *Registry) Apply(ctx context.Context, name string, mutate MutateFunc) (domain.ToolDefinition, Outcome, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ToolDefinition{}, OutcomeUnchanged, domain.E(domain.CodeInvalidArgument, "registry.apply", "tool name is required", nil)
	}
	unlock := r.locks.lock(name)
	defer unlock()

	def, outcome, err := r.applyOnce(ctx, name, mutate)
	if errors.Is(err, domain.ErrVersionConflict) {
		r.logger.Debug("retrying after version conflict", zap.String("tool", name))
		def, outcome, err = r.applyOnce(ctx, name, mutate)
	}
	return def, outcome, err
}

func (r *Registry) applyOnce(ctx context.Context, name string, mutate MutateFunc) (domain.ToolDefinition, Outcome, error) {
	current, found, err := r.store.FindByName(ctx, name)
	if err != nil {
		return domain.ToolDefinition{}, OutcomeUnchanged, err
	}
	var snapshot domain.ToolDefinition
	if found {
		snapshot = current.Clone()
	}
	next, write := mutate(snapshot, found)
	if !write {
		return current, OutcomeUnchanged, nil
	}
	next.Name = name
	if !found {
		next.ID = ""
		saved, err := r.insert(ctx, next)
		return saved, OutcomeInserted, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version
	next.UpdatedAt = r.clock.Now()
	updated, err := r.store.Update(ctx, next)
	return updated, OutcomeUpdated, err
}

func (r *Registry) Get(ctx context.Context, id string) (domain.ToolDefinition, error) {
	def, found, err := r.store.FindByID(ctx, id)
	if err != nil {
		return domain.ToolDefinition{}, err
	}
	if !found {
		return domain.ToolDefinition{}, fmt.Errorf("%w: id %s", domain.ErrToolNotFound, id)
	}
	return def, nil
}

// FindByName is the exact-name lookup.
func (r *Registry) FindByName(ctx context.Context, name string) (domain.ToolDefinition, bool, error) {
	return r.store.FindByName(ctx, name)
}

// SearchByName matches a case-insensitive name substring.
func (r *Registry) SearchByName(ctx context.Context, substr string) ([]domain.ToolDefinition, error) {
	return r.store.FindByNameLike(ctx, substr)
}

func (r *Registry) ByKind(ctx context.Context, kind domain.ToolKind) ([]domain.ToolDefinition, error) {
	return r.store.FindByType(ctx, kind)
}

func (r *Registry) ByStatus(ctx context.Context, status domain.ToolStatus) ([]domain.ToolDefinition, error) {
	return r.store.FindByStatus(ctx, status)
}

func (r *Registry) List(ctx context.Context) ([]domain.ToolDefinition, error) {
	return r.store.List(ctx)
}

// Search applies every non-zero field of filter.
func (r *Registry) Search(ctx context.Context, filter domain.ToolFilter) ([]domain.ToolDefinition, error) {
	var (
		defs []domain.ToolDefinition
		err  error
	)
	switch {
	case filter.NameSubstr != "":
		defs, err = r.store.FindByNameLike(ctx, filter.NameSubstr)
	case filter.Kind != "":
		defs, err = r.store.FindByType(ctx, filter.Kind)
	case filter.Status != "":
		defs, err = r.store.FindByStatus(ctx, filter.Status)
	default:
		defs, err = r.store.List(ctx)
	}
	if err != nil {
		return nil, err
	}
	out := defs[:0]
	for _, def := range defs {
		if filter.Kind != "" && def.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && def.Status != filter.Status {
			continue
		}
		out = append(out, def)
	}
	return out, nil
}

// SetStatus flips a record's status. Setting the current status is a no-op.
func (r *Registry) SetStatus(ctx context.Context, id string, status domain.ToolStatus) (domain.ToolDefinition, error) {
	if status != domain.ToolStatusEnabled && status != domain.ToolStatusDisabled {
		return domain.ToolDefinition{}, domain.E(domain.CodeInvalidArgument, "registry.set_status", fmt.Sprintf("unknown status %q", status), nil)
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.ToolDefinition{}, err
	}
	def, _, err := r.Apply(ctx, current.Name, func(existing domain.ToolDefinition, found bool) (domain.ToolDefinition, bool) {
		if !found || existing.ID != id || existing.Status == status {
			return existing, false
		}
		existing.Status = status
		return existing, true
	})
	if err != nil {
		return domain.ToolDefinition{}, err
	}
	if def.ID != id {
		return domain.ToolDefinition{}, fmt.Errorf("%w: id %s", domain.ErrToolNotFound, id)
	}
	r.logger.Info("tool status set", zap.String("tool", def.Name), zap.String("status", string(def.Status)))
	return def, nil
}

// Delete is administrative only; synchronization never calls it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteByID(ctx, id); err != nil {
		return err
	}
	r.logger.Info("tool deleted", zap.String("id", id))
	return nil
}

// DeleteMany removes the listed records and reports how many existed.
func (r *Registry) DeleteMany(ctx context.Context, ids []string) (int, error) {
	count, err := r.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	r.logger.Info("tools deleted", zap.Int("requested", len(ids)), zap.Int("deleted", count))
	return count, nil
}
