// Package toolstore persists tool definitions in a bbolt file.
package toolstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"mcpbridge/internal/domain"
)

var errToolIDExists = errors.New("tool id already stored")

// Store implements domain.ToolStore. Records are JSON values keyed by id;
// a second bucket maps names to ids to keep names unique.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

var _ domain.ToolStore = (*Store)(nil)

func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open tool store: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: trimmed}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Save inserts a new record at version 1.
func (s *Store) Save(ctx context.Context, def domain.ToolDefinition) (domain.ToolDefinition, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolDefinition{}, err
	}
	if err := validateRecord(def); err != nil {
		return domain.ToolDefinition{}, err
	}
	stored := def.Clone()
	stored.Version = 1
	err := s.update(func(b buckets) error {
		if b.tools.Get([]byte(stored.ID)) != nil {
			return fmt.Errorf("%w: %s", errToolIDExists, stored.ID)
		}
		if owner := b.names.Get([]byte(stored.Name)); owner != nil {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateToolName, stored.Name)
		}
		return putRecord(b, stored)
	})
	if err != nil {
		return domain.ToolDefinition{}, err
	}
	return stored, nil
}

// Update replaces the record with def.ID when def.Version matches the stored
// version, then bumps the version.
func (s *Store) Update(ctx context.Context, def domain.ToolDefinition) (domain.ToolDefinition, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolDefinition{}, err
	}
	if err := validateRecord(def); err != nil {
		return domain.ToolDefinition{}, err
	}
	stored := def.Clone()
	err := s.update(func(b buckets) error {
		current, ok, err := getRecord(b, stored.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrToolNotFound, stored.ID)
		}
		if current.Version != stored.Version {
			return fmt.Errorf("%w: %s at version %d, stored %d", domain.ErrVersionConflict, stored.Name, stored.Version, current.Version)
		}
		if current.Name != stored.Name {
			if owner := b.names.Get([]byte(stored.Name)); owner != nil {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateToolName, stored.Name)
			}
			if err := b.names.Delete([]byte(current.Name)); err != nil {
				return fmt.Errorf("drop name index %s: %w", current.Name, err)
			}
		}
		stored.CreatedAt = current.CreatedAt
		stored.Version = current.Version + 1
		return putRecord(b, stored)
	})
	if err != nil {
		return domain.ToolDefinition{}, err
	}
	return stored, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (domain.ToolDefinition, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolDefinition{}, false, err
	}
	var (
		def   domain.ToolDefinition
		found bool
	)
	err := s.view(func(b buckets) error {
		var err error
		def, found, err = getRecord(b, id)
		return err
	})
	return def, found, err
}

func (s *Store) FindByName(ctx context.Context, name string) (domain.ToolDefinition, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolDefinition{}, false, err
	}
	var (
		def   domain.ToolDefinition
		found bool
	)
	err := s.view(func(b buckets) error {
		id := b.names.Get([]byte(name))
		if id == nil {
			return nil
		}
		var err error
		def, found, err = getRecord(b, string(id))
		return err
	})
	return def, found, err
}

// FindByNameLike matches name substrings case-insensitively.
func (s *Store) FindByNameLike(ctx context.Context, substr string) ([]domain.ToolDefinition, error) {
	needle := strings.ToLower(substr)
	return s.scan(ctx, func(def domain.ToolDefinition) bool {
		return strings.Contains(strings.ToLower(def.Name), needle)
	})
}

func (s *Store) FindByType(ctx context.Context, kind domain.ToolKind) ([]domain.ToolDefinition, error) {
	return s.scan(ctx, func(def domain.ToolDefinition) bool { return def.Kind == kind })
}

func (s *Store) FindByStatus(ctx context.Context, status domain.ToolStatus) ([]domain.ToolDefinition, error) {
	return s.scan(ctx, func(def domain.ToolDefinition) bool { return def.Status == status })
}

func (s *Store) List(ctx context.Context) ([]domain.ToolDefinition, error) {
	return s.scan(ctx, func(domain.ToolDefinition) bool { return true })
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(b buckets) error {
		deleted, err := deleteRecord(b, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: %s", domain.ErrToolNotFound, id)
		}
		return nil
	})
}

// DeleteByIDs removes every listed record in one transaction and returns how
// many existed. Unknown ids are skipped.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := s.update(func(b buckets) error {
		count = 0
		for _, id := range ids {
			deleted, err := deleteRecord(b, id)
			if err != nil {
				return err
			}
			if deleted {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) scan(ctx context.Context, match func(domain.ToolDefinition) bool) ([]domain.ToolDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.ToolDefinition
	err := s.view(func(b buckets) error {
		return b.tools.ForEach(func(key, value []byte) error {
			var def domain.ToolDefinition
			if err := json.Unmarshal(value, &def); err != nil {
				return fmt.Errorf("decode tool %s: %w", key, err)
			}
			if match(def) {
				out = append(out, def)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) view(fn func(buckets) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.View(func(tx *bolt.Tx) error {
		b, err := openBuckets(tx)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func (s *Store) update(fn func(buckets) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := openBuckets(tx)
		if err != nil {
			return err
		}
		return fn(b)
	})
}

func validateRecord(def domain.ToolDefinition) error {
	if strings.TrimSpace(def.ID) == "" {
		return domain.E(domain.CodeInvalidArgument, "toolstore", "tool id is required", nil)
	}
	if strings.TrimSpace(def.Name) == "" {
		return domain.E(domain.CodeInvalidArgument, "toolstore", "tool name is required", nil)
	}
	return nil
}

func getRecord(b buckets, id string) (domain.ToolDefinition, bool, error) {
	raw := b.tools.Get([]byte(id))
	if raw == nil {
		return domain.ToolDefinition{}, false, nil
	}
	var def domain.ToolDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.ToolDefinition{}, false, fmt.Errorf("decode tool %s: %w", id, err)
	}
	return def, true, nil
}

func putRecord(b buckets, def domain.ToolDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode tool %s: %w", def.Name, err)
	}
	if err := b.tools.Put([]byte(def.ID), raw); err != nil {
		return fmt.Errorf("write tool %s: %w", def.Name, err)
	}
	if err := b.names.Put([]byte(def.Name), []byte(def.ID)); err != nil {
		return fmt.Errorf("write name index %s: %w", def.Name, err)
	}
	return nil
}

func deleteRecord(b buckets, id string) (bool, error) {
	current, ok, err := getRecord(b, id)
	if err != nil || !ok {
		return false, err
	}
	if err := b.tools.Delete([]byte(id)); err != nil {
		return false, fmt.Errorf("delete tool %s: %w", id, err)
	}
	if owner := b.names.Get([]byte(current.Name)); string(owner) == id {
		if err := b.names.Delete([]byte(current.Name)); err != nil {
			return false, fmt.Errorf("drop name index %s: %w", current.Name, err)
		}
	}
	return true, nil
}
