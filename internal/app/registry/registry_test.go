package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbridge/internal/domain"
	"mcpbridge/internal/infra/toolstore"
)

var start = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T, store domain.ToolStore) (*Registry, clockwork.FakeClock) {
	t.Helper()
	if store == nil {
		opened, err := toolstore.Open(filepath.Join(t.TempDir(), "tools.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = opened.Close() })
		store = opened
	}
	clock := clockwork.NewFakeClockAt(start)
	var seq atomic.Int64
	return New(Options{
		Store: store,
		Clock: clock,
		NewID: func() string { return fmt.Sprintf("tool-%d", seq.Add(1)) },
	}), clock
}

func TestRegistry_UpsertInsertDefaults(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	def, err := reg.Upsert(context.Background(), domain.ToolDefinition{
		Name:        "echo",
		Description: "echo",
		ParamSchema: json.RawMessage(`{"type":"object"}`),
	})
	require.NoError(t, err)

	expect := domain.ToolDefinition{
		ID:          "tool-1",
		Name:        "echo",
		Description: "echo",
		ParamSchema: json.RawMessage(`{"type":"object"}`),
		Kind:        domain.ToolKindLocal,
		Status:      domain.ToolStatusEnabled,
		CreatedAt:   start,
		UpdatedAt:   start,
		Version:     1,
	}
	if diff := cmp.Diff(expect, def); diff != "" {
		t.Fatalf("upsert mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_UpsertPreservesIdentity(t *testing.T) {
	reg, clock := newTestRegistry(t, nil)
	ctx := context.Background()

	first, err := reg.Upsert(ctx, domain.ToolDefinition{Name: "echo", Kind: domain.ToolKindRemote})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	changed := first
	changed.Description = "now documented"
	second, err := reg.Upsert(ctx, changed)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, start, second.CreatedAt)
	assert.Equal(t, start.Add(time.Minute), second.UpdatedAt)
	assert.Equal(t, uint64(2), second.Version)
	assert.Equal(t, domain.ToolKindRemote, second.Kind)

	_, err = reg.Upsert(ctx, domain.ToolDefinition{Name: "echo"})
	require.ErrorIs(t, err, domain.ErrDuplicateToolName)

	_, err = reg.Upsert(ctx, domain.ToolDefinition{Name: "  "})
	code, _ := domain.CodeFrom(err)
	require.Equal(t, domain.CodeInvalidArgument, code)
}

func TestRegistry_ApplyOutcomes(t *testing.T) {
	reg, clock := newTestRegistry(t, nil)
	ctx := context.Background()

	setDescription := func(desc string) MutateFunc {
		return func(current domain.ToolDefinition, found bool) (domain.ToolDefinition, bool) {
			if found && current.Description == desc {
				return current, false
			}
			current.Description = desc
			current.Kind = domain.ToolKindRemote
			return current, true
		}
	}

	def, outcome, err := reg.Apply(ctx, "search", setDescription("v1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, outcome)
	assert.Equal(t, domain.ToolStatusEnabled, def.Status)

	clock.Advance(time.Second)
	same, outcome, err := reg.Apply(ctx, "search", setDescription("v1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, outcome)
	if diff := cmp.Diff(def, same); diff != "" {
		t.Fatalf("unchanged apply rewrote record (-want +got):\n%s", diff)
	}

	updated, outcome, err := reg.Apply(ctx, "search", setDescription("v2"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, def.ID, updated.ID)
	assert.Equal(t, start.Add(time.Second), updated.UpdatedAt)
	assert.Equal(t, "updated", outcome.String())
}

type conflictOnceStore struct {
	domain.ToolStore
	conflicts atomic.Int64
}

func (s *conflictOnceStore) Update(ctx context.Context, def domain.ToolDefinition) (domain.ToolDefinition, error) {
	if s.conflicts.Add(1) == 1 {
		return domain.ToolDefinition{}, domain.ErrVersionConflict
	}
	return s.ToolStore.Update(ctx, def)
}

func TestRegistry_ApplyRetriesVersionConflictOnce(t *testing.T) {
	inner, err := toolstore.Open(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })
	store := &conflictOnceStore{ToolStore: inner}
	reg, _ := newTestRegistry(t, store)
	ctx := context.Background()

	_, err = reg.Upsert(ctx, domain.ToolDefinition{Name: "echo"})
	require.NoError(t, err)

	calls := 0
	def, outcome, err := reg.Apply(ctx, "echo", func(current domain.ToolDefinition, found bool) (domain.ToolDefinition, bool) {
		calls++
		current.Status = domain.ToolStatusDisabled
		return current, true
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, domain.ToolStatusDisabled, def.Status)
	assert.Equal(t, 2, calls)
}

func TestRegistry_ConcurrentApplySameName(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := reg.Apply(ctx, "shared", func(current domain.ToolDefinition, found bool) (domain.ToolDefinition, bool) {
				current.Description = fmt.Sprintf("writer %d", i)
				return current, true
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, uint64(8), all[0].Version)
}

func TestRegistry_QueriesAndStatus(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	local, err := reg.Upsert(ctx, domain.ToolDefinition{Name: "Local_Echo"})
	require.NoError(t, err)
	remote, err := reg.Upsert(ctx, domain.ToolDefinition{Name: "remote_echo", Kind: domain.ToolKindRemote})
	require.NoError(t, err)
	_, err = reg.Upsert(ctx, domain.ToolDefinition{Name: "remote_sum", Kind: domain.ToolKindRemote})
	require.NoError(t, err)

	disabled, err := reg.SetStatus(ctx, remote.ID, domain.ToolStatusDisabled)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())

	again, err := reg.SetStatus(ctx, remote.ID, domain.ToolStatusDisabled)
	require.NoError(t, err)
	assert.Equal(t, disabled.Version, again.Version)

	_, err = reg.SetStatus(ctx, "nope", domain.ToolStatusDisabled)
	require.ErrorIs(t, err, domain.ErrToolNotFound)
	_, err = reg.SetStatus(ctx, remote.ID, "PAUSED")
	require.Error(t, err)

	names := func(defs []domain.ToolDefinition) []string {
		out := make([]string, 0, len(defs))
		for _, def := range defs {
			out = append(out, def.Name)
		}
		return out
	}

	echo, err := reg.SearchByName(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, []string{"Local_Echo", "remote_echo"}, names(echo))

	remotes, err := reg.ByKind(ctx, domain.ToolKindRemote)
	require.NoError(t, err)
	assert.Equal(t, []string{"remote_echo", "remote_sum"}, names(remotes))

	off, err := reg.ByStatus(ctx, domain.ToolStatusDisabled)
	require.NoError(t, err)
	assert.Equal(t, []string{"remote_echo"}, names(off))

	filtered, err := reg.Search(ctx, domain.ToolFilter{Kind: domain.ToolKindRemote, Status: domain.ToolStatusEnabled})
	require.NoError(t, err)
	assert.Equal(t, []string{"remote_sum"}, names(filtered))

	got, err := reg.Get(ctx, local.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(local, got, cmpopts.IgnoreFields(domain.ToolDefinition{}, "UpdatedAt")); diff != "" {
		t.Fatalf("get mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_Delete(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	a, err := reg.Upsert(ctx, domain.ToolDefinition{Name: "a"})
	require.NoError(t, err)
	b, err := reg.Upsert(ctx, domain.ToolDefinition{Name: "b"})
	require.NoError(t, err)
	c, err := reg.Upsert(ctx, domain.ToolDefinition{Name: "c"})
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, a.ID))
	_, err = reg.Get(ctx, a.ID)
	require.ErrorIs(t, err, domain.ErrToolNotFound)

	count, err := reg.DeleteMany(ctx, []string{b.ID, c.ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
