package toolstore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"mcpbridge/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func sampleTool(id, name string) domain.ToolDefinition {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return domain.ToolDefinition{
		ID:          id,
		Name:        name,
		Description: name + " tool",
		ParamSchema: json.RawMessage(`{"type":"object"}`),
		Kind:        domain.ToolKindRemote,
		Status:      domain.ToolStatusEnabled,
		Binding: domain.Binding{
			URL:       "http://127.0.0.1:9899",
			Transport: domain.TransportEventStream,
			Headers:   map[string]string{"Authorization": "Bearer x"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStoreSaveAndFind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, sampleTool("id-1", "search"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), saved.Version)

	byID, ok, err := store.FindByID(ctx, "id-1")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(saved, byID); diff != "" {
		t.Fatalf("FindByID mismatch (-want +got):\n%s", diff)
	}

	byName, ok, err := store.FindByName(ctx, "search")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "id-1", byName.ID)

	_, ok, err = store.FindByName(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreRejectsDuplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, sampleTool("id-1", "search"))
	require.NoError(t, err)

	_, err = store.Save(ctx, sampleTool("id-2", "search"))
	require.ErrorIs(t, err, domain.ErrDuplicateToolName)

	_, err = store.Save(ctx, sampleTool("id-1", "other"))
	require.ErrorIs(t, err, errToolIDExists)

	_, err = store.Save(ctx, sampleTool("", "nameless"))
	code, _ := domain.CodeFrom(err)
	require.Equal(t, domain.CodeInvalidArgument, code)
}

func TestStoreUpdateCompareAndSwap(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	saved, err := store.Save(ctx, sampleTool("id-1", "search"))
	require.NoError(t, err)

	changed := saved
	changed.Description = "new description"
	updated, err := store.Update(ctx, changed)
	require.NoError(t, err)
	require.Equal(t, uint64(2), updated.Version)
	require.Equal(t, saved.CreatedAt, updated.CreatedAt)

	stale := saved
	stale.Status = domain.ToolStatusDisabled
	_, err = store.Update(ctx, stale)
	require.ErrorIs(t, err, domain.ErrVersionConflict)

	current, _, err := store.FindByID(ctx, "id-1")
	require.NoError(t, err)
	require.Equal(t, "new description", current.Description)
	require.Equal(t, domain.ToolStatusEnabled, current.Status)

	missing := sampleTool("id-9", "ghost")
	_, err = store.Update(ctx, missing)
	require.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestStoreUpdateRenameMovesIndex(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, sampleTool("id-1", "alpha"))
	require.NoError(t, err)
	_, err = store.Save(ctx, sampleTool("id-2", "beta"))
	require.NoError(t, err)

	clash := first
	clash.Name = "beta"
	_, err = store.Update(ctx, clash)
	require.ErrorIs(t, err, domain.ErrDuplicateToolName)

	renamed := first
	renamed.Name = "gamma"
	_, err = store.Update(ctx, renamed)
	require.NoError(t, err)

	_, ok, err := store.FindByName(ctx, "alpha")
	require.NoError(t, err)
	require.False(t, ok)
	got, ok, err := store.FindByName(ctx, "gamma")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "id-1", got.ID)
}

func TestStoreQueries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	local := sampleTool("id-1", "Local_Echo")
	local.Kind = domain.ToolKindLocal
	disabled := sampleTool("id-2", "remote_search")
	disabled.Status = domain.ToolStatusDisabled
	for _, def := range []domain.ToolDefinition{local, disabled, sampleTool("id-3", "remote_echo")} {
		_, err := store.Save(ctx, def)
		require.NoError(t, err)
	}

	names := func(defs []domain.ToolDefinition) []string {
		out := make([]string, 0, len(defs))
		for _, def := range defs {
			out = append(out, def.Name)
		}
		return out
	}

	like, err := store.FindByNameLike(ctx, "ECHO")
	require.NoError(t, err)
	require.Equal(t, []string{"Local_Echo", "remote_echo"}, names(like))

	remote, err := store.FindByType(ctx, domain.ToolKindRemote)
	require.NoError(t, err)
	require.Equal(t, []string{"remote_echo", "remote_search"}, names(remote))

	off, err := store.FindByStatus(ctx, domain.ToolStatusDisabled)
	require.NoError(t, err)
	require.Equal(t, []string{"remote_search"}, names(off))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, def := range []domain.ToolDefinition{sampleTool("id-1", "a"), sampleTool("id-2", "b"), sampleTool("id-3", "c")} {
		_, err := store.Save(ctx, def)
		require.NoError(t, err)
	}

	require.NoError(t, store.DeleteByID(ctx, "id-1"))
	require.ErrorIs(t, store.DeleteByID(ctx, "id-1"), domain.ErrToolNotFound)

	count, err := store.DeleteByIDs(ctx, []string{"id-2", "id-3", "id-404"})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	_, err = store.Save(ctx, sampleTool("id-4", "a"))
	require.NoError(t, err)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tools.db")
	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Save(context.Background(), sampleTool("id-1", "search"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()
	got, ok, err := reopened.FindByName(context.Background(), "search")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]string{"Authorization": "Bearer x"}, got.Binding.Headers)
}

func TestStoreClosed(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.List(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreClosed)
	_, err = store.Save(context.Background(), sampleTool("id-1", "x"))
	require.ErrorIs(t, err, domain.ErrStoreClosed)
}

func TestStoreRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.db")
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucketName))
		if err != nil {
			return err
		}
		meta, err := root.CreateBucketIfNotExists([]byte(metaBucketName))
		if err != nil {
			return err
		}
		return writeSchemaVersion(meta, schemaVersion+1)
	}))
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.ErrorContains(t, err, "unsupported tool store schema version")
}

func TestStoreCanceledContext(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.List(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
