package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/harperreed/agencyops/db"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyIntoSQLite(t *testing.T) {
	ctx := context.Background()
	src := setupStore(t)

	prospects := store.OpportunityPartition(models.PoolProspect)
	require.NoError(t, src.Create(ctx, prospects, "o1", note{ID: "o1", Text: "lead"}))
	require.NoError(t, src.Create(ctx, store.PackagePartition, "p1", note{ID: "p1", Text: "package"}))
	require.NoError(t, src.Create(ctx, store.AlertPartition, "a1", note{ID: "a1", Text: "alert"}))

	backend, err := db.Open(filepath.Join(t.TempDir(), "copy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	dst := store.New(backend)

	counts, err := store.Copy(ctx, src, dst, true)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[prospects])
	assert.Equal(t, 1, counts[store.PackagePartition])

	var got note
	err = dst.Get(ctx, prospects, "o1", &got)
	assert.ErrorIs(t, err, store.ErrNotFound, "dry run writes nothing")

	_, err = store.Copy(ctx, src, dst, false)
	require.NoError(t, err)

	require.NoError(t, dst.Get(ctx, prospects, "o1", &got))
	assert.Equal(t, "lead", got.Text)
	require.NoError(t, dst.Get(ctx, store.AlertPartition, "a1", &got))
	assert.Equal(t, "alert", got.Text)

	// copying again replaces rather than failing on existing ids
	_, err = store.Copy(ctx, src, dst, false)
	assert.NoError(t, err)
}

func TestPartitionsCoverEveryPool(t *testing.T) {
	parts := store.Partitions()
	for _, pool := range models.LivePools {
		assert.Contains(t, parts, store.OpportunityPartition(pool))
	}
	assert.Contains(t, parts, store.CompletionPartition)
}
