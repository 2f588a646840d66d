// ABOUTME: Tests for the SQLite record backend
// ABOUTME: Runs the record store over a temp-file database, including concurrent writers
package db

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestBackend(t *testing.T) *RecordBackend {
	t.Helper()
	b, err := Open(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRecordBackendGetSetDelete(t *testing.T) {
	b := setupTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, func(tx store.Tx) error {
		return tx.Set([]byte("alert/a1"), []byte(`{"id":"a1"}`))
	}))

	require.NoError(t, b.View(ctx, func(tx store.Tx) error {
		v, err := tx.Get([]byte("alert/a1"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"a1"}`, string(v))

		_, err = tx.Get([]byte("alert/missing"))
		assert.ErrorIs(t, err, store.ErrNotFound)

		assert.Error(t, tx.Set([]byte("alert/x"), []byte("{}")), "view must reject writes")
		return nil
	}))

	require.NoError(t, b.Update(ctx, func(tx store.Tx) error {
		return tx.Delete([]byte("alert/a1"))
	}))
	require.NoError(t, b.View(ctx, func(tx store.Tx) error {
		_, err := tx.Get([]byte("alert/a1"))
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}

func TestRecordBackendRollback(t *testing.T) {
	b := setupTestBackend(t)
	ctx := context.Background()

	err := b.Update(ctx, func(tx store.Tx) error {
		if err := tx.Set([]byte("package/p1"), []byte("{}")); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	require.NoError(t, b.View(ctx, func(tx store.Tx) error {
		_, err := tx.Get([]byte("package/p1"))
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
}

func TestRecordBackendScanStaysInPrefix(t *testing.T) {
	b := setupTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, func(tx store.Tx) error {
		for _, k := range []string{"package/b", "package/a", "packages/z", "alert/a"} {
			if err := tx.Set([]byte(k), []byte("{}")); err != nil {
				return err
			}
		}
		return nil
	}))

	var keys []string
	require.NoError(t, b.View(ctx, func(tx store.Tx) error {
		return tx.Scan([]byte("package/"), func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	}))
	assert.Equal(t, []string{"package/a", "package/b"}, keys)
}

func TestStoreOverSQLite(t *testing.T) {
	s := store.New(setupTestBackend(t))
	ctx := context.Background()

	type rec struct {
		ID string `json:"id"`
		N  int    `json:"n"`
	}
	from := store.OpportunityPartition(models.PoolNurture)
	to := store.OpportunityPartition(models.PoolActiveDeal)
	require.NoError(t, s.Create(ctx, from, "o1", rec{ID: "o1"}))

	require.NoError(t, s.Update(ctx, func(tx *store.Txn) error {
		return tx.Relocate(from, to, "o1", rec{ID: "o1", N: 1})
	}))

	inFrom, err := store.Query[rec](ctx, s, from, nil)
	require.NoError(t, err)
	assert.Empty(t, inFrom)

	inTo, err := store.Query[rec](ctx, s, to, nil)
	require.NoError(t, err)
	require.Len(t, inTo, 1)
	assert.Equal(t, 1, inTo[0].N)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Patch(ctx, s, to, "o1", func(r *rec) error {
				r.N++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var final rec
	require.NoError(t, s.Get(ctx, to, "o1", &final))
	assert.Equal(t, 11, final.N)
}
