// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

// Package testsuite implements the contract tests every kvstore.Store
// backend must pass.
package testsuite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hearthdb/hearth/internal/testcontext"
	"github.com/hearthdb/hearth/kvstore"
)

// RunTests runs the contract tests against the given store.
func RunTests(t *testing.T, store kvstore.Store) {
	t.Run("CRUD", func(t *testing.T) { testCRUD(t, store) })
	t.Run("EmptyKey", func(t *testing.T) { testEmptyKey(t, store) })
	t.Run("Range", func(t *testing.T) { testRange(t, store) })
}

func testCRUD(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	key := kvstore.Key("snapshots/0001/data.json")
	value := kvstore.Value(`{"tables":[]}`)

	_, err := store.Get(ctx, key)
	require.Error(t, err)
	require.True(t, kvstore.ErrKeyNotFound.Has(err))

	require.NoError(t, store.Put(ctx, key, value))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, value, got)

	// overwrite
	value2 := kvstore.Value(`{"tables":[{"name":"notes"}]}`)
	require.NoError(t, store.Put(ctx, key, value2))
	got, err = store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, value2, got)

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	require.True(t, kvstore.ErrKeyNotFound.Has(err))

	// deleting a missing key is not an error
	require.NoError(t, store.Delete(ctx, key))
}

func testEmptyKey(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	err := store.Put(ctx, kvstore.Key(""), kvstore.Value("x"))
	require.Error(t, err)
	require.True(t, kvstore.ErrEmptyKey.Has(err))

	_, err = store.Get(ctx, kvstore.Key(""))
	require.Error(t, err)
	require.True(t, kvstore.ErrEmptyKey.Has(err))
}

func testRange(t *testing.T, store kvstore.Store) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	items := map[string]string{
		"snapshots/a/data.json":   "1",
		"snapshots/a/schema.json": "2",
		"snapshots/b/schema.json": "3",
	}
	for key, value := range items {
		require.NoError(t, store.Put(ctx, kvstore.Key(key), kvstore.Value(value)))
	}

	seen := map[string]string{}
	err := store.Range(ctx, func(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
		seen[key.String()] = string(value)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, items, seen)

	for key := range items {
		require.NoError(t, store.Delete(ctx, kvstore.Key(key)))
	}
}
