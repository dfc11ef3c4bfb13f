// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

// Package teststore implements an in-memory store for testing.
package teststore

import (
	"context"
	"sort"
	"sync"

	"github.com/hearthdb/hearth/kvstore"
)

// Client implements an in-memory kvstore.Store.
type Client struct {
	mu sync.Mutex

	items  map[string]kvstore.Value
	forced error

	CallCount struct {
		Put    int
		Get    int
		Delete int
		Range  int
	}
}

// New creates a new in-memory store.
func New() *Client {
	return &Client{items: map[string]kvstore.Value{}}
}

// SetError forces every following operation to fail with err until cleared
// with SetError(nil).
func (store *Client) SetError(err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.forced = err
}

// Put adds a value to the store.
func (store *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Put++
	if store.forced != nil {
		return store.forced
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	store.items[key.String()] = append(kvstore.Value{}, value...)
	return nil
}

// Get returns the value for a key.
func (store *Client) Get(ctx context.Context, key kvstore.Key) (kvstore.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Get++
	if store.forced != nil {
		return nil, store.forced
	}
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	value, ok := store.items[key.String()]
	if !ok {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	return append(kvstore.Value{}, value...), nil
}

// Delete removes a key and its value.
func (store *Client) Delete(ctx context.Context, key kvstore.Key) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.CallCount.Delete++
	if store.forced != nil {
		return store.forced
	}
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	delete(store.items, key.String())
	return nil
}

// Range iterates over all items in key order.
func (store *Client) Range(ctx context.Context, fn func(context.Context, kvstore.Key, kvstore.Value) error) error {
	store.mu.Lock()
	store.CallCount.Range++
	if forced := store.forced; forced != nil {
		store.mu.Unlock()
		return forced
	}
	keys := make([]string, 0, len(store.items))
	for key := range store.items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	items := make([]kvstore.Value, 0, len(keys))
	for _, key := range keys {
		items = append(items, append(kvstore.Value{}, store.items[key]...))
	}
	store.mu.Unlock()

	for i, key := range keys {
		if err := fn(ctx, kvstore.Key(key), items[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the store.
func (store *Client) Close() error { return nil }
