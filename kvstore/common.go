// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

// Package kvstore declares the blob-store contract snapshot payloads are
// written through.
package kvstore

import (
	"bytes"
	"context"

	"github.com/zeebo/errs"
)

// Delimiter separates nested paths in storage keys.
const Delimiter = '/'

var (
	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errs.Class("key not found")

	// ErrEmptyKey is returned when an empty key is used in Put or Get.
	ErrEmptyKey = errs.Class("empty key")
)

// Key is the type for the keys in a Store.
type Key []byte

// Value is the type for the values in a Store.
type Value []byte

// Store describes the key/value stores snapshot payloads live in, like
// boltdb and redis.
type Store interface {
	// Put adds a value to the store.
	Put(context.Context, Key, Value) error
	// Get returns the value for a key, or ErrKeyNotFound.
	Get(context.Context, Key) (Value, error)
	// Delete removes a key and its value. Deleting a missing key is not an error.
	Delete(context.Context, Key) error
	// Range iterates over all items in unspecified order.
	// Key and Value are valid only for the duration of the callback.
	Range(ctx context.Context, fn func(context.Context, Key, Value) error) error
	// Close closes the store.
	Close() error
}

// IsZero returns true when the key is empty.
func (key Key) IsZero() bool { return len(key) == 0 }

// IsZero returns true when the value is empty.
func (value Value) IsZero() bool { return len(value) == 0 }

// String implements the Stringer interface.
func (key Key) String() string { return string(key) }

// Equal returns whether key and b are equal.
func (key Key) Equal(b Key) bool { return bytes.Equal(key, b) }
