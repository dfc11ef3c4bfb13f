// Copyright (C) 2025 Hearth Labs.
// See LICENSE for copying information.

// Package boltstore implements a kvstore.Store backed by a BoltDB file.
package boltstore

import (
	"context"
	"time"

	"github.com/boltdb/bolt"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/hearthdb/hearth/kvstore"
)

var (
	// Error is a boltstore error.
	Error = errs.Class("boltstore")

	mon = monkit.Package()
)

const (
	// fileMode sets permissions so only the owner can read and write.
	fileMode = 0600

	defaultTimeout = 1 * time.Second
)

// Client is the entrypoint into a bolt data store.
type Client struct {
	log    *zap.Logger
	db     *bolt.DB
	bucket []byte

	Path string
}

// New instantiates a new bolt-backed store at path, keeping all values in a
// single bucket.
func New(log *zap.Logger, path, bucket string) (*Client, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: defaultTimeout})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	return &Client{
		log:    log,
		db:     db,
		bucket: []byte(bucket),
		Path:   path,
	}, nil
}

// Put adds a value to the store.
func (client *Client) Put(ctx context.Context, key kvstore.Key, value kvstore.Value) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(client.bucket).Put([]byte(key), []byte(value))
	}))
}

// Get returns the value for a key.
func (client *Client) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	var value kvstore.Value
	err = client.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(client.bucket).Get([]byte(key))
		if data == nil {
			return kvstore.ErrKeyNotFound.New("%q", key)
		}
		// data is only valid for the duration of the transaction.
		value = append(kvstore.Value{}, data...)
		return nil
	})
	if err != nil {
		if kvstore.ErrKeyNotFound.Has(err) {
			return nil, err
		}
		return nil, Error.Wrap(err)
	}
	return value, nil
}

// Delete removes a key and its value.
func (client *Client) Delete(ctx context.Context, key kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}

	return Error.Wrap(client.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(client.bucket).Delete([]byte(key))
	}))
}

// Range iterates over all items in key order.
func (client *Client) Range(ctx context.Context, fn func(context.Context, kvstore.Key, kvstore.Value) error) (err error) {
	defer mon.Task()(&ctx)(&err)

	return client.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(client.bucket).ForEach(func(k, v []byte) error {
			return fn(ctx, kvstore.Key(k), kvstore.Value(v))
		})
	})
}

// Close closes the bolt client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}
