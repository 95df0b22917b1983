// Package store defines the backing store interface and implementations.
package store

import "errors"

// ErrUnknownBackend is returned by New for a backend name it does not know.
var ErrUnknownBackend = errors.New("unknown store backend")

// Entry is a single key/value pair written as part of a batch.
type Entry struct {
	Key   string
	Value string
}

// Store is the interface that all backing stores must implement.
// It operates on named collections, where each collection is a flat
// namespace of string values keyed by a string identifier.
type Store interface {
	// Get returns the value stored under key. The boolean is false if the
	// key does not exist.
	Get(collection, key string) (string, bool, error)

	// Put inserts or replaces a value.
	Put(collection, key, value string) error

	// PutBatch writes every entry or none of them. Later entries win when
	// the same key appears more than once.
	PutBatch(collection string, entries []Entry) error

	// Delete removes a value. Returns true if it existed.
	Delete(collection, key string) (bool, error)

	// Contains reports whether key exists in the collection.
	Contains(collection, key string) (bool, error)

	// Count returns the number of keys in the collection.
	Count(collection string) (int, error)

	// Clear removes every key of the collection. Other collections are
	// left untouched.
	Clear(collection string) error

	// Keys returns the keys of a collection in sorted order.
	Keys(collection string) ([]string, error)

	// ListCollections returns the names of all collections that contain data.
	ListCollections() ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}
