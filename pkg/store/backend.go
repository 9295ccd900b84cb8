package store

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable wraps any failure to reach the coordination service.
	ErrUnavailable = errors.New("store: coordination service unavailable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
	// ErrCompacted means a watch asked for history the backend no longer has.
	ErrCompacted = errors.New("store: revision compacted")
	// ErrWatchTerminated is recorded on a subscription that stopped for any
	// reason other than Cancel or Close.
	ErrWatchTerminated = errors.New("store: watch terminated")
)

// KeyValue is a raw key and its JSON bytes.
type KeyValue struct {
	Key      string
	Value    []byte
	Revision int64 // revision of the last modification
}

// Event is one change observed by a watch.
type Event struct {
	Key      string
	Value    []byte
	Deleted  bool
	Revision int64
}

// WatchOptions selects what a backend watch observes.
type WatchOptions struct {
	Prefix       bool
	FromRevision int64 // 0 means changes after the current revision
}

// WatchResponse carries a batch of events or a terminal error.
// A response with Err set is the last one sent on its channel.
type WatchResponse struct {
	Events []Event
	Err    error
}

// Backend is the coordination-service primitive a Store is built on.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns nil, nil when key is absent.
	Get(ctx context.Context, key string) (*KeyValue, error)
	Put(ctx context.Context, key string, value []byte) (int64, error)
	// Delete removes key, or every key under it when prefix is set, and
	// returns the number of keys removed.
	Delete(ctx context.Context, key string, prefix bool) (int64, error)
	// List returns the keys under prefix sorted by key.
	List(ctx context.Context, prefix string) ([]KeyValue, error)
	Revision(ctx context.Context) (int64, error)
	// Watch streams changes until ctx is cancelled or the stream fails.
	// The channel is closed in both cases.
	Watch(ctx context.Context, key string, opts WatchOptions) <-chan WatchResponse
	Close() error
}
