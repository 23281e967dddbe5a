// Package store defines the remote collection client used by the editors and
// an in-memory implementation of it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Snapshot is the full state of one collection at a point in time.
type Snapshot struct {
	Path string                     `json:"path"`
	Docs map[string]json.RawMessage `json:"docs"`
}

// Clone returns a snapshot whose document map can be modified independently.
func (s Snapshot) Clone() Snapshot {
	docs := make(map[string]json.RawMessage, len(s.Docs))
	maps.Copy(docs, s.Docs)
	return Snapshot{Path: s.Path, Docs: docs}
}

// Collection is a namespaced keyed document store. Paths name a collection,
// keys name a document inside it.
type Collection interface {
	// Subscribe delivers the current snapshot immediately and then one
	// snapshot per change until ctx is cancelled, at which point the channel
	// is closed. Slow receivers only ever see the latest snapshot.
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, error)

	// FetchOnce returns the current snapshot of a collection.
	FetchOnce(ctx context.Context, path string) (Snapshot, error)

	// Get returns a single document or ErrNotFound.
	Get(ctx context.Context, path, key string) (json.RawMessage, error)

	// WriteAt replaces the document at key.
	WriteAt(ctx context.Context, path, key string, value json.RawMessage) error

	// MergeAt overlays the top-level fields of partial onto the document at
	// key, creating it if missing.
	MergeAt(ctx context.Context, path, key string, partial json.RawMessage) error

	// DeleteAt removes the document at key. Deleting a missing key is not an error.
	DeleteAt(ctx context.Context, path, key string) error
}

// Offer puts snap on ch, replacing any snapshot the receiver has not taken yet.
// ch must have a buffer of one and a single sender.
func Offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// MergeDocuments overlays the top-level fields of partial onto base.
func MergeDocuments(base, partial json.RawMessage) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	if len(base) > 0 {
		if err := json.Unmarshal(base, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode existing document: %w", err)
		}
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(partial, &patch); err != nil {
		return nil, fmt.Errorf("failed to decode partial document: %w", err)
	}
	maps.Copy(fields, patch)
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode merged document: %w", err)
	}
	return merged, nil
}
