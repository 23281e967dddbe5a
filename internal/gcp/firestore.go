package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jonathan/portfolio-admin/internal/store"
)

// FirestoreCollection implements store.Collection on Cloud Firestore. A
// collection path is a top-level Firestore collection and a key is a document
// ID within it.
type FirestoreCollection struct {
	client *firestore.Client
	logger *zap.Logger
}

var _ store.Collection = (*FirestoreCollection)(nil)

// NewFirestoreCollection wraps client.
func NewFirestoreCollection(client *firestore.Client, logger *zap.Logger) *FirestoreCollection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FirestoreCollection{client: client, logger: logger}
}

// Subscribe implements store.Collection using a query snapshot listener. The
// first snapshot is read before returning so a bad path or missing
// permission fails the call.
func (f *FirestoreCollection) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, error) {
	it := f.client.Collection(path).Snapshots(ctx)
	first, err := nextSnapshot(it, path)
	if err != nil {
		it.Stop()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	ch := make(chan store.Snapshot, 1)
	store.Offer(ch, first)

	go func() {
		defer close(ch)
		defer it.Stop()
		for {
			snap, err := nextSnapshot(it, path)
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					f.logger.Warn("snapshot listener stopped", zap.String("path", path), zap.Error(err))
				}
				return
			}
			store.Offer(ch, snap)
		}
	}()
	return ch, nil
}

func nextSnapshot(it *firestore.QuerySnapshotIterator, path string) (store.Snapshot, error) {
	qs, err := it.Next()
	if err != nil {
		return store.Snapshot{}, err
	}
	return collect(qs.Documents, path)
}

// FetchOnce implements store.Collection.
func (f *FirestoreCollection) FetchOnce(ctx context.Context, path string) (store.Snapshot, error) {
	snap, err := collect(f.client.Collection(path).Documents(ctx), path)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	return snap, nil
}

func collect(docs *firestore.DocumentIterator, path string) (store.Snapshot, error) {
	defer docs.Stop()
	snap := store.Snapshot{Path: path, Docs: map[string]json.RawMessage{}}
	for {
		doc, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			return snap, nil
		}
		if err != nil {
			return store.Snapshot{}, err
		}
		raw, err := fromFields(doc.Data())
		if err != nil {
			return store.Snapshot{}, fmt.Errorf("document %s: %w", doc.Ref.ID, err)
		}
		snap.Docs[doc.Ref.ID] = raw
	}
}

// Get implements store.Collection.
func (f *FirestoreCollection) Get(ctx context.Context, path, key string) (json.RawMessage, error) {
	doc, err := f.client.Collection(path).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s/%s: %w", path, key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", path, key, err)
	}
	return fromFields(doc.Data())
}

// WriteAt implements store.Collection.
func (f *FirestoreCollection) WriteAt(ctx context.Context, path, key string, value json.RawMessage) error {
	fields, err := toFields(value)
	if err != nil {
		return err
	}
	if _, err := f.client.Collection(path).Doc(key).Set(ctx, fields); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", path, key, err)
	}
	return nil
}

// MergeAt implements store.Collection. Record fields are scalars or lists, so
// MergeAll replaces exactly the top-level fields present in partial.
func (f *FirestoreCollection) MergeAt(ctx context.Context, path, key string, partial json.RawMessage) error {
	fields, err := toFields(partial)
	if err != nil {
		return err
	}
	if _, err := f.client.Collection(path).Doc(key).Set(ctx, fields, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", path, key, err)
	}
	return nil
}

// DeleteAt implements store.Collection. Firestore treats deleting a missing
// document as success.
func (f *FirestoreCollection) DeleteAt(ctx context.Context, path, key string) error {
	if _, err := f.client.Collection(path).Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", path, key, err)
	}
	return nil
}

// toFields decodes a JSON object into Firestore document fields. Whole
// numbers become integers so they round-trip unchanged.
func toFields(doc json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("document is not a JSON object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("document is not a JSON object")
	}
	for k, v := range fields {
		fields[k] = normalize(v)
	}
	return fields, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalize(t[k])
		}
		return t
	default:
		return v
	}
}

// fromFields encodes Firestore document fields as JSON.
func fromFields(fields map[string]any) (json.RawMessage, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}
