// Package kv implements store.Collection on a NATS JetStream key-value
// bucket. Every document lives under the key "{path}.{key}" so one bucket
// holds all collections and a subject filter selects one of them.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/store"
)

// mergeAttempts bounds the optimistic read-modify-write loop in MergeAt.
const mergeAttempts = 5

var segmentPattern = regexp.MustCompile(`^[-/_=a-zA-Z0-9]+$`)

// ErrInvalidKey is returned when a path or key cannot be encoded as a bucket key.
var ErrInvalidKey = errors.New("invalid kv key")

// Collection is a store.Collection backed by a JetStream key-value bucket.
type Collection struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	logger *zap.Logger
}

var _ store.Collection = (*Collection)(nil)

// Open connects to the NATS server at url and binds the bucket, creating it
// when it does not exist yet.
func Open(ctx context.Context, url, bucket string, logger *zap.Logger) (*Collection, error) {
	nc, err := nats.Connect(url, nats.Name("portfolio-admin"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Portfolio content records",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create kv bucket %s: %w", bucket, err)
	}
	c := New(kv, logger)
	c.nc = nc
	return c, nil
}

// New wraps an already bound bucket.
func New(kv jetstream.KeyValue, logger *zap.Logger) *Collection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collection{kv: kv, logger: logger}
}

// Close drains the connection opened by Open.
func (c *Collection) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

// Key encodes a path and a document key as a bucket key.
func Key(path, key string) (string, error) {
	if !segmentPattern.MatchString(path) {
		return "", fmt.Errorf("%w: path %q", ErrInvalidKey, path)
	}
	if !segmentPattern.MatchString(key) {
		return "", fmt.Errorf("%w: key %q", ErrInvalidKey, key)
	}
	return path + "." + key, nil
}

// splitKey is the inverse of Key.
func splitKey(full string) (path, key string, ok bool) {
	path, key, ok = strings.Cut(full, ".")
	if !ok || path == "" || key == "" {
		return "", "", false
	}
	return path, key, true
}

func filter(path string) (string, error) {
	if !segmentPattern.MatchString(path) {
		return "", fmt.Errorf("%w: path %q", ErrInvalidKey, path)
	}
	return path + ".*", nil
}

// FetchOnce implements store.Collection by replaying the latest value of
// every key under path.
func (c *Collection) FetchOnce(ctx context.Context, path string) (store.Snapshot, error) {
	f, err := filter(path)
	if err != nil {
		return store.Snapshot{}, err
	}
	w, err := c.kv.Watch(ctx, f, jetstream.IgnoreDeletes())
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer func() { _ = w.Stop() }()

	snap := store.Snapshot{Path: path, Docs: map[string]json.RawMessage{}}
	if err := replay(ctx, w, snap.Docs); err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return snap, nil
}

// replay applies watcher updates to docs until the initial values are done.
func replay(ctx context.Context, w jetstream.KeyWatcher, docs map[string]json.RawMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-w.Updates():
			if !ok {
				return errors.New("watcher closed")
			}
			if entry == nil {
				return nil
			}
			apply(docs, entry)
		}
	}
}

func apply(docs map[string]json.RawMessage, entry jetstream.KeyValueEntry) {
	_, key, ok := splitKey(entry.Key())
	if !ok {
		return
	}
	switch entry.Operation() {
	case jetstream.KeyValuePut:
		docs[key] = json.RawMessage(entry.Value())
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		delete(docs, key)
	}
}

// Subscribe implements store.Collection with a key watcher over path. The
// initial values are replayed before returning.
func (c *Collection) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, error) {
	f, err := filter(path)
	if err != nil {
		return nil, err
	}
	w, err := c.kv.Watch(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}
	docs := map[string]json.RawMessage{}
	if err := replay(ctx, w, docs); err != nil {
		_ = w.Stop()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}

	ch := make(chan store.Snapshot, 1)
	store.Offer(ch, store.Snapshot{Path: path, Docs: docs}.Clone())

	go func() {
		defer close(ch)
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-w.Updates():
				if !ok {
					if ctx.Err() == nil {
						c.logger.Warn("kv watcher stopped", zap.String("path", path))
					}
					return
				}
				if entry == nil {
					continue
				}
				apply(docs, entry)
				store.Offer(ch, store.Snapshot{Path: path, Docs: docs}.Clone())
			}
		}
	}()
	return ch, nil
}

// Get implements store.Collection.
func (c *Collection) Get(ctx context.Context, path, key string) (json.RawMessage, error) {
	k, err := Key(path, key)
	if err != nil {
		return nil, err
	}
	entry, err := c.kv.Get(ctx, k)
	if err != nil {
		if isMissing(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", k, err)
	}
	return json.RawMessage(entry.Value()), nil
}

// WriteAt implements store.Collection.
func (c *Collection) WriteAt(ctx context.Context, path, key string, value json.RawMessage) error {
	k, err := Key(path, key)
	if err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("invalid JSON document for %s", k)
	}
	if _, err := c.kv.Put(ctx, k, value); err != nil {
		return fmt.Errorf("failed to write %s: %w", k, err)
	}
	return nil
}

// MergeAt implements store.Collection as a revision-checked read-modify-write.
// A concurrent writer causes a retry.
func (c *Collection) MergeAt(ctx context.Context, path, key string, partial json.RawMessage) error {
	k, err := Key(path, key)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < mergeAttempts; attempt++ {
		entry, err := c.kv.Get(ctx, k)
		switch {
		case isMissing(err):
			merged, err := store.MergeDocuments(nil, partial)
			if err != nil {
				return err
			}
			if _, err := c.kv.Create(ctx, k, merged); err != nil {
				if errors.Is(err, jetstream.ErrKeyExists) {
					continue
				}
				return fmt.Errorf("failed to merge %s: %w", k, err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to merge %s: %w", k, err)
		}

		merged, err := store.MergeDocuments(entry.Value(), partial)
		if err != nil {
			return err
		}
		if _, err := c.kv.Update(ctx, k, merged, entry.Revision()); err != nil {
			if isConflict(err) {
				c.logger.Debug("merge conflict, retrying", zap.String("key", k), zap.Int("attempt", attempt+1))
				continue
			}
			return fmt.Errorf("failed to merge %s: %w", k, err)
		}
		return nil
	}
	return fmt.Errorf("failed to merge %s: too many concurrent updates", k)
}

// DeleteAt implements store.Collection.
func (c *Collection) DeleteAt(ctx context.Context, path, key string) error {
	k, err := Key(path, key)
	if err != nil {
		return err
	}
	if err := c.kv.Delete(ctx, k); err != nil && !isMissing(err) {
		return fmt.Errorf("failed to delete %s: %w", k, err)
	}
	return nil
}

func isMissing(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
