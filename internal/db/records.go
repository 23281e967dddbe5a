package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/store"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed collection paths.
const NotifyChannel = "portfolio_records"

// listenRetry is the pause before re-establishing a lost listener connection.
const listenRetry = time.Second

// Records implements store.Collection on the records table. A single
// listener connection serves every subscription.
type Records struct {
	db     *DB
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]map[chan store.Snapshot]struct{}
	// stopListen is set while the listener goroutine runs.
	stopListen context.CancelFunc
	listenDone chan struct{}
}

var _ store.Collection = (*Records)(nil)

// NewRecords returns the record collection stored in db.
func NewRecords(db *DB) *Records {
	return &Records{
		db:     db,
		logger: db.logger.With(zap.String("component", "records")),
		subs:   make(map[string]map[chan store.Snapshot]struct{}),
	}
}

// FetchOnce implements store.Collection.
func (r *Records) FetchOnce(ctx context.Context, path string) (store.Snapshot, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT key, doc FROM records WHERE path = $1`, path)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to query %s: %w", path, err)
	}
	defer rows.Close()

	snap := store.Snapshot{Path: path, Docs: map[string]json.RawMessage{}}
	for rows.Next() {
		var key string
		var doc []byte
		if err := rows.Scan(&key, &doc); err != nil {
			return store.Snapshot{}, fmt.Errorf("failed to scan %s row: %w", path, err)
		}
		snap.Docs[key] = doc
	}
	if err := rows.Err(); err != nil {
		return store.Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return snap, nil
}

// Get implements store.Collection.
func (r *Records) Get(ctx context.Context, path, key string) (json.RawMessage, error) {
	var doc []byte
	err := r.db.pool.QueryRow(ctx,
		`SELECT doc FROM records WHERE path = $1 AND key = $2`, path, key,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", path, key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", path, key, err)
	}
	return doc, nil
}

// WriteAt implements store.Collection.
func (r *Records) WriteAt(ctx context.Context, path, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("invalid JSON document for %s/%s", path, key)
	}
	return r.change(ctx, path, func(tx pgx.Tx) (bool, error) {
		_, err := tx.Exec(ctx,
			`INSERT INTO records (path, key, doc) VALUES ($1, $2, $3)
			 ON CONFLICT (path, key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`,
			path, key, []byte(value),
		)
		return true, err
	})
}

// MergeAt implements store.Collection. JSONB concatenation replaces top-level
// fields, matching store.MergeDocuments.
func (r *Records) MergeAt(ctx context.Context, path, key string, partial json.RawMessage) error {
	if !json.Valid(partial) {
		return fmt.Errorf("invalid JSON document for %s/%s", path, key)
	}
	return r.change(ctx, path, func(tx pgx.Tx) (bool, error) {
		_, err := tx.Exec(ctx,
			`INSERT INTO records (path, key, doc) VALUES ($1, $2, $3)
			 ON CONFLICT (path, key) DO UPDATE SET doc = records.doc || EXCLUDED.doc, updated_at = NOW()`,
			path, key, []byte(partial),
		)
		return true, err
	})
}

// DeleteAt implements store.Collection.
func (r *Records) DeleteAt(ctx context.Context, path, key string) error {
	return r.change(ctx, path, func(tx pgx.Tx) (bool, error) {
		tag, err := tx.Exec(ctx, `DELETE FROM records WHERE path = $1 AND key = $2`, path, key)
		return err == nil && tag.RowsAffected() > 0, err
	})
}

// change runs fn in a transaction and announces path when fn reports a change.
// The notification is delivered only if the transaction commits.
func (r *Records) change(ctx context.Context, path string, fn func(pgx.Tx) (bool, error)) error {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	changed, err := fn(tx)
	if err != nil {
		return fmt.Errorf("failed to change %s: %w", path, err)
	}
	if changed {
		if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, path); err != nil {
			return fmt.Errorf("failed to notify %s: %w", path, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}

// Subscribe implements store.Collection.
func (r *Records) Subscribe(ctx context.Context, path string) (<-chan store.Snapshot, error) {
	ch := make(chan store.Snapshot, 1)

	r.mu.Lock()
	snap, err := r.FetchOnce(ctx, path)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if r.subs[path] == nil {
		r.subs[path] = make(map[chan store.Snapshot]struct{})
	}
	r.subs[path][ch] = struct{}{}
	store.Offer(ch, snap)
	r.ensureListenerLocked()
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subs[path], ch)
		close(ch)
		r.mu.Unlock()
	}()
	return ch, nil
}

// Close stops the listener. Open subscriptions receive no further changes.
func (r *Records) Close() {
	r.mu.Lock()
	stop, done := r.stopListen, r.listenDone
	r.stopListen, r.listenDone = nil, nil
	r.mu.Unlock()
	if stop != nil {
		stop()
		<-done
	}
}

func (r *Records) ensureListenerLocked() {
	if r.stopListen != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.stopListen = cancel
	r.listenDone = make(chan struct{})
	go r.listen(ctx, r.listenDone)
}

// listen holds a LISTEN connection and republishes the snapshot of every
// announced path. After a reconnect every subscribed path is republished,
// since notifications sent meanwhile are lost.
func (r *Records) listen(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := r.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("record listener lost, reconnecting", zap.Error(err))
		select {
		case <-time.After(listenRetry):
		case <-ctx.Done():
			return
		}
	}
}

func (r *Records) listenOnce(ctx context.Context) error {
	pooled, err := r.db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	// The connection will hold LISTEN state; take it out of the pool for good.
	conn := pooled.Hijack()
	defer conn.Close(context.Background()) //nolint:errcheck

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	for _, path := range r.subscribedPaths() {
		r.publish(ctx, path)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		r.publish(ctx, n.Payload)
	}
}

func (r *Records) subscribedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	paths := make([]string, 0, len(r.subs))
	for path, subs := range r.subs {
		if len(subs) > 0 {
			paths = append(paths, path)
		}
	}
	return paths
}

func (r *Records) publish(ctx context.Context, path string) {
	r.mu.Lock()
	watched := len(r.subs[path]) > 0
	r.mu.Unlock()
	if !watched {
		return
	}

	snap, err := r.FetchOnce(ctx, path)
	if err != nil {
		r.logger.Warn("failed to refresh subscribed collection", zap.String("path", path), zap.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs[path] {
		store.Offer(ch, snap.Clone())
	}
}
