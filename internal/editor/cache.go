package editor

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/observability"
	"github.com/jonathan/portfolio-admin/internal/schemas"
	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// Entry is one record of a cache view.
type Entry struct {
	Key    string       `json:"key"`
	Record types.Record `json:"record"`
	// Provisional marks entries written locally and not yet confirmed by an
	// authoritative snapshot.
	Provisional bool `json:"provisional,omitempty"`
}

// View is an ordered, read-only copy of the cache contents.
type View struct {
	Kind       string  `json:"kind"`
	Entries    []Entry `json:"entries"`
	Loaded     bool    `json:"loaded"`
	Subscribed bool    `json:"subscribed"`
}

// Group is a named slice of a view.
type Group struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
}

// Grouped splits the view by the Group value of each record. Groups named in
// order come first, any others follow alphabetically. Empty groups are omitted.
func (v View) Grouped(order []string) []Group {
	byName := map[string][]Entry{}
	for _, e := range v.Entries {
		name := ""
		if g, ok := e.Record.(types.Grouper); ok {
			name = g.Group()
		}
		byName[name] = append(byName[name], e)
	}

	var groups []Group
	for _, name := range order {
		if entries, ok := byName[name]; ok {
			groups = append(groups, Group{Name: name, Entries: entries})
			delete(byName, name)
		}
	}
	rest := make([]string, 0, len(byName))
	for name := range byName {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	for _, name := range rest {
		groups = append(groups, Group{Name: name, Entries: byName[name]})
	}
	return groups
}

// Cache mirrors one remote collection. Authoritative snapshots replace the
// whole mirror; local writes are layered on top as provisional patches until
// the next snapshot arrives.
type Cache struct {
	kind    types.Kind
	coll    store.Collection
	logger  *zap.Logger
	metrics *observability.Metrics

	mu            sync.RWMutex
	authoritative map[string]types.Record
	// patches holds provisional records; a nil value marks a provisional delete.
	patches    map[string]types.Record
	highWater  int
	loaded     bool
	subscribed bool
	watchers   map[chan View]struct{}
}

// NewCache creates an empty cache for kind backed by coll.
func NewCache(kind types.Kind, coll store.Collection, logger *zap.Logger, metrics *observability.Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		kind:          kind,
		coll:          coll,
		logger:        logger.With(zap.String("kind", kind.Name)),
		metrics:       metrics,
		authoritative: map[string]types.Record{},
		patches:       map[string]types.Record{},
		highWater:     -1,
		watchers:      map[chan View]struct{}{},
	}
}

// Start subscribes to the collection and returns once the first snapshot has
// been applied. Later snapshots are applied in the background until ctx is
// cancelled.
func (c *Cache) Start(ctx context.Context) error {
	c.mu.RLock()
	running := c.subscribed
	c.mu.RUnlock()
	if running {
		return nil
	}

	ch, err := c.coll.Subscribe(ctx, c.kind.Collection)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.kind.Collection, err)
	}

	select {
	case snap, ok := <-ch:
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("subscription to %s closed before the first snapshot", c.kind.Collection)
		}
		c.Apply(snap)
	case <-ctx.Done():
		return ctx.Err()
	}

	c.setSubscribed(true)
	go func() {
		for snap := range ch {
			c.Apply(snap)
		}
		c.setSubscribed(false)
	}()
	return nil
}

// Refresh fetches the collection once and applies the result.
func (c *Cache) Refresh(ctx context.Context) error {
	snap, err := c.coll.FetchOnce(ctx, c.kind.Collection)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", c.kind.Collection, err)
	}
	c.Apply(snap)
	return nil
}

// Apply installs snap as the authoritative state and drops every provisional
// patch. Documents that fail schema validation or decoding are skipped, but
// their keys still count towards identifier allocation.
func (c *Cache) Apply(snap store.Snapshot) {
	records := make(map[string]types.Record, len(snap.Docs))
	keys := make([]string, 0, len(snap.Docs))
	for key, doc := range snap.Docs {
		keys = append(keys, key)
		if err := schemas.ValidateDocument(c.kind.Name, doc); err != nil {
			c.logger.Warn("skipping invalid document", zap.String("key", key), zap.Error(err))
			continue
		}
		rec, err := c.kind.Decode(doc)
		if err != nil {
			c.logger.Warn("skipping undecodable document", zap.String("key", key), zap.Error(err))
			continue
		}
		records[key] = rec
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.authoritative = records
	c.patches = map[string]types.Record{}
	c.loaded = true
	for _, key := range keys {
		c.observeKeyLocked(key)
	}
	c.broadcastLocked()
	c.metrics.ObserveSnapshot(c.kind.Name)
}

// Patch layers a provisional record at key.
func (c *Cache) Patch(key string, rec types.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patches[key] = c.clone(rec)
	c.observeKeyLocked(key)
	c.broadcastLocked()
}

// PatchDelete provisionally removes key.
func (c *Cache) PatchDelete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patches[key] = nil
	c.broadcastLocked()
}

// Lookup returns a copy of the record at key.
func (c *Cache) Lookup(key string) (types.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.patches[key]
	if !ok {
		rec, ok = c.authoritative[key]
	}
	if !ok || rec == nil {
		return nil, false
	}
	return c.clone(rec), true
}

// View returns the ordered cache contents.
func (c *Cache) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewLocked()
}

// Watch delivers the current view immediately and a new one after every
// change until ctx is cancelled. Slow receivers only see the latest view.
func (c *Cache) Watch(ctx context.Context) <-chan View {
	ch := make(chan View, 1)

	c.mu.Lock()
	c.watchers[ch] = struct{}{}
	offer(ch, c.viewLocked())
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.watchers, ch)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

// NextKey returns the identifier for a new record: one past the highest
// numeric key this cache has ever seen, or "0" for a collection never seen
// non-empty. Keys freed by deletions are therefore not handed out again.
func (c *Cache) NextKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strconv.Itoa(c.highWater + 1)
}

// Subscribed reports whether a subscription is feeding the cache.
func (c *Cache) Subscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed
}

func (c *Cache) setSubscribed(v bool) {
	c.mu.Lock()
	c.subscribed = v
	c.broadcastLocked()
	c.mu.Unlock()
}

func (c *Cache) observeKeyLocked(key string) {
	if n, err := strconv.Atoi(key); err == nil && n > c.highWater {
		c.highWater = n
	}
}

func (c *Cache) viewLocked() View {
	keys := make([]string, 0, len(c.authoritative)+len(c.patches))
	for key := range c.authoritative {
		keys = append(keys, key)
	}
	for key := range c.patches {
		if _, ok := c.authoritative[key]; !ok {
			keys = append(keys, key)
		}
	}
	types.SortKeys(keys)

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		if rec, patched := c.patches[key]; patched {
			if rec != nil {
				entries = append(entries, Entry{Key: key, Record: c.clone(rec), Provisional: true})
			}
			continue
		}
		entries = append(entries, Entry{Key: key, Record: c.clone(c.authoritative[key])})
	}
	return View{
		Kind:       c.kind.Name,
		Entries:    slices.Clip(entries),
		Loaded:     c.loaded,
		Subscribed: c.subscribed,
	}
}

func (c *Cache) broadcastLocked() {
	if len(c.watchers) == 0 {
		return
	}
	view := c.viewLocked()
	for ch := range c.watchers {
		offer(ch, view)
	}
}

// clone copies rec so callers never share memory with the cache. Record
// types are plain JSON structs, so the round trip cannot fail in practice.
func (c *Cache) clone(rec types.Record) types.Record {
	out, err := c.kind.Clone(rec)
	if err != nil {
		c.logger.Error("failed to copy record", zap.Error(err))
		return rec
	}
	return out
}
