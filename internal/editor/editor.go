// Package editor implements the record editor: a cache mirroring one remote
// collection, the draft form, and the submission and deletion controllers
// that act on them.
package editor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/observability"
	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// Deps are the backends and ambient services shared by every editor.
type Deps struct {
	Collection store.Collection
	Files      files.Store
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Editor bundles the components editing one content kind.
type Editor struct {
	Kind      types.Kind
	Cache     *Cache
	Form      *Form
	Submitter *Submitter
	Deleter   *Deleter
}

// New wires an editor for kind.
func New(kind types.Kind, deps Deps) *Editor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := NewCache(kind, deps.Collection, logger, deps.Metrics)
	form := NewForm(kind)
	return &Editor{
		Kind:      kind,
		Cache:     cache,
		Form:      form,
		Submitter: NewSubmitter(kind, deps.Collection, deps.Files, cache, form, logger, deps.Metrics),
		Deleter:   NewDeleter(kind, deps.Collection, deps.Files, cache, form, logger, deps.Metrics),
	}
}

// Start subscribes the cache. Singleton kinds also load the stored record
// into the draft.
func (e *Editor) Start(ctx context.Context) error {
	if err := e.Cache.Start(ctx); err != nil {
		return err
	}
	if e.Kind.Singleton {
		if err := e.Load(types.SingletonKey); err != nil && !errors.Is(err, ErrUnknownRecord) {
			return err
		}
	}
	return nil
}

// Load copies the cached record at key into the draft for editing.
func (e *Editor) Load(key string) error {
	rec, ok := e.Cache.Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, key)
	}
	return e.Form.LoadFromRecord(key, rec)
}

// Set holds one editor per content kind.
type Set struct {
	order   []string
	editors map[string]*Editor
}

// NewSet wires an editor for every kind.
func NewSet(kinds []types.Kind, deps Deps) *Set {
	s := &Set{editors: make(map[string]*Editor, len(kinds))}
	for _, k := range kinds {
		s.order = append(s.order, k.Name)
		s.editors[k.Name] = New(k, deps)
	}
	return s
}

// Get returns the editor of the named kind.
func (s *Set) Get(name string) (*Editor, bool) {
	e, ok := s.editors[name]
	return e, ok
}

// All returns the editors in registration order.
func (s *Set) All() []*Editor {
	out := make([]*Editor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.editors[name])
	}
	return out
}

// Start starts every editor concurrently and returns the first error. The
// subscriptions live until ctx is cancelled.
func (s *Set) Start(ctx context.Context) error {
	var g errgroup.Group
	for _, e := range s.All() {
		g.Go(func() error {
			if err := e.Start(ctx); err != nil {
				return fmt.Errorf("failed to start %s editor: %w", e.Kind.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
