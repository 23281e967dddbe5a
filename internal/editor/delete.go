package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/observability"
	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// Deleter removes records after an explicit confirmation.
type Deleter struct {
	kind    types.Kind
	coll    store.Collection
	files   files.Store
	cache   *Cache
	form    *Form
	logger  *zap.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	status Status
}

// NewDeleter wires a deletion controller.
func NewDeleter(kind types.Kind, coll store.Collection, fs files.Store, cache *Cache, form *Form, logger *zap.Logger, metrics *observability.Metrics) *Deleter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deleter{
		kind:    kind,
		coll:    coll,
		files:   fs,
		cache:   cache,
		form:    form,
		logger:  logger.With(zap.String("kind", kind.Name)),
		metrics: metrics,
		status:  idle(),
	}
}

// Status returns the current deletion phase.
func (d *Deleter) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// RequestDelete marks key as the deletion target and waits for confirmation.
func (d *Deleter) RequestDelete(key string) (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status.Phase == PhaseDeleting {
		return d.status, ErrBusy
	}
	if _, ok := d.cache.Lookup(key); !ok {
		return d.status, fmt.Errorf("%w: %s", ErrUnknownRecord, key)
	}
	d.status = Status{Phase: PhaseConfirming, Target: key}
	return d.status, nil
}

// Cancel clears the deletion target without touching any backend. A failed
// deletion is dismissed the same way.
func (d *Deleter) Cancel() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status.Phase == PhaseConfirming || d.status.Phase == PhaseError {
		if d.status.Phase == PhaseConfirming {
			d.metrics.ObserveDeletion(d.kind.Name, observability.OutcomeCancelled)
		}
		d.status = idle()
	}
	return d.status
}

// Confirm deletes the target record. Attachment removal is best effort and
// never blocks the record delete; a failing record delete leaves the phase
// in error with a *PersistenceError.
func (d *Deleter) Confirm(ctx context.Context) (Status, error) {
	d.mu.Lock()
	if d.status.Phase != PhaseConfirming {
		st := d.status
		d.mu.Unlock()
		return st, ErrNoDeletionTarget
	}
	key := d.status.Target
	d.status = Status{Phase: PhaseDeleting, Target: key}
	d.mu.Unlock()

	logger := d.logger.With(zap.String("key", key))

	if rec := d.target(ctx, key, logger); rec != nil {
		d.removeAttachments(ctx, rec, logger)
	}

	if err := d.coll.DeleteAt(ctx, d.kind.Collection, key); err != nil {
		perr := &PersistenceError{Op: "delete", Key: key, Cause: err}
		logger.Error("deletion failed", zap.Error(err))
		d.metrics.ObserveDeletion(d.kind.Name, observability.OutcomePersist)
		return d.setStatus(Status{Phase: PhaseError, Message: perr.Error(), Target: key}), perr
	}

	d.cache.PatchDelete(key)
	if d.form.Key() == key {
		if err := d.form.Reset(); err != nil {
			logger.Warn("draft of deleted record not reset", zap.Error(err))
		}
	}
	d.metrics.ObserveDeletion(d.kind.Name, observability.OutcomeSuccess)
	logger.Info("record deleted")

	if !d.cache.Subscribed() {
		if err := d.cache.Refresh(ctx); err != nil {
			logger.Warn("failed to refresh cache after delete", zap.Error(err))
		}
	}
	return d.setStatus(idle()), nil
}

// target reads the record being deleted, falling back to the cached copy when
// the backend read fails.
func (d *Deleter) target(ctx context.Context, key string, logger *zap.Logger) types.Record {
	doc, err := d.coll.Get(ctx, d.kind.Collection, key)
	if err == nil {
		rec, decodeErr := d.kind.Decode(doc)
		if decodeErr == nil {
			return rec
		}
		err = decodeErr
	}
	if rec, ok := d.cache.Lookup(key); ok {
		logger.Warn("using cached record for attachment cleanup", zap.Error(err))
		return rec
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Warn("record unavailable for attachment cleanup", zap.Error(err))
	}
	return nil
}

func (d *Deleter) removeAttachments(ctx context.Context, rec types.Record, logger *zap.Logger) {
	for _, att := range rec.Attachments() {
		url := *att.URL
		if url == "" {
			continue
		}
		err := d.files.Delete(ctx, url)
		switch {
		case err == nil:
			logger.Debug("attachment removed", zap.String("slot", att.Slot))
		case errors.Is(err, files.ErrNotFound):
			logger.Info("attachment already gone", zap.String("slot", att.Slot), zap.String("url", url))
		default:
			d.metrics.ObserveCleanupFailure(d.kind.Name)
			logger.Warn("failed to remove attachment", zap.String("slot", att.Slot), zap.String("url", url), zap.Error(err))
		}
	}
}

func (d *Deleter) setStatus(st Status) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = st
	return st
}
