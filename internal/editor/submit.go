package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/observability"
	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// maxConcurrentUploads bounds the uploads of one submission.
const maxConcurrentUploads = 4

// Submitter persists the draft of a Form.
type Submitter struct {
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

// NewSubmitter wires a submission controller.
func NewSubmitter(kind types.Kind, coll store.Collection, fs files.Store, cache *Cache, form *Form, logger *zap.Logger, metrics *observability.Metrics) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
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

// Status returns the current submission phase.
func (s *Submitter) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Dismiss returns a finished submission (success or error) to idle.
func (s *Submitter) Dismiss() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Phase == PhaseSuccess || s.status.Phase == PhaseError {
		s.status = idle()
	}
	return s.status
}

// Submit validates the draft, uploads its pending files, writes the record
// and resets the draft. On validation failure nothing is sent and the phase
// stays idle. On upload or write failure the phase becomes error and the
// draft is kept for a retry; files already uploaded are not removed.
func (s *Submitter) Submit(ctx context.Context) (Status, error) {
	started := time.Now()

	sub, err := s.form.begin()
	if err != nil {
		s.metrics.ObserveSubmission(s.kind.Name, observability.OutcomeBusy, 0)
		return s.Status(), err
	}

	if err := s.validate(sub); err != nil {
		s.form.finish(false)
		s.metrics.ObserveSubmission(s.kind.Name, observability.OutcomeValidation, 0)
		s.logger.Info("draft rejected", zap.Error(err))
		return s.setStatus(idle()), err
	}

	s.setStatus(Status{Phase: PhaseUploading, Target: sub.key})

	if err := s.upload(ctx, sub); err != nil {
		return s.fail(sub, observability.OutcomeUpload, err)
	}

	key := sub.key
	switch {
	case key != "":
	case s.kind.Singleton:
		key = types.SingletonKey
	default:
		key = s.cache.NextKey()
	}

	if err := s.persist(ctx, key, sub.record); err != nil {
		return s.fail(sub, observability.OutcomePersist, err)
	}

	s.cache.Patch(key, sub.record)
	s.form.finish(true)
	if s.kind.Singleton {
		if err := s.form.LoadFromRecord(key, sub.record); err != nil {
			s.logger.Warn("failed to reload singleton draft", zap.Error(err))
		}
	}

	status := s.setStatus(Status{Phase: PhaseSuccess, Target: key})
	s.metrics.ObserveSubmission(s.kind.Name, observability.OutcomeSuccess, time.Since(started))
	s.logger.Info("record saved", zap.String("key", key), zap.Bool("created", sub.key == ""))

	if !s.cache.Subscribed() {
		if err := s.cache.Refresh(ctx); err != nil {
			s.logger.Warn("failed to refresh cache after save", zap.String("key", key), zap.Error(err))
		}
	}
	return status, nil
}

func (s *Submitter) validate(sub submission) error {
	if err := types.Validate(sub.record); err != nil {
		var fe *types.FieldError
		if errors.As(err, &fe) {
			return &ValidationError{Field: fe.Field, Message: describeTag(fe.Tag)}
		}
		return &ValidationError{Field: "(record)", Message: err.Error()}
	}
	// A slot holds either a pending file or a URL this store resolved.
	origin := s.files.Origin()
	for _, att := range sub.record.Attachments() {
		if _, pending := sub.pending[att.Slot]; pending {
			continue
		}
		if url := *att.URL; url != "" && !strings.HasPrefix(url, origin) {
			return &ValidationError{Field: att.Slot, Message: "is not a stored file"}
		}
	}
	if sub.key != "" {
		return nil
	}
	for _, att := range sub.record.Attachments() {
		if !s.kind.RequiresAttachment(att.Slot) {
			continue
		}
		if _, pending := sub.pending[att.Slot]; !pending && *att.URL == "" {
			return &ValidationError{Field: att.Slot, Message: "is required"}
		}
	}
	return nil
}

// upload stores every pending file concurrently and writes the resolved URLs
// into the submission record once all of them have finished.
func (s *Submitter) upload(ctx context.Context, sub submission) error {
	if len(sub.pending) == 0 {
		return nil
	}
	slots := map[string]types.Attachment{}
	for _, att := range sub.record.Attachments() {
		slots[att.Slot] = att
	}
	for slot := range sub.pending {
		if _, ok := slots[slot]; !ok {
			return &UploadError{Slot: slot, Cause: ErrUnknownSlot}
		}
	}

	var (
		mu       sync.Mutex
		resolved = make(map[string]string, len(sub.pending))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for slot, file := range sub.pending {
		objectPath := files.ObjectPath(slots[slot].Folder, file.Name)
		g.Go(func() error {
			ref, err := s.files.Upload(gctx, objectPath, file)
			if err == nil {
				var url string
				url, err = s.files.PublicURL(gctx, ref)
				if err == nil {
					mu.Lock()
					resolved[slot] = url
					mu.Unlock()
					s.metrics.ObserveUpload(s.kind.Name, observability.OutcomeSuccess)
					s.logger.Debug("attachment uploaded", zap.String("slot", slot), zap.String("path", objectPath))
					return nil
				}
			}
			s.metrics.ObserveUpload(s.kind.Name, observability.OutcomeUpload)
			return &UploadError{Slot: slot, Path: objectPath, Cause: err}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for slot, url := range resolved {
		*slots[slot].URL = url
	}
	return nil
}

func (s *Submitter) persist(ctx context.Context, key string, rec types.Record) error {
	op := "write"
	if s.kind.Merge {
		op = "merge"
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return &PersistenceError{Op: op, Key: key, Cause: fmt.Errorf("failed to encode record: %w", err)}
	}
	if s.kind.Merge {
		err = s.coll.MergeAt(ctx, s.kind.Collection, key, doc)
	} else {
		err = s.coll.WriteAt(ctx, s.kind.Collection, key, doc)
	}
	if err != nil {
		return &PersistenceError{Op: op, Key: key, Cause: err}
	}
	return nil
}

func (s *Submitter) fail(sub submission, outcome string, err error) (Status, error) {
	s.form.finish(false)
	s.metrics.ObserveSubmission(s.kind.Name, outcome, 0)
	s.logger.Error("submission failed", zap.String("key", sub.key), zap.Error(err))
	return s.setStatus(Status{Phase: PhaseError, Message: err.Error(), Target: sub.key}), err
}

func (s *Submitter) setStatus(st Status) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	return st
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "oneof", "projectcategory":
		return "has an unsupported value"
	case "min", "max":
		return "is out of range"
	default:
		return "is invalid (" + tag + ")"
	}
}
