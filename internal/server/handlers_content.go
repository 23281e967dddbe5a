package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/portfolio-admin/internal/editor"
	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/modal"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// maxUploadBytes caps one attachment upload.
const maxUploadBytes = 10 << 20

// KindSummary describes one editor on the portal page.
type KindSummary struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	Singleton  bool   `json:"singleton"`
	Records    int    `json:"records"`
	Subscribed bool   `json:"subscribed"`
}

// CollectionResponse is the cached collection, optionally grouped.
type CollectionResponse struct {
	View   editor.View    `json:"view"`
	Groups []editor.Group `json:"groups,omitempty"`
}

// DraftUpdate replaces the draft record and sets list inputs. Either part
// may be omitted.
type DraftUpdate struct {
	Record json.RawMessage   `json:"record,omitempty"`
	Lists  map[string]string `json:"lists,omitempty"`
}

// ActionResponse reports a controller status with the overlay it shows.
type ActionResponse struct {
	Status editor.Status `json:"status"`
	Modal  modal.View    `json:"modal"`
	Draft  *editor.Draft `json:"draft,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// StatusResponse holds both controllers of an editor.
type StatusResponse struct {
	Submission ActionResponse `json:"submission"`
	Deletion   ActionResponse `json:"deletion"`
}

// grouping names the attribute a kind can be grouped by and the display
// order of its known values.
type grouping struct {
	field string
	order []string
}

var groupings = map[string]grouping{
	types.SkillsKind.Name:   {field: "type", order: types.SkillTypes},
	types.ProjectsKind.Name: {field: "category", order: types.ProjectCategories},
}

// editorFor resolves the {kind} path value, writing a 404 when no editor
// is registered under it.
func (s *Server) editorFor(w http.ResponseWriter, r *http.Request) (*editor.Editor, bool) {
	name := r.PathValue("kind")
	ed, ok := s.editors.Get(name)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: %s", ErrUnknownKind, name))
		return nil, false
	}
	return ed, true
}

// groupOrder validates the group query parameter.
func groupOrder(ed *editor.Editor, r *http.Request) ([]string, bool, error) {
	field := r.URL.Query().Get("group")
	if field == "" {
		return nil, false, nil
	}
	g, ok := groupings[ed.Kind.Name]
	if !ok || g.field != field {
		return nil, false, &ErrValidation{Field: "group", Message: fmt.Sprintf("%s cannot be grouped by %q", ed.Kind.Name, field)}
	}
	return g.order, true, nil
}

func collection(v editor.View, order []string, grouped bool) CollectionResponse {
	resp := CollectionResponse{View: v}
	if grouped {
		resp.Groups = v.Grouped(order)
	}
	return resp
}

// handlePortal lists every editor with its cache state
func (s *Server) handlePortal(w http.ResponseWriter, _ *http.Request) {
	editors := s.editors.All()
	out := make([]KindSummary, 0, len(editors))
	for _, ed := range editors {
		out = append(out, KindSummary{
			Name:       ed.Kind.Name,
			Title:      ed.Kind.Title,
			Singleton:  ed.Kind.Singleton,
			Records:    len(ed.Cache.View().Entries),
			Subscribed: ed.Cache.Subscribed(),
		})
	}
	s.jsonResponse(w, http.StatusOK, out)
}

// handleCollection returns the cached records of one kind
func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	order, grouped, err := groupOrder(ed, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, collection(ed.Cache.View(), order, grouped))
}

// handleStream pushes the collection as server-sent events, once on connect
// and again after every change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	order, grouped, err := groupOrder(ed, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	stream, err := NewSSEWriter(w)
	if err != nil {
		s.requestLogger(r).Warn("stream not opened", zap.Error(err))
		return
	}
	logger := s.requestLogger(r).With(zap.String("kind", ed.Kind.Name))
	logger.Debug("stream opened")

	ctx := r.Context()
	views := ed.Cache.Watch(ctx)
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("stream closed")
			return
		case v, ok := <-views:
			if !ok {
				return
			}
			if err := stream.Send("view", collection(v, order, grouped)); err != nil {
				logger.Debug("stream write failed", zap.Error(err))
				return
			}
		case <-heartbeat.C:
			if err := stream.Comment("keepalive"); err != nil {
				logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

// handleGetDraft returns the draft of one kind
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, ed.Form.Draft())
}

// handlePutDraft replaces the draft record and updates list inputs
func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}

	var req DraftUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}

	if len(req.Record) > 0 {
		rec, err := ed.Kind.Decode(req.Record)
		if err != nil {
			s.fail(w, r, &ErrValidation{Field: "record", Message: err.Error()})
			return
		}
		if err := ed.Form.Replace(rec); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	fields := make([]string, 0, len(req.Lists))
	for field := range req.Lists {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if err := ed.Form.SetListInput(field, req.Lists[field]); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, ed.Form.Draft())
}

// handleResetDraft discards the draft
func (s *Server) handleResetDraft(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if err := ed.Form.Reset(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ed.Form.Draft())
}

// handleLoadDraft starts editing a cached record
func (s *Server) handleLoadDraft(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if err := ed.Load(r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ed.Form.Draft())
}

// handleSelectFile attaches the multipart "file" field to an attachment slot
func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	part, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "file", Message: err.Error()})
		return
	}
	defer part.Close()

	data, err := io.ReadAll(io.LimitReader(part, maxUploadBytes+1))
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "file", Message: err.Error()})
		return
	}
	if len(data) > maxUploadBytes {
		s.fail(w, r, &ErrValidation{Field: "file", Message: fmt.Sprintf("exceeds %d bytes", maxUploadBytes)})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	file := files.File{Name: header.Filename, ContentType: contentType, Data: data}
	if err := ed.Form.SelectFile(r.PathValue("slot"), file); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ed.Form.Draft())
}

// handleClearFile drops the pending file of a slot
func (s *Server) handleClearFile(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if err := ed.Form.ClearFile(r.PathValue("slot")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ed.Form.Draft())
}

// handleAddMember appends a blank team member
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	if err := ed.Form.AddMember(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ed.Form.Draft())
}

// handleRemoveMember removes the team member at {index}
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.fail(w, r, &ErrValidation{Field: "index", Message: "must be an integer"})
		return
	}
	if err := ed.Form.RemoveMember(i); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ed.Form.Draft())
}

func submissionResponse(ed *editor.Editor, st editor.Status) ActionResponse {
	draft := ed.Form.Draft()
	return ActionResponse{Status: st, Modal: modal.ForSubmission(ed.Kind, st), Draft: &draft}
}

func deletionResponse(ed *editor.Editor, st editor.Status) ActionResponse {
	return ActionResponse{Status: st, Modal: modal.ForDeletion(ed.Kind, st)}
}

// handleSubmit saves the draft. Rejected drafts are a 400; upload and write
// failures are reported through the error overlay.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}

	st, err := ed.Submitter.Submit(r.Context())
	resp := submissionResponse(ed, st)
	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		var invalid *editor.ValidationError
		if errors.As(err, &invalid) || errors.Is(err, editor.ErrBusy) {
			status = HTTPStatus(err)
		}
	}
	s.jsonResponse(w, status, resp)
}

// handleStatus returns both controller states
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, StatusResponse{
		Submission: submissionResponse(ed, ed.Submitter.Status()),
		Deletion:   deletionResponse(ed, ed.Deleter.Status()),
	})
}

// handleDismiss closes a finished submission overlay. An upload in progress
// cannot be dismissed.
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	st := ed.Submitter.Status()
	if modal.Dismiss(modal.ForSubmission(ed.Kind, st)) {
		st = ed.Submitter.Dismiss()
	}
	s.jsonResponse(w, http.StatusOK, submissionResponse(ed, st))
}

// handleRequestDelete asks for confirmation before deleting {id}
func (s *Server) handleRequestDelete(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	st, err := ed.Deleter.RequestDelete(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, deletionResponse(ed, st))
}

// handleConfirmDelete deletes the record awaiting confirmation
func (s *Server) handleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	st, err := ed.Deleter.Confirm(r.Context())
	if errors.Is(err, editor.ErrNoDeletionTarget) {
		s.fail(w, r, err)
		return
	}
	resp := deletionResponse(ed, st)
	if err != nil {
		resp.Error = err.Error()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleCancelDelete clears the deletion target
func (s *Server) handleCancelDelete(w http.ResponseWriter, r *http.Request) {
	ed, ok := s.editorFor(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, deletionResponse(ed, ed.Deleter.Cancel()))
}
