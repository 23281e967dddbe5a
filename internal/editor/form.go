package editor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// ListSeparator joins and splits list-valued fields in their text inputs.
const ListSeparator = ","

// PendingFile describes a selected file that has not been uploaded yet.
type PendingFile struct {
	Name string `json:"name"`
	Size int    `json:"size"`
}

// Draft is a read-only copy of the form state.
type Draft struct {
	Kind string `json:"kind"`
	// Key is empty while creating a new record.
	Key     string                 `json:"key,omitempty"`
	Editing bool                   `json:"editing"`
	Record  types.Record           `json:"record"`
	Lists   map[string]string      `json:"lists,omitempty"`
	Pending map[string]PendingFile `json:"pending,omitempty"`
}

// submission is the form state captured when a submission starts.
type submission struct {
	key     string
	record  types.Record
	pending map[string]files.File
}

// Form holds the draft of one record under edit.
type Form struct {
	kind types.Kind

	mu      sync.Mutex
	draft   types.Record
	key     string
	lists   map[string]string
	// edited marks list inputs changed since the record was set. Only these
	// are split on submit; the others keep the record's values verbatim.
	edited  map[string]bool
	pending map[string]files.File
	// remembered keeps URLs cleared by SelectFile so ClearFile can restore them.
	remembered map[string]string
	busy       bool
}

// NewForm creates a form holding an empty draft of kind.
func NewForm(kind types.Kind) *Form {
	f := &Form{kind: kind}
	f.resetLocked()
	return f
}

// Reset discards the draft and returns to create mode.
func (f *Form) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	f.resetLocked()
	return nil
}

// LoadFromRecord copies rec into the draft and switches to edit mode for key.
func (f *Form) LoadFromRecord(key string, rec types.Record) error {
	draft, err := f.kind.Clone(rec)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	f.resetLocked()
	f.draft = draft
	f.key = key
	f.lists = listInputs(draft)
	f.edited = map[string]bool{}
	return nil
}

// Replace overwrites the draft fields with rec. The key, pending files and
// remembered URLs are kept, and slots with a pending file stay empty.
func (f *Form) Replace(rec types.Record) error {
	draft, err := f.kind.Clone(rec)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	for _, att := range draft.Attachments() {
		if _, ok := f.pending[att.Slot]; ok {
			*att.URL = ""
		}
	}
	f.draft = draft
	f.lists = listInputs(draft)
	f.edited = map[string]bool{}
	f.prunePendingLocked()
	return nil
}

// ReplaceJSON decodes data as a record of the form's kind and replaces the draft.
func (f *Form) ReplaceJSON(data []byte) error {
	rec, err := f.kind.Decode(data)
	if err != nil {
		return err
	}
	return f.Replace(rec)
}

// SetListInput sets the delimited text input of a list field.
func (f *Form) SetListInput(field, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	if _, ok := f.lists[field]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	f.lists[field] = text
	f.edited[field] = true
	return nil
}

// SelectFile attaches a pending file to slot. The slot URL is cleared until
// the file is uploaded, and remembered so ClearFile can restore it.
func (f *Form) SelectFile(slot string, file files.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	att, ok := findSlot(f.draft, slot)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	if _, already := f.remembered[slot]; !already && *att.URL != "" {
		f.remembered[slot] = *att.URL
	}
	*att.URL = ""
	f.pending[slot] = file
	return nil
}

// ClearFile drops the pending file of slot and restores the URL it replaced.
func (f *Form) ClearFile(slot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	att, ok := findSlot(f.draft, slot)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slot)
	}
	delete(f.pending, slot)
	if url, ok := f.remembered[slot]; ok {
		*att.URL = url
		delete(f.remembered, slot)
	}
	return nil
}

// AddMember appends a blank team member.
func (f *Form) AddMember() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	team, ok := f.draft.(types.TeamRecord)
	if !ok {
		return ErrNoTeam
	}
	members := team.Team()
	*members = append(*members, types.Member{})
	return nil
}

// RemoveMember removes the i-th team member. Pending files and remembered
// URLs of later members move down with them. The member's stored image is
// left in place.
func (f *Form) RemoveMember(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return ErrBusy
	}
	team, ok := f.draft.(types.TeamRecord)
	if !ok {
		return ErrNoTeam
	}
	members := team.Team()
	n := len(*members)
	if i < 0 || i >= n {
		return fmt.Errorf("%w: %d", ErrMemberIndex, i)
	}
	*members = append((*members)[:i], (*members)[i+1:]...)

	delete(f.pending, types.MemberSlot(i))
	delete(f.remembered, types.MemberSlot(i))
	for j := i + 1; j < n; j++ {
		from, to := types.MemberSlot(j), types.MemberSlot(j-1)
		if file, ok := f.pending[from]; ok {
			f.pending[to] = file
			delete(f.pending, from)
		}
		if url, ok := f.remembered[from]; ok {
			f.remembered[to] = url
			delete(f.remembered, from)
		}
	}
	return nil
}

// Key returns the key being edited, or "" in create mode.
func (f *Form) Key() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

// Busy reports whether a submission holds the form.
func (f *Form) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// Draft returns a copy of the current form state.
func (f *Form) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, err := f.kind.Clone(f.draft)
	if err != nil {
		rec = f.draft
	}
	d := Draft{
		Kind:    f.kind.Name,
		Key:     f.key,
		Editing: f.key != "",
		Record:  rec,
	}
	if len(f.lists) > 0 {
		d.Lists = make(map[string]string, len(f.lists))
		for k, v := range f.lists {
			d.Lists[k] = v
		}
	}
	if len(f.pending) > 0 {
		d.Pending = make(map[string]PendingFile, len(f.pending))
		for slot, file := range f.pending {
			d.Pending[slot] = PendingFile{Name: file.Name, Size: file.Size()}
		}
	}
	return d
}

// begin locks the form for a submission and returns a working copy of the
// draft with the list inputs applied.
func (f *Form) begin() (submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return submission{}, ErrBusy
	}
	rec, err := f.kind.Clone(f.draft)
	if err != nil {
		return submission{}, err
	}
	for _, list := range rec.Lists() {
		switch {
		case f.edited[list.Name]:
			*list.Values = SplitList(f.lists[list.Name])
		case *list.Values == nil:
			*list.Values = []string{}
		}
	}
	pending := make(map[string]files.File, len(f.pending))
	for slot, file := range f.pending {
		pending[slot] = file
	}
	f.busy = true
	return submission{key: f.key, record: rec, pending: pending}, nil
}

// finish releases the form. A successful submission resets the draft.
func (f *Form) finish(success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if success {
		f.resetLocked()
	}
}

func (f *Form) resetLocked() {
	f.draft = f.kind.New()
	f.key = ""
	f.lists = listInputs(f.draft)
	f.edited = map[string]bool{}
	f.pending = map[string]files.File{}
	f.remembered = map[string]string{}
}

// prunePendingLocked drops pending files whose slot no longer exists.
func (f *Form) prunePendingLocked() {
	slots := map[string]bool{}
	for _, att := range f.draft.Attachments() {
		slots[att.Slot] = true
	}
	for slot := range f.pending {
		if !slots[slot] {
			delete(f.pending, slot)
		}
	}
	for slot := range f.remembered {
		if !slots[slot] {
			delete(f.remembered, slot)
		}
	}
}

func findSlot(rec types.Record, slot string) (types.Attachment, bool) {
	for _, att := range rec.Attachments() {
		if att.Slot == slot {
			return att, true
		}
	}
	return types.Attachment{}, false
}

func listInputs(rec types.Record) map[string]string {
	lists := map[string]string{}
	for _, list := range rec.Lists() {
		lists[list.Name] = strings.Join(*list.Values, ListSeparator)
	}
	return lists
}

// SplitList splits a delimited input into trimmed, non-empty values.
func SplitList(text string) []string {
	values := []string{}
	for _, part := range strings.Split(text, ListSeparator) {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}
