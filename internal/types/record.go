// Package types provides the portfolio record types and the content kind registry.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// SingletonKey is the record key used by singleton kinds (bio).
const SingletonKey = "profile"

// Record is one persisted content entity.
type Record interface {
	// Attachments returns the attachment slots of the record, each pointing at
	// the URL field it resolves into.
	Attachments() []Attachment
	// Lists returns the list-valued fields edited through delimited inputs.
	Lists() []ListField
}

// Attachment binds a named slot to the URL field of a record.
type Attachment struct {
	Slot   string
	Folder string
	URL    *string
}

// ListField binds a list-valued attribute to its JSON name.
type ListField struct {
	Name   string
	Values *[]string
}

// Kind describes one content type.
type Kind struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Collection string   `json:"collection"`
	Singleton  bool     `json:"singleton"`
	Merge      bool     `json:"merge"`
	Required   []string `json:"required_attachments,omitempty"`

	New func() Record `json:"-"`
}

// Decode unmarshals a stored document into a fresh record of this kind.
func (k Kind) Decode(data []byte) (Record, error) {
	rec := k.New()
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", k.Name, err)
	}
	return rec, nil
}

// Clone returns a deep copy of rec.
func (k Kind) Clone(rec Record) (Record, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s record: %w", k.Name, err)
	}
	return k.Decode(data)
}

// RequiresAttachment reports whether slot must be filled when creating a record.
func (k Kind) RequiresAttachment(slot string) bool {
	for _, s := range k.Required {
		if s == slot {
			return true
		}
	}
	return false
}

var (
	BioKind = Kind{
		Name:       "bio",
		Title:      "Bio",
		Collection: "bio",
		Singleton:  true,
		Merge:      true,
		New:        func() Record { return NewBio() },
	}
	SkillsKind = Kind{
		Name:       "skills",
		Title:      "Skill",
		Collection: "skills",
		Required:   []string{"image"},
		New:        func() Record { return &Skill{} },
	}
	ExperienceKind = Kind{
		Name:       "experience",
		Title:      "Experience",
		Collection: "experience",
		New:        func() Record { return NewExperience() },
	}
	ProjectsKind = Kind{
		Name:       "projects",
		Title:      "Project",
		Collection: "projects",
		Required:   []string{"image"},
		New:        func() Record { return NewProject() },
	}
	EducationKind = Kind{
		Name:       "education",
		Title:      "Education",
		Collection: "education",
		New:        func() Record { return &Education{} },
	}
)

var kinds = []Kind{BioKind, SkillsKind, ExperienceKind, ProjectsKind, EducationKind}

// Kinds returns every registered content kind in portal order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// KindByName looks up a kind by its name.
func KindByName(name string) (Kind, bool) {
	for _, k := range kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

// SortKeys orders record keys numerically, with non-numeric keys last in
// lexical order.
func SortKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
}
