//nolint:revive // types is a standard Go package name pattern
package types

import "fmt"

// Skill types offered by the skills form.
var SkillTypes = []string{"Frontend", "Backend", "AI/ML", "Others"}

// Project categories offered by the projects form.
var ProjectCategories = []string{"Web", "Deep Learning", "Machine Learning"}

// Bio is the singleton profile record.
type Bio struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Roles       []string `json:"roles"`
	ProfilePic  string   `json:"profilepic"`
	Github      string   `json:"github"`
	Linkedin    string   `json:"linkedin"`
	Insta       string   `json:"insta"`
	Resume      string   `json:"resume"`
}

// NewBio returns the empty bio template.
func NewBio() *Bio {
	return &Bio{Roles: []string{}}
}

func (b *Bio) Attachments() []Attachment {
	return []Attachment{
		{Slot: "profilepic", Folder: "bio", URL: &b.ProfilePic},
		{Slot: "resume", Folder: "bio", URL: &b.Resume},
	}
}

func (b *Bio) Lists() []ListField {
	return []ListField{{Name: "roles", Values: &b.Roles}}
}

// Skill is one entry of the skills collection.
type Skill struct {
	Name  string `json:"name" validate:"required"`
	Type  string `json:"type" validate:"required,oneof=Frontend Backend AI/ML Others"`
	Image string `json:"image"`
}

func (s *Skill) Attachments() []Attachment {
	return []Attachment{{Slot: "image", Folder: "skills", URL: &s.Image}}
}

func (s *Skill) Lists() []ListField { return nil }

// Experience is one entry of the experience collection.
type Experience struct {
	Role    string   `json:"role" validate:"required"`
	Company string   `json:"company" validate:"required"`
	Date    string   `json:"date" validate:"required"`
	Desc    string   `json:"desc"`
	Skills  []string `json:"skills"`
	Img     string   `json:"img"`
	Doc     string   `json:"doc"`
}

// NewExperience returns the empty experience template.
func NewExperience() *Experience {
	return &Experience{Skills: []string{}}
}

func (e *Experience) Attachments() []Attachment {
	return []Attachment{
		{Slot: "img", Folder: "experience", URL: &e.Img},
		{Slot: "doc", Folder: "experience", URL: &e.Doc},
	}
}

func (e *Experience) Lists() []ListField {
	return []ListField{{Name: "skills", Values: &e.Skills}}
}

// Member is one team member of a project.
type Member struct {
	Name     string `json:"name"`
	Github   string `json:"github"`
	Linkedin string `json:"linkedin"`
	Img      string `json:"img"`
}

// Project is one entry of the projects collection.
type Project struct {
	Title       string   `json:"title" validate:"required"`
	Category    string   `json:"category" validate:"projectcategory"`
	Date        string   `json:"date" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Github      string   `json:"github"`
	Webapp      string   `json:"webapp"`
	Tags        []string `json:"tags"`
	Image       string   `json:"image"`
	Member      []Member `json:"member"`
	OnTop       int      `json:"ontop" validate:"min=0,max=1"`
}

// NewProject returns the empty project template with a single blank member row.
func NewProject() *Project {
	return &Project{Tags: []string{}, Member: []Member{{}}}
}

// MemberSlot names the attachment slot of the i-th member image.
func MemberSlot(i int) string {
	return fmt.Sprintf("member.%d.img", i)
}

func (p *Project) Attachments() []Attachment {
	out := []Attachment{{Slot: "image", Folder: "projects", URL: &p.Image}}
	for i := range p.Member {
		out = append(out, Attachment{Slot: MemberSlot(i), Folder: "profile_pics", URL: &p.Member[i].Img})
	}
	return out
}

func (p *Project) Lists() []ListField {
	return []ListField{{Name: "tags", Values: &p.Tags}}
}

// Team exposes the member list for add/remove operations.
func (p *Project) Team() *[]Member { return &p.Member }

// TeamRecord is implemented by records that carry a member list.
type TeamRecord interface {
	Record
	Team() *[]Member
}

// Education is one entry of the education collection.
type Education struct {
	School string `json:"school" validate:"required"`
	Degree string `json:"degree" validate:"required"`
	Date   string `json:"date" validate:"required"`
	Grade  string `json:"grade" validate:"required"`
	Desc   string `json:"desc" validate:"required"`
	Img    string `json:"img"`
}

func (e *Education) Attachments() []Attachment {
	return []Attachment{{Slot: "img", Folder: "education", URL: &e.Img}}
}

func (e *Education) Lists() []ListField { return nil }

// Grouper is implemented by records that can be grouped for display.
type Grouper interface {
	Group() string
}

// Group returns the skill type used to group the skills list.
func (s *Skill) Group() string { return s.Type }

// Group returns the project category.
func (p *Project) Group() string { return p.Category }
