package editor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/types"
)

// Scenario: an empty skills collection receives its first record.
func TestSubmit_FirstRecordGetsKeyZero(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, types.SkillsKind)
	e := f.editor
	require.NoError(t, e.Start(ctx))

	require.NoError(t, e.Form.Replace(&types.Skill{Name: "Rust", Type: "Backend"}))
	require.NoError(t, e.Form.SelectFile("image", png("rust.png")))

	st, err := e.Submitter.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Phase: PhaseSuccess, Target: "0"}, st)

	var stored types.Skill
	require.NoError(t, json.Unmarshal(f.stored(t, "skills", "0"), &stored))
	assert.Equal(t, "Rust", stored.Name)
	assert.Equal(t, files.MemoryOrigin+"skills/rust.png", stored.Image)

	groups := e.Cache.View().Grouped(types.SkillTypes)
	require.Len(t, groups, 1)
	assert.Equal(t, "Backend", groups[0].Name)
	require.Len(t, groups[0].Entries, 1)
	assert.Equal(t, "0", groups[0].Entries[0].Key)

	require.Eventually(t, func() bool {
		v := e.Cache.View()
		return len(v.Entries) == 1 && !v.Entries[0].Provisional
	}, 2*time.Second, 10*time.Millisecond, "subscription should confirm the provisional patch")

	assert.False(t, e.Form.Draft().Editing, "draft reset after success")
	assert.Empty(t, e.Form.Draft().Pending)
	assert.Equal(t, 0, f.coll.Calls("fetch"), "subscribed caches are not refetched")
}

// Scenario: a missing required field is rejected before any backend call.
func TestSubmit_ValidationMakesNoCalls(t *testing.T) {
	f := newFixture(t, types.ProjectsKind)
	e := f.editor

	require.NoError(t, e.Form.Replace(&types.Project{Date: "2024", Description: "d"}))
	require.NoError(t, e.Form.SelectFile("image", png("cover.png")))

	st, err := e.Submitter.Submit(context.Background())
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "title", ve.Field)
	assert.Equal(t, PhaseIdle, st.Phase)

	assert.Equal(t, 0, f.coll.Total())
	assert.Empty(t, f.files.Uploads())
	assert.False(t, e.Form.Busy())
	assert.Contains(t, e.Form.Draft().Pending, "image", "draft kept after validation failure")
}

func TestSubmit_RequiredAttachmentOnCreate(t *testing.T) {
	f := newFixture(t, types.SkillsKind)
	e := f.editor
	require.NoError(t, e.Form.Replace(&types.Skill{Name: "Go", Type: "Backend"}))

	_, err := e.Submitter.Submit(context.Background())
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "image", ve.Field)
	assert.Equal(t, 0, f.coll.Total())
}

func TestSubmit_AttachmentMustBeStoredFile(t *testing.T) {
	tests := []struct {
		name    string
		kind    types.Kind
		record  types.Record
		pending map[string]string
		field   string
	}{
		{
			name:   "local path in create mode",
			kind:   types.SkillsKind,
			record: &types.Skill{Name: "Rust", Type: "Backend", Image: `C:\fakepath\rust.png`},
			field:  "image",
		},
		{
			name:   "foreign URL beside a pending member file",
			kind:   types.ProjectsKind,
			record: &types.Project{Title: "P", Date: "2024", Description: "d", Image: "https://elsewhere/x.png", Member: []types.Member{{Name: "a"}}},
			pending: map[string]string{
				types.MemberSlot(0): "a.png",
			},
			field: "image",
		},
		{
			name:   "optional slot",
			kind:   types.EducationKind,
			record: &types.Education{School: "S", Degree: "BSc", Date: "2020", Grade: "A", Desc: "d", Img: "mit.png"},
			field:  "img",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.kind)
			e := f.editor
			require.NoError(t, e.Form.Replace(tt.record))
			for slot, name := range tt.pending {
				require.NoError(t, e.Form.SelectFile(slot, png(name)))
			}

			st, err := e.Submitter.Submit(context.Background())
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, PhaseIdle, st.Phase)

			assert.Equal(t, 0, f.coll.Total())
			assert.Empty(t, f.files.Uploads())
			assert.False(t, e.Form.Busy())
		})
	}
}

func TestSubmit_EditRejectsForeignAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.SkillsKind)
	f.seed(t, "skills", map[string]string{
		"0": `{"name":"Go","type":"Backend","image":"memory://portfolio/skills/go.png"}`,
	})
	e := f.editor
	require.NoError(t, e.Cache.Refresh(ctx))
	require.NoError(t, e.Load("0"))
	before := f.coll.Total()

	require.NoError(t, e.Form.ReplaceJSON([]byte(`{"name":"Go","type":"Backend","image":"/tmp/go.png"}`)))
	_, err := e.Submitter.Submit(ctx)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "image", ve.Field)
	assert.Equal(t, before, f.coll.Total())
}

func TestSubmit_InvalidChoice(t *testing.T) {
	f := newFixture(t, types.ProjectsKind)
	e := f.editor
	require.NoError(t, e.Form.Replace(&types.Project{Title: "P", Date: "2024", Description: "d", Category: "Games"}))

	_, err := e.Submitter.Submit(context.Background())
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "category", ve.Field)
	assert.Equal(t, "has an unsupported value", ve.Message)
}

// Scenario: editing twice without re-selecting a file keeps the stored URL.
func TestSubmit_EditPreservesAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.EducationKind)
	e := f.editor
	require.NoError(t, e.Cache.Refresh(ctx))

	require.NoError(t, e.Form.Replace(&types.Education{School: "MIT", Degree: "BSc", Date: "2020", Grade: "A", Desc: "CS"}))
	require.NoError(t, e.Form.SelectFile("img", png("mit.png")))
	_, err := e.Submitter.Submit(ctx)
	require.NoError(t, err)

	var first types.Education
	require.NoError(t, json.Unmarshal(f.stored(t, "education", "0"), &first))
	require.NotEmpty(t, first.Img)

	for _, grade := range []string{"A+", "A++"} {
		require.NoError(t, e.Load("0"))
		d := e.Form.Draft()
		rec := d.Record.(*types.Education)
		rec.Grade = grade
		require.NoError(t, e.Form.Replace(rec))
		_, err = e.Submitter.Submit(ctx)
		require.NoError(t, err)
	}

	var last types.Education
	require.NoError(t, json.Unmarshal(f.stored(t, "education", "0"), &last))
	assert.Equal(t, "A++", last.Grade)
	assert.Equal(t, first.Img, last.Img)
	assert.Len(t, f.files.Uploads(), 1)

	snap, err := f.coll.Collection.FetchOnce(ctx, "education")
	require.NoError(t, err)
	assert.Len(t, snap.Docs, 1, "edits overwrite the same key")
}

func TestSubmit_UnchangedEditIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.ProjectsKind)
	f.seed(t, "projects", map[string]string{
		"4": `{"title":"Site","category":"Web","date":"2023","description":"d","github":"gh","webapp":"","tags":["go","react"],"image":"memory://portfolio/projects/site.png","member":[{"name":"Ada","github":"","linkedin":"","img":""}],"ontop":1}`,
	})
	e := f.editor
	require.NoError(t, e.Cache.Refresh(ctx))
	before := f.stored(t, "projects", "4")

	require.NoError(t, e.Load("4"))
	st, err := e.Submitter.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4", st.Target)

	var want, got types.Project
	require.NoError(t, json.Unmarshal(before, &want))
	require.NoError(t, json.Unmarshal(f.stored(t, "projects", "4"), &got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record changed by a no-op edit (-want +got):\n%s", diff)
	}
	assert.Empty(t, f.files.Uploads())
}

func TestSubmit_ConcurrentUploadsResolveEverySlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.ProjectsKind)
	e := f.editor
	require.NoError(t, e.Cache.Refresh(ctx))

	require.NoError(t, e.Form.Replace(&types.Project{Title: "P", Date: "2024", Description: "d", Member: []types.Member{{Name: "a"}, {Name: "b"}}}))
	require.NoError(t, e.Form.SetListInput("tags", "go, sql"))
	require.NoError(t, e.Form.SelectFile("image", png("cover.png")))
	require.NoError(t, e.Form.SelectFile(types.MemberSlot(0), png("a.png")))
	require.NoError(t, e.Form.SelectFile(types.MemberSlot(1), png("b.png")))

	_, err := e.Submitter.Submit(ctx)
	require.NoError(t, err)

	var got types.Project
	require.NoError(t, json.Unmarshal(f.stored(t, "projects", "0"), &got))
	assert.Equal(t, files.MemoryOrigin+"projects/cover.png", got.Image)
	assert.Equal(t, files.MemoryOrigin+"profile_pics/a.png", got.Member[0].Img)
	assert.Equal(t, files.MemoryOrigin+"profile_pics/b.png", got.Member[1].Img)
	assert.Equal(t, []string{"go", "sql"}, got.Tags)
	assert.ElementsMatch(t, []string{"projects/cover.png", "profile_pics/a.png", "profile_pics/b.png"}, f.files.Uploads())

	// Without a subscription the cache is refetched after the write.
	assert.Equal(t, 2, f.coll.Calls("fetch"))
	v := e.Cache.View()
	require.Len(t, v.Entries, 1)
	assert.False(t, v.Entries[0].Provisional)
}

func TestSubmit_UploadFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.ProjectsKind)
	e := f.editor
	f.files.failUpload["profile_pics/b.png"] = errBackend

	require.NoError(t, e.Form.Replace(&types.Project{Title: "P", Date: "2024", Description: "d", Member: []types.Member{{Name: "a"}, {Name: "b"}}}))
	require.NoError(t, e.Form.SelectFile("image", png("cover.png")))
	require.NoError(t, e.Form.SelectFile(types.MemberSlot(1), png("b.png")))

	st, err := e.Submitter.Submit(ctx)
	var ue *UploadError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, types.MemberSlot(1), ue.Slot)
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, PhaseError, e.Submitter.Status().Phase)

	assert.Equal(t, 0, f.coll.Calls("write"), "no record write after a failed upload")
	d := e.Form.Draft()
	assert.Len(t, d.Pending, 2)
	assert.Equal(t, "P", d.Record.(*types.Project).Title)
	assert.False(t, e.Form.Busy())
}

func TestSubmit_PersistenceFailureKeepsDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.EducationKind)
	e := f.editor
	f.coll.failPut = errBackend

	require.NoError(t, e.Form.Replace(&types.Education{School: "MIT", Degree: "BSc", Date: "2020", Grade: "A", Desc: "CS"}))
	require.NoError(t, e.Form.SelectFile("img", png("mit.png")))
	st, err := e.Submitter.Submit(ctx)

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "write", pe.Op)
	assert.Equal(t, "0", pe.Key)
	assert.Equal(t, PhaseError, st.Phase)
	assert.Contains(t, st.Message, "backend unavailable")
	assert.Empty(t, e.Cache.View().Entries, "failed writes are not patched into the cache")
	assert.Equal(t, "MIT", e.Form.Draft().Record.(*types.Education).School)
	assert.Contains(t, e.Form.Draft().Pending, "img")

	// The uploaded file is left in place.
	_, ok := f.files.Object("education/mit.png")
	assert.True(t, ok)

	// Retry succeeds once the backend recovers.
	f.coll.failPut = nil
	st = e.Submitter.Dismiss()
	assert.Equal(t, PhaseIdle, st.Phase)
	_, err = e.Submitter.Submit(ctx)
	require.NoError(t, err)
}

func TestSubmit_BusyWhileInFlight(t *testing.T) {
	f := newFixture(t, types.SkillsKind)
	e := f.editor

	_, err := e.Form.begin()
	require.NoError(t, err)
	_, err = e.Submitter.Submit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 0, f.coll.Total())
	e.Form.finish(false)
}

func TestSubmit_BioMergesIntoSingleton(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, types.BioKind)
	f.seed(t, "bio", map[string]string{
		"profile": `{"name":"Ada","github":"gh-ada","legacy":"kept"}`,
	})
	e := f.editor
	require.NoError(t, e.Start(ctx))

	d := e.Form.Draft()
	require.True(t, d.Editing, "singleton draft loads the stored profile")
	assert.Equal(t, "gh-ada", d.Record.(*types.Bio).Github)

	bio := d.Record.(*types.Bio)
	bio.Name = "Ada L."
	require.NoError(t, e.Form.Replace(bio))
	require.NoError(t, e.Form.SetListInput("roles", "Engineer, Writer"))

	st, err := e.Submitter.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.SingletonKey, st.Target)
	assert.Equal(t, 1, f.coll.Calls("merge"))
	assert.Equal(t, 0, f.coll.Calls("write"))

	var stored map[string]any
	require.NoError(t, json.Unmarshal(f.stored(t, "bio", "profile"), &stored))
	assert.Equal(t, "Ada L.", stored["name"])
	assert.Equal(t, "kept", stored["legacy"], "merge keeps fields the form does not know")
	assert.Equal(t, []any{"Engineer", "Writer"}, stored["roles"])

	assert.True(t, e.Form.Draft().Editing, "singleton draft stays loaded after saving")
}

func TestSubmit_DismissOnlyFinishedPhases(t *testing.T) {
	f := newFixture(t, types.SkillsKind)
	s := f.editor.Submitter

	assert.Equal(t, PhaseIdle, s.Dismiss().Phase)
	s.setStatus(Status{Phase: PhaseUploading})
	assert.Equal(t, PhaseUploading, s.Dismiss().Phase)
	s.setStatus(Status{Phase: PhaseSuccess, Target: "1"})
	assert.Equal(t, PhaseIdle, s.Dismiss().Phase)
}
