package editor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

func seedEducation(t *testing.T, f *fixture, keys ...string) {
	t.Helper()
	docs := map[string]string{}
	for _, k := range keys {
		docs[k] = `{"school":"S` + k + `","degree":"BSc","date":"2020","grade":"A","desc":"d","img":""}`
	}
	f.seed(t, "education", docs)
	require.NoError(t, f.editor.Cache.Refresh(context.Background()))
}

// Scenario: deleting a middle key does not free it for the next record.
func TestDelete_KeysAreNotReused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.EducationKind)
	e := f.editor
	seedEducation(t, f, "0", "1", "2")

	st, err := e.Deleter.RequestDelete("1")
	require.NoError(t, err)
	assert.Equal(t, Status{Phase: PhaseConfirming, Target: "1"}, st)

	st, err = e.Deleter.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, []string{"0", "2"}, keysOf(e.Cache.View()))

	require.NoError(t, e.Form.Replace(&types.Education{School: "New", Degree: "MSc", Date: "2024", Grade: "A", Desc: "d"}))
	st, err = e.Submitter.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3", st.Target)

	// Deleting the highest key does not free it either.
	_, err = e.Deleter.RequestDelete("3")
	require.NoError(t, err)
	_, err = e.Deleter.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4", e.Cache.NextKey())
}

func TestDelete_CancelMakesNoCalls(t *testing.T) {
	f := newFixture(t, types.EducationKind)
	seedEducation(t, f, "0")
	before := f.coll.Total()

	_, err := f.editor.Deleter.RequestDelete("0")
	require.NoError(t, err)
	st := f.editor.Deleter.Cancel()

	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Empty(t, st.Target)
	assert.Equal(t, before, f.coll.Total())
	assert.Empty(t, f.files.Deletes())

	_, err = f.editor.Deleter.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrNoDeletionTarget)
}

func TestDelete_UnknownKey(t *testing.T) {
	f := newFixture(t, types.EducationKind)
	seedEducation(t, f, "0")

	st, err := f.editor.Deleter.RequestDelete("9")
	assert.ErrorIs(t, err, ErrUnknownRecord)
	assert.Equal(t, PhaseIdle, st.Phase)
}

func TestDelete_RemovesEveryAttachment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.ProjectsKind)
	e := f.editor
	for _, p := range []string{"projects/cover.png", "profile_pics/a.png", "profile_pics/b.png"} {
		_, err := f.files.Memory.Upload(ctx, p, png(p))
		require.NoError(t, err)
	}
	f.seed(t, "projects", map[string]string{
		"0": `{"title":"P","image":"memory://portfolio/projects/cover.png","member":[` +
			`{"name":"a","img":"memory://portfolio/profile_pics/a.png"},` +
			`{"name":"b","img":"memory://portfolio/profile_pics/b.png"},` +
			`{"name":"c","img":""}]}`,
	})
	require.NoError(t, e.Cache.Refresh(ctx))

	_, err := e.Deleter.RequestDelete("0")
	require.NoError(t, err)
	_, err = e.Deleter.Confirm(ctx)
	require.NoError(t, err)

	assert.Len(t, f.files.Deletes(), 3, "empty references are skipped")
	assert.Equal(t, 0, f.files.Len())
	_, err = f.coll.Collection.Get(ctx, "projects", "0")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_AttachmentFailuresDoNotBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.SkillsKind)
	e := f.editor
	f.seed(t, "skills", map[string]string{
		"0": `{"name":"Go","type":"Backend","image":"memory://portfolio/skills/missing.png"}`,
		"1": `{"name":"Rust","type":"Backend","image":"memory://portfolio/skills/rust.png"}`,
	})
	require.NoError(t, e.Cache.Refresh(ctx))

	// Missing object: logged and ignored.
	_, err := e.Deleter.RequestDelete("0")
	require.NoError(t, err)
	_, err = e.Deleter.Confirm(ctx)
	require.NoError(t, err)

	// Storage failure: logged and ignored.
	f.files.failDelete = errBackend
	_, err = e.Deleter.RequestDelete("1")
	require.NoError(t, err)
	st, err := e.Deleter.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Empty(t, e.Cache.View().Entries)
}

func TestDelete_FallsBackToCachedRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.SkillsKind)
	e := f.editor
	_, err := f.files.Memory.Upload(ctx, "skills/go.png", png("go.png"))
	require.NoError(t, err)
	f.seed(t, "skills", map[string]string{
		"0": `{"name":"Go","type":"Backend","image":"memory://portfolio/skills/go.png"}`,
	})
	require.NoError(t, e.Cache.Refresh(ctx))
	f.coll.failGet = errBackend

	_, err = e.Deleter.RequestDelete("0")
	require.NoError(t, err)
	_, err = e.Deleter.Confirm(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, f.coll.Calls("get"))
	assert.Equal(t, []string{"memory://portfolio/skills/go.png"}, f.files.Deletes())
	_, ok := f.files.Object("skills/go.png")
	assert.False(t, ok)
}

func TestDelete_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.EducationKind)
	e := f.editor
	seedEducation(t, f, "0")
	f.coll.failDel = errBackend

	_, err := e.Deleter.RequestDelete("0")
	require.NoError(t, err)
	st, err := e.Deleter.Confirm(ctx)

	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "delete", pe.Op)
	assert.Equal(t, PhaseError, st.Phase)
	assert.Equal(t, "0", st.Target)
	assert.Equal(t, []string{"0"}, keysOf(e.Cache.View()), "cache untouched when the delete fails")

	assert.Equal(t, PhaseIdle, e.Deleter.Cancel().Phase)
}

func TestDelete_ResetsFormEditingTheRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, types.EducationKind)
	e := f.editor
	seedEducation(t, f, "0", "1")

	require.NoError(t, e.Load("1"))
	_, err := e.Deleter.RequestDelete("1")
	require.NoError(t, err)
	_, err = e.Deleter.Confirm(ctx)
	require.NoError(t, err)
	assert.False(t, e.Form.Draft().Editing)

	require.NoError(t, e.Load("0"))
	_, err = e.Deleter.RequestDelete("0")
	require.NoError(t, err)
	e.Deleter.Cancel()
	assert.Equal(t, "0", e.Form.Key(), "cancelled deletions leave the draft alone")
}

func TestDelete_SingletonBio(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, types.BioKind)
	e := f.editor
	_, err := f.files.Memory.Upload(ctx, "bio/cv.pdf", files.File{Name: "cv.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	f.seed(t, "bio", map[string]string{
		"profile": `{"name":"Ada","resume":"memory://portfolio/bio/cv.pdf"}`,
	})
	require.NoError(t, e.Start(ctx))
	require.True(t, e.Form.Draft().Editing)

	_, err = e.Deleter.RequestDelete(types.SingletonKey)
	require.NoError(t, err)
	_, err = e.Deleter.Confirm(ctx)
	require.NoError(t, err)

	assert.False(t, e.Form.Draft().Editing)
	assert.Equal(t, 0, f.files.Len())
	_, err = f.coll.Collection.Get(ctx, "bio", types.SingletonKey)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The next save recreates the profile under the singleton key.
	require.NoError(t, e.Form.Replace(&types.Bio{Name: "Ada"}))
	st, err := e.Submitter.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.SingletonKey, st.Target)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(f.stored(t, "bio", types.SingletonKey), &stored))
	assert.Equal(t, "Ada", stored["name"])
}
