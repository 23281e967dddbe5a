package editor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/portfolio-admin/internal/files"
	"github.com/jonathan/portfolio-admin/internal/observability"
	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

func TestSet_StartsEveryKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mem := store.NewMemory()
	require.NoError(t, mem.WriteAt(ctx, "bio", types.SingletonKey, json.RawMessage(`{"name":"Ada"}`)))
	require.NoError(t, mem.WriteAt(ctx, "skills", "0", json.RawMessage(`{"name":"Go","type":"Backend"}`)))

	set := NewSet(types.Kinds(), Deps{
		Collection: mem,
		Files:      files.NewMemory(""),
		Logger:     zaptest.NewLogger(t),
		Metrics:    observability.NewMetrics(),
	})
	require.NoError(t, set.Start(ctx))

	names := []string{}
	for _, e := range set.All() {
		names = append(names, e.Kind.Name)
		assert.True(t, e.Cache.Subscribed(), e.Kind.Name)
	}
	assert.Equal(t, []string{"bio", "skills", "experience", "projects", "education"}, names)

	bio, ok := set.Get("bio")
	require.True(t, ok)
	assert.Equal(t, types.SingletonKey, bio.Form.Key())

	skills, _ := set.Get("skills")
	assert.Len(t, skills.Cache.View().Entries, 1)

	_, ok = set.Get("unknown")
	assert.False(t, ok)

	cancel()
	for _, e := range set.All() {
		require.Eventually(t, func() bool { return !e.Cache.Subscribed() }, 2*time.Second, 10*time.Millisecond)
	}
}

func TestEditor_LoadUnknown(t *testing.T) {
	f := newFixture(t, types.SkillsKind)
	assert.ErrorIs(t, f.editor.Load("3"), ErrUnknownRecord)
}

func TestEditor_StartSingletonWithoutProfile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, types.BioKind)
	require.NoError(t, f.editor.Start(ctx))
	assert.False(t, f.editor.Form.Draft().Editing)
}

func TestStatus_InProgress(t *testing.T) {
	assert.True(t, Status{Phase: PhaseUploading}.InProgress())
	assert.True(t, Status{Phase: PhaseDeleting}.InProgress())
	assert.False(t, Status{Phase: PhaseConfirming}.InProgress())
	assert.False(t, Status{Phase: PhaseError}.InProgress())
}

func TestErrors_Unwrap(t *testing.T) {
	ue := &UploadError{Slot: "image", Path: "skills/a.png", Cause: errBackend}
	assert.ErrorIs(t, ue, errBackend)
	assert.Contains(t, ue.Error(), "skills/a.png")

	pe := &PersistenceError{Op: "write", Key: "3", Cause: errBackend}
	assert.ErrorIs(t, pe, errBackend)
	assert.Equal(t, "failed to write record 3: backend unavailable", pe.Error())

	ve := &ValidationError{Field: "title", Message: "is required"}
	assert.Equal(t, "validation error: title is required", ve.Error())
}
