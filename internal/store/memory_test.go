package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestMemory_WriteGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "skills", "0")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.WriteAt(ctx, "skills", "0", json.RawMessage(`{"name":"Go"}`)))
	doc, err := m.Get(ctx, "skills", "0")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Go"}`, string(doc))

	require.NoError(t, m.DeleteAt(ctx, "skills", "0"))
	_, err = m.Get(ctx, "skills", "0")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is a no-op.
	assert.NoError(t, m.DeleteAt(ctx, "skills", "42"))
}

func TestMemory_WriteRejectsInvalidJSON(t *testing.T) {
	m := NewMemory()
	err := m.WriteAt(context.Background(), "skills", "0", json.RawMessage(`{not json`))
	assert.Error(t, err)
}

func TestMemory_WriteIsTotalOverwrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.WriteAt(ctx, "education", "0", json.RawMessage(`{"school":"A","grade":"1"}`)))
	require.NoError(t, m.WriteAt(ctx, "education", "0", json.RawMessage(`{"school":"B"}`)))

	doc, err := m.Get(ctx, "education", "0")
	require.NoError(t, err)
	assert.JSONEq(t, `{"school":"B"}`, string(doc))
}

func TestMemory_MergeAt(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.MergeAt(ctx, "bio", "profile", json.RawMessage(`{"name":"Ada","github":"gh"}`)))
	require.NoError(t, m.MergeAt(ctx, "bio", "profile", json.RawMessage(`{"name":"Ada L."}`)))

	doc, err := m.Get(ctx, "bio", "profile")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada L.","github":"gh"}`, string(doc))
}

func TestMemory_FetchOnceIsolated(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.WriteAt(ctx, "projects", "0", json.RawMessage(`{}`)))

	snap, err := m.FetchOnce(ctx, "projects")
	require.NoError(t, err)
	require.Len(t, snap.Docs, 1)

	delete(snap.Docs, "0")
	again, err := m.FetchOnce(ctx, "projects")
	require.NoError(t, err)
	assert.Len(t, again.Docs, 1, "mutating a snapshot must not touch the store")

	empty, err := m.FetchOnce(ctx, "nothing")
	require.NoError(t, err)
	assert.NotNil(t, empty.Docs)
	assert.Empty(t, empty.Docs)
}

func TestMemory_SubscribeImmediateThenChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()
	require.NoError(t, m.WriteAt(ctx, "skills", "0", json.RawMessage(`{"name":"Go"}`)))

	ch, err := m.Subscribe(ctx, "skills")
	require.NoError(t, err)

	first := receive(t, ch)
	assert.Len(t, first.Docs, 1)

	require.NoError(t, m.WriteAt(ctx, "skills", "1", json.RawMessage(`{"name":"Rust"}`)))
	second := receive(t, ch)
	assert.Len(t, second.Docs, 2)

	// Writes to other collections are not delivered.
	require.NoError(t, m.WriteAt(ctx, "projects", "0", json.RawMessage(`{}`)))
	select {
	case snap := <-ch:
		t.Fatalf("unexpected snapshot for %s", snap.Path)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestMemory_SubscribeLatestWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()

	ch, err := m.Subscribe(ctx, "skills")
	require.NoError(t, err)

	for _, key := range []string{"0", "1", "2"} {
		require.NoError(t, m.WriteAt(ctx, "skills", key, json.RawMessage(`{}`)))
	}

	snap := receive(t, ch)
	assert.Len(t, snap.Docs, 3, "only the newest snapshot should be buffered")
}

func TestMemory_SubscribeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().Subscribe(ctx, "skills")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeDocuments(t *testing.T) {
	merged, err := MergeDocuments(nil, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(merged))

	merged, err = MergeDocuments(json.RawMessage(`{"a":1,"b":[1,2]}`), json.RawMessage(`{"b":[],"c":"x"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":[],"c":"x"}`, string(merged))

	_, err = MergeDocuments(json.RawMessage(`[1]`), json.RawMessage(`{}`))
	assert.Error(t, err)
}
