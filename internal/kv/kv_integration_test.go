package kv

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/portfolio-admin/internal/store"
)

// testCollection opens a fresh bucket on the server named by NATS_URL and
// removes it when the test ends.
func testCollection(t *testing.T) *Collection {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping integration test")
	}
	ctx := context.Background()
	bucket := "TEST_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	c, err := Open(ctx, url, bucket, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		nc, err := nats.Connect(url)
		if err == nil {
			if js, err := jetstream.New(nc); err == nil {
				_ = js.DeleteKeyValue(ctx, bucket)
			}
			nc.Close()
		}
		_ = c.Close()
	})
	return c
}

func TestIntegration_KVDocuments(t *testing.T) {
	c := testCollection(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "education", "0")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, c.WriteAt(ctx, "education", "0", json.RawMessage(`{"school":"S"}`)))
	require.NoError(t, c.WriteAt(ctx, "skills", "0", json.RawMessage(`{"name":"Go"}`)))
	require.NoError(t, c.MergeAt(ctx, "education", "0", json.RawMessage(`{"grade":"A"}`)))
	require.NoError(t, c.MergeAt(ctx, "education", "1", json.RawMessage(`{"school":"T"}`)))

	doc, err := c.Get(ctx, "education", "0")
	require.NoError(t, err)
	assert.JSONEq(t, `{"school":"S","grade":"A"}`, string(doc))

	snap, err := c.FetchOnce(ctx, "education")
	require.NoError(t, err)
	assert.Len(t, snap.Docs, 2, "other collections are filtered out")

	require.NoError(t, c.DeleteAt(ctx, "education", "1"))
	require.NoError(t, c.DeleteAt(ctx, "education", "9"))
	_, err = c.Get(ctx, "education", "1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	snap, err = c.FetchOnce(ctx, "education")
	require.NoError(t, err)
	assert.Len(t, snap.Docs, 1)
}

func TestIntegration_KVSubscribe(t *testing.T) {
	c := testCollection(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.WriteAt(ctx, "projects", "0", json.RawMessage(`{"title":"A"}`)))
	ch, err := c.Subscribe(ctx, "projects")
	require.NoError(t, err)

	first := <-ch
	assert.Len(t, first.Docs, 1)

	require.NoError(t, c.WriteAt(ctx, "projects", "1", json.RawMessage(`{"title":"B"}`)))
	require.Eventually(t, func() bool {
		select {
		case snap := <-ch:
			return len(snap.Docs) == 2
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, 5*time.Second, 20*time.Millisecond)
}
