package gcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestToFields(t *testing.T) {
	fields, err := toFields(json.RawMessage(`{"title":"P","ontop":1,"score":1.5,"tags":["a"],"member":[{"name":"x","n":2}]}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), fields["ontop"], "whole numbers become integers")
	assert.Equal(t, 1.5, fields["score"])
	assert.Equal(t, []any{"a"}, fields["tags"])
	assert.Equal(t, int64(2), fields["member"].([]any)[0].(map[string]any)["n"])
}

func TestToFields_RejectsNonObjects(t *testing.T) {
	for _, doc := range []string{`[1,2]`, `"x"`, `null`, `{`} {
		_, err := toFields(json.RawMessage(doc))
		assert.Error(t, err, doc)
	}
}

func TestFieldsRoundTrip(t *testing.T) {
	in := `{"name":"Ada","roles":["Engineer"],"ontop":0}`
	fields, err := toFields(json.RawMessage(in))
	require.NoError(t, err)
	out, err := fromFields(fields)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestBucketOrigin(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/portfolio-assets/", BucketOrigin("portfolio-assets"))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(storage.ErrObjectNotExist))
	assert.True(t, isNotFound(fmt.Errorf("delete: %w", storage.ErrObjectNotExist)))
	assert.True(t, isNotFound(&googleapi.Error{Code: http.StatusNotFound}))
	assert.False(t, isNotFound(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isNotFound(fmt.Errorf("boom")))
}
