package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasKind(t *testing.T) {
	for _, kind := range []string{"bio", "skills", "experience", "projects", "education"} {
		assert.True(t, HasKind(kind), kind)
	}
	assert.False(t, HasKind("unknown"))
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		doc       string
		wantError bool
	}{
		{"valid skill", "skills", `{"name":"Go","type":"Backend","image":"https://x/skills/go.png"}`, false},
		{"skill with unknown type", "skills", `{"name":"Go","type":"Database"}`, true},
		{"skill missing name", "skills", `{"type":"Backend"}`, true},
		{"valid project", "projects", `{"title":"P","ontop":1,"member":[{"name":"a","img":""}],"tags":["x"]}`, false},
		{"project with bad ontop", "projects", `{"title":"P","ontop":2}`, true},
		{"project member wrong type", "projects", `{"title":"P","member":[{"name":3}]}`, true},
		{"bio with null roles", "bio", `{"name":"Ada","roles":null}`, false},
		{"bio roles wrong type", "bio", `{"name":"Ada","roles":"a,b"}`, true},
		{"education missing school", "education", `{"degree":"BSc"}`, true},
		{"experience extra field", "experience", `{"role":"Eng","company":"Acme","extra":true}`, false},
		{"not an object", "education", `[1,2]`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.kind, []byte(tt.doc))
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want *ValidationError, got %T", err)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidateDocument_UnknownKind(t *testing.T) {
	err := ValidateDocument("unknown", []byte(`{}`))
	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, err.Error(), "kinds/unknown.json")
}

func TestValidateDocument_MalformedDocument(t *testing.T) {
	err := ValidateDocument("skills", []byte(`{ invalid json }`))
	require.Error(t, err)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type":"object","required":["a"],"properties":{"a":{"type":"string"}}}`

	assert.NoError(t, ValidateJSONString(schema, `{"a":"x"}`))

	err := ValidateJSONString(schema, `{}`)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "(root)", ve.Errors[0].Field)
	assert.Contains(t, err.Error(), "validation failed")

	err = ValidateJSONString(`{"type": 12}`, `{}`)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}
