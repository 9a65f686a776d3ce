package micropub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperties(t *testing.T) {
	p := Properties{
		"content":  {map[string]interface{}{"html": "<b>hi</b>", "value": "hi"}},
		"category": {"a", "b"},
		"rating":   {float64(4)},
		"empty":    {},
	}

	assert.True(t, p.Has("content"))
	assert.False(t, p.Has("empty"))
	assert.False(t, p.Has("missing"))
	assert.Nil(t, p.First("missing"))
	assert.Equal(t, "<b>hi</b>", p.FirstString("content"))
	assert.Equal(t, "4", p.FirstString("rating"))
	assert.Equal(t, []string{"a", "b"}, p.Strings("category"))

	clone := p.Clone()
	clone["category"][0] = "changed"
	assert.Equal(t, "a", p.FirstString("category"))
}

func TestAuthContext_HasScope(t *testing.T) {
	auth := &AuthContext{Scopes: ParseScopes("create  update media")}
	assert.True(t, auth.HasScope("create"))
	assert.True(t, auth.HasScope("media"))
	assert.False(t, auth.HasScope("delete"))

	var missing *AuthContext
	assert.False(t, missing.HasScope("create"))
}
