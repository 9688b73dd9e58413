package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasic_ValidatesAndRenders(t *testing.T) {
	tok := Basic("neo4j", "secret", "")
	require.NoError(t, tok.Validate())

	fields := tok.Fields()
	assert.Equal(t, "basic", fields["scheme"])
	assert.Equal(t, "neo4j", fields["principal"])
	assert.Equal(t, "secret", fields["credentials"])
	_, hasRealm := fields["realm"]
	assert.False(t, hasRealm)
}

func TestBasic_RejectsEmptyPrincipal(t *testing.T) {
	tok := Basic("", "secret", "")
	require.Error(t, tok.Validate())
}

func TestBasic_RejectsEmptyCredentials(t *testing.T) {
	tok := Basic("neo4j", "", "")
	require.Error(t, tok.Validate())
}

func TestBearer_RequiresToken(t *testing.T) {
	require.Error(t, Bearer("").Validate())
	require.NoError(t, Bearer("eyJ...").Validate())
}

func TestNone_AlwaysValid(t *testing.T) {
	require.NoError(t, None().Validate())
}

func TestUnknownScheme_Rejected(t *testing.T) {
	tok := Token{Scheme: "made-up"}
	require.Error(t, tok.Validate())
}

func TestCustomScheme_PassesParametersThrough(t *testing.T) {
	tok := Token{Scheme: SchemeCustom, Parameters: map[string]any{"ticket": "abc"}}
	require.NoError(t, tok.Validate())
	assert.Equal(t, "abc", tok.Fields()["ticket"])
}
