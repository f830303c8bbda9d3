package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *ToolsetSchema {
	return &ToolsetSchema{
		ToolsetType: "slack",
		Schemas: map[AuthType]AuthSchema{
			AuthTypeOAuth: {
				Fields: []SchemaField{
					{Name: "clientId", Label: "Client ID", Required: true},
					{Name: "clientSecret", Label: "Client Secret", Required: true, Secret: true},
				},
				ShowRedirectURI: true,
			},
			AuthTypeAPIToken: {
				Fields: []SchemaField{
					{Name: "apiToken", Label: "API Token", Required: true, MinLength: 8},
				},
			},
		},
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	schema := testSchema()

	first, fields1, ok := schema.Resolve(AuthTypeAPIToken)
	require.True(t, ok)
	second, fields2, ok := schema.Resolve(AuthTypeAPIToken)
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, fields1, fields2)
	// The document itself must not change between calls.
	assert.Equal(t, testSchema(), schema)
}

func TestResolveFallsBackToFirstAuthType(t *testing.T) {
	schema := testSchema()

	authType, authSchema, ok := schema.Resolve("BOGUS")
	require.True(t, ok)
	assert.Equal(t, AuthTypeOAuth, authType)
	assert.True(t, authSchema.ShowRedirectURI)
}

func TestResolveEmptySchema(t *testing.T) {
	var nilSchema *ToolsetSchema
	_, _, ok := nilSchema.Resolve(AuthTypeOAuth)
	assert.False(t, ok)

	empty := &ToolsetSchema{ToolsetType: "x", Schemas: map[AuthType]AuthSchema{}}
	_, _, ok = empty.Resolve(AuthTypeOAuth)
	assert.False(t, ok)
}

func TestAuthTypesStableOrder(t *testing.T) {
	schema := testSchema()
	for i := 0; i < 5; i++ {
		assert.Equal(t, []AuthType{AuthTypeOAuth, AuthTypeAPIToken}, schema.AuthTypes())
	}
}

func TestAuthTypeValid(t *testing.T) {
	assert.True(t, AuthTypeOAuth.Valid())
	assert.True(t, AuthTypeNone.Valid())
	assert.False(t, AuthType("JWT").Valid())
}

func TestOAuthConfigViewHidesSecret(t *testing.T) {
	config := &OAuthConfig{ID: "c1", ClientID: "id", ClientSecret: "super-secret"}
	view := config.View()
	assert.True(t, view.ClientSecretSet)

	config.ClientSecret = ""
	assert.False(t, config.View().ClientSecretSet)
}
