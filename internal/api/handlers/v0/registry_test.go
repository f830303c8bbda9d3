package v0_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v0 "github.com/agentflow-dev/toolsets/internal/api/handlers/v0"
	"github.com/agentflow-dev/toolsets/internal/models"
	"github.com/agentflow-dev/toolsets/internal/service"
)

func TestListRegistryEndpoint(t *testing.T) {
	mux, _, _ := newTestMux(t)

	tests := []struct {
		name          string
		queryParams   string
		expectedCount int
	}{
		{name: "list all", queryParams: "", expectedCount: 2},
		{name: "search", queryParams: "?search=acme", expectedCount: 1},
		{name: "limit", queryParams: "?limit=1", expectedCount: 1},
		{name: "no match", queryParams: "?search=zzz", expectedCount: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, mux, http.MethodGet, "/v1/toolsets/registry"+tt.queryParams, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			page := decodeBody[service.RegistryPage](t, w)
			assert.Len(t, page.Toolsets, tt.expectedCount)
		})
	}

	// Tool detail stays out of the listing unless asked for.
	w := doRequest(t, mux, http.MethodGet, "/v1/toolsets/registry?search=acme", nil)
	page := decodeBody[service.RegistryPage](t, w)
	require.Len(t, page.Toolsets, 1)
	assert.Empty(t, page.Toolsets[0].Tools)
	assert.Zero(t, page.Toolsets[0].ToolCount)

	w = doRequest(t, mux, http.MethodGet, "/v1/toolsets/registry?search=acme&include_tools=true", nil)
	page = decodeBody[service.RegistryPage](t, w)
	require.Len(t, page.Toolsets, 1)
	assert.Len(t, page.Toolsets[0].Tools, 2)
}

func TestListRegistryGrouped(t *testing.T) {
	mux, _, _ := newTestMux(t)

	w := doRequest(t, mux, http.MethodGet, "/v1/toolsets/registry?group_by_category=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeBody[service.RegistryPage](t, w)
	assert.Equal(t, 2, page.TotalCount)
	require.Contains(t, page.Groups, "CRM")
	require.Contains(t, page.Groups, "Utilities")
	assert.Equal(t, "acme", page.Groups["CRM"][0].Type)
}

func TestGetToolsetSchemaEndpoint(t *testing.T) {
	mux, _, _ := newTestMux(t)

	w := doRequest(t, mux, http.MethodGet, "/v1/toolsets/registry/acme/schema", nil)
	require.Equal(t, http.StatusOK, w.Code)
	schema := decodeBody[models.ToolsetSchema](t, w)
	assert.Equal(t, "acme", schema.ToolsetType)
	assert.Contains(t, schema.Schemas, models.AuthTypeOAuth)
	assert.Contains(t, schema.Schemas, models.AuthTypeAPIToken)

	w = doRequest(t, mux, http.MethodGet, "/v1/toolsets/registry/nope/schema", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchToolsEndpoint(t *testing.T) {
	mux, _, _ := newTestMux(t)

	w := doRequest(t, mux, http.MethodGet, "/v1/toolsets/tools", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decodeBody[v0.ToolListBody](t, w)
	assert.Equal(t, 3, all.Count)

	w = doRequest(t, mux, http.MethodGet, "/v1/toolsets/tools?app_name=acme", nil)
	scoped := decodeBody[v0.ToolListBody](t, w)
	assert.Equal(t, 2, scoped.Count)

	w = doRequest(t, mux, http.MethodGet, "/v1/toolsets/tools?app_name=acme&search=lead", nil)
	searched := decodeBody[v0.ToolListBody](t, w)
	assert.Equal(t, 2, searched.Count)

	w = doRequest(t, mux, http.MethodGet, "/v1/toolsets/tools?search=zzz", nil)
	none := decodeBody[v0.ToolListBody](t, w)
	assert.Zero(t, none.Count)
}
