package sidebar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

func myToolset(instanceID, name, toolsetType string, configured, authenticated bool) client.MyToolset {
	return client.MyToolset{
		InstanceID:      instanceID,
		InstanceName:    name,
		ToolsetType:     toolsetType,
		DisplayName:     "Display " + toolsetType,
		Category:        "CRM",
		Icon:            toolsetType + ".svg",
		IsConfigured:    configured,
		IsAuthenticated: authenticated,
		Tools: []client.RegistryTool{
			{Name: "doThing", FullName: toolsetType + ".doThing", Description: "does the thing"},
		},
	}
}

func TestBuildTreeSingleInstanceSkipsTypeHeader(t *testing.T) {
	nodes := BuildTree([]client.MyToolset{
		myToolset("i1", "Acme Sales", "acme", true, true),
	})

	require.Len(t, nodes, 1)
	require.NotNil(t, nodes[0].Instance)
	assert.Nil(t, nodes[0].Group)

	node := nodes[0].Instance
	assert.Equal(t, "i1", node.InstanceID)
	assert.True(t, node.Expanded)
	assert.False(t, node.NeedsConfiguration)
}

func TestBuildTreeGroupsMultipleInstances(t *testing.T) {
	nodes := BuildTree([]client.MyToolset{
		myToolset("i2", "Zeta Desk", "acme", true, true),
		myToolset("i1", "Alpha Desk", "acme", true, false),
		myToolset("i3", "Solo", "beta", true, true),
	})

	require.Len(t, nodes, 2)

	// acme sorts before beta; two instances force a type header.
	group := nodes[0].Group
	require.NotNil(t, group)
	assert.Equal(t, "acme", group.ToolsetType)
	assert.Equal(t, "Display acme", group.DisplayName)
	assert.False(t, group.Expanded)

	require.Len(t, group.Instances, 2)
	assert.Equal(t, "Alpha Desk", group.Instances[0].InstanceName)
	assert.Equal(t, "Zeta Desk", group.Instances[1].InstanceName)
	// Sub-group entries start collapsed.
	assert.False(t, group.Instances[0].Expanded)

	require.NotNil(t, nodes[1].Instance)
	assert.Equal(t, "i3", nodes[1].Instance.InstanceID)
}

func TestBuildTreeDoesNotMutateInput(t *testing.T) {
	input := []client.MyToolset{
		myToolset("i2", "Zeta", "acme", true, true),
		myToolset("i1", "Alpha", "acme", true, true),
	}

	_ = BuildTree(input)

	assert.Equal(t, "i2", input[0].InstanceID)
	assert.Equal(t, "i1", input[1].InstanceID)
}

func TestNeedsConfigurationFlag(t *testing.T) {
	tests := []struct {
		name          string
		configured    bool
		authenticated bool
		expected      bool
	}{
		{name: "ready", configured: true, authenticated: true, expected: false},
		{name: "unconfigured", configured: false, authenticated: false, expected: true},
		{name: "unauthenticated", configured: true, authenticated: false, expected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes := BuildTree([]client.MyToolset{
				myToolset("i1", "One", "acme", tt.configured, tt.authenticated),
			})
			require.NotNil(t, nodes[0].Instance)
			assert.Equal(t, tt.expected, nodes[0].Instance.NeedsConfiguration)
		})
	}
}

func TestDragBlocked(t *testing.T) {
	tests := []struct {
		name            string
		configured      bool
		authenticated   bool
		isBusiness      bool
		expectedWarning DragWarning
		expectedRoute   string
		blocked         bool
	}{
		{
			name: "ready is draggable", configured: true, authenticated: true,
			blocked: false,
		},
		{
			name: "unconfigured personal", configured: false, authenticated: false,
			expectedWarning: WarnNotConfigured, expectedRoute: "/settings/toolsets", blocked: true,
		},
		{
			name: "unconfigured business", configured: false, authenticated: false, isBusiness: true,
			expectedWarning: WarnNotConfigured, expectedRoute: "/settings/business/toolsets", blocked: true,
		},
		{
			name: "unauthenticated personal", configured: true, authenticated: false,
			expectedWarning: WarnNotAuthenticated, expectedRoute: "/settings/toolsets", blocked: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := &InstanceNode{IsConfigured: tt.configured, IsAuthenticated: tt.authenticated}
			warning, route, blocked := node.DragBlocked(tt.isBusiness)
			assert.Equal(t, tt.blocked, blocked)
			assert.Equal(t, tt.expectedWarning, warning)
			assert.Equal(t, tt.expectedRoute, route)
		})
	}
}
