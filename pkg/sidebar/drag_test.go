package sidebar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

func dragNode() *InstanceNode {
	return &InstanceNode{
		InstanceID:      "i1",
		InstanceName:    "Acme Sales",
		ToolsetType:     "acme",
		Icon:            "acme.svg",
		Category:        "CRM",
		IsConfigured:    true,
		IsAuthenticated: false,
		Tools: []client.RegistryTool{
			{Name: "createLead", FullName: "acme.createLead", Description: "Create a lead"},
			{Name: "listLeads", FullName: "acme.listLeads", Description: "List leads"},
		},
	}
}

func TestToolsetPayloadRoundTrip(t *testing.T) {
	raw, err := EncodeToolset(dragNode())
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, PayloadToolset, decoded.Type)
	assert.Equal(t, "i1", decoded.InstanceID)
	assert.Equal(t, "Acme Sales", decoded.InstanceName)
	assert.Equal(t, "acme", decoded.ToolsetType)
	assert.Equal(t, "acme.svg", decoded.Icon)
	assert.Equal(t, "CRM", decoded.Category)
	assert.Nil(t, decoded.Tool)

	// Booleans survive the string transfer layer.
	assert.True(t, decoded.IsConfigured)
	assert.False(t, decoded.IsAuthenticated)

	require.Len(t, decoded.Tools, 2)
	tool := decoded.Tools[0]
	assert.Equal(t, "createLead", tool.ToolName)
	assert.Equal(t, "acme.createLead", tool.FullName)
	assert.Equal(t, "Acme Sales", tool.ToolsetName)
	assert.Equal(t, "Create a lead", tool.Description)
	assert.Equal(t, "acme", tool.AppName)
}

func TestToolPayloadRoundTrip(t *testing.T) {
	node := dragNode()
	raw, err := EncodeTool(node, node.Tools[1])
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, PayloadTool, decoded.Type)
	assert.Equal(t, "i1", decoded.InstanceID)

	require.NotNil(t, decoded.Tool)
	assert.Equal(t, "listLeads", decoded.Tool.ToolName)
	assert.Equal(t, "acme.listLeads", decoded.Tool.FullName)
	assert.Equal(t, "Acme Sales", decoded.Tool.ToolsetName)
	assert.Equal(t, "acme", decoded.Tool.AppName)

	// The sibling list rides along so drop targets skip the refetch.
	require.Len(t, decoded.Tools, 2)
	assert.Equal(t, "createLead", decoded.Tools[0].ToolName)
}

func TestEncodeToolsetEmptyTools(t *testing.T) {
	node := dragNode()
	node.Tools = nil

	raw, err := EncodeToolset(node)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, decoded.Tools)
}

func TestDecodeRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "<html>"},
		{name: "unknown type", raw: `{"type":"widget"}`},
		{name: "empty type", raw: `{}`},
		{name: "tool payload with bad inner tool", raw: `{"type":"tool","tool":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			assert.Error(t, err)
		})
	}

	_, err := Decode(`{"type":"widget"}`)
	assert.ErrorIs(t, err, ErrUnknownPayload)
}
