// Package sidebar transforms the flat MyToolset projection into the nested,
// collapsible, draggable tree the flow-builder sidebar renders, and defines
// the string-only drag payload codec shared with drop targets.
package sidebar

import (
	"sort"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

// DragWarning names the reason an instance cannot be dragged.
type DragWarning string

const (
	WarnNotConfigured    DragWarning = "not configured"
	WarnNotAuthenticated DragWarning = "not authenticated"
)

// InstanceNode is one draggable toolset instance in the tree.
type InstanceNode struct {
	InstanceID      string
	InstanceName    string
	ToolsetType     string
	DisplayName     string
	Category        string
	Icon            string
	Tools           []client.RegistryTool
	IsConfigured    bool
	IsAuthenticated bool

	// NeedsConfiguration marks the node non-draggable.
	NeedsConfiguration bool
	// Expanded is the default collapse state: single-instance types start
	// expanded, sub-groups under a type header start collapsed.
	Expanded bool
}

// DragBlocked returns the warning for a non-draggable node and the settings
// route the click should redirect to. isBusiness selects the admin route.
func (n *InstanceNode) DragBlocked(isBusiness bool) (DragWarning, string, bool) {
	if !n.IsConfigured {
		return WarnNotConfigured, settingsRoute(isBusiness), true
	}
	if !n.IsAuthenticated {
		return WarnNotAuthenticated, settingsRoute(isBusiness), true
	}
	return "", "", false
}

func settingsRoute(isBusiness bool) string {
	if isBusiness {
		return "/settings/business/toolsets"
	}
	return "/settings/toolsets"
}

// TypeNode is a type-level header grouping multiple instances of one type.
// It only exists when more than one instance shares the type.
type TypeNode struct {
	ToolsetType string
	DisplayName string
	Icon        string
	Category    string
	Instances   []InstanceNode
	// Expanded defaults to false: type headers start collapsed.
	Expanded bool
}

// Node is one top-level tree entry: either a lone instance or a type group.
type Node struct {
	Instance *InstanceNode
	Group    *TypeNode
}

// BuildTree groups toolsets by type, then by instance. Single-instance
// types skip the type header the grouping would otherwise force. The input
// slice is never mutated.
func BuildTree(toolsets []client.MyToolset) []Node {
	byType := make(map[string][]client.MyToolset)
	var order []string
	for _, t := range toolsets {
		if _, seen := byType[t.ToolsetType]; !seen {
			order = append(order, t.ToolsetType)
		}
		byType[t.ToolsetType] = append(byType[t.ToolsetType], t)
	}
	sort.Strings(order)

	nodes := make([]Node, 0, len(order))
	for _, toolsetType := range order {
		group := byType[toolsetType]
		if len(group) == 1 {
			node := instanceNode(group[0], true)
			nodes = append(nodes, Node{Instance: &node})
			continue
		}
		sort.Slice(group, func(i, j int) bool { return group[i].InstanceName < group[j].InstanceName })
		typeNode := &TypeNode{
			ToolsetType: toolsetType,
			DisplayName: group[0].DisplayName,
			Icon:        group[0].Icon,
			Category:    group[0].Category,
			Instances:   make([]InstanceNode, 0, len(group)),
		}
		for _, t := range group {
			typeNode.Instances = append(typeNode.Instances, instanceNode(t, false))
		}
		nodes = append(nodes, Node{Group: typeNode})
	}
	return nodes
}

func instanceNode(t client.MyToolset, single bool) InstanceNode {
	tools := append([]client.RegistryTool(nil), t.Tools...)
	return InstanceNode{
		InstanceID:         t.InstanceID,
		InstanceName:       t.InstanceName,
		ToolsetType:        t.ToolsetType,
		DisplayName:        t.DisplayName,
		Category:           t.Category,
		Icon:               t.Icon,
		Tools:              tools,
		IsConfigured:       t.IsConfigured,
		IsAuthenticated:    t.IsAuthenticated,
		NeedsConfiguration: !t.IsConfigured || !t.IsAuthenticated,
		Expanded:           single,
	}
}
