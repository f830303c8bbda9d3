package sidebar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/agentflow-dev/toolsets/pkg/client"
)

// The drag transfer layer is string-only, so every non-string value is
// serialized explicitly and parsed back symmetrically by the drop target.
// One discriminated schema replaces scattered per-field set/get calls.

// PayloadType discriminates drag payloads.
type PayloadType string

const (
	PayloadToolset PayloadType = "toolset"
	PayloadTool    PayloadType = "tool"
)

var ErrUnknownPayload = errors.New("unknown drag payload type")

// DragTool is the tool metadata carried in drag payloads.
type DragTool struct {
	ToolName    string `json:"toolName"`
	FullName    string `json:"fullName"`
	ToolsetName string `json:"toolsetName"`
	Description string `json:"description"`
	AppName     string `json:"appName"`
}

// ToolsetPayload bundles a whole instance for the drop target.
type ToolsetPayload struct {
	Type            string `json:"type"`
	InstanceID      string `json:"instanceId"`
	InstanceName    string `json:"instanceName"`
	ToolsetType     string `json:"toolsetType"`
	Tools           string `json:"tools"` // JSON-serialized []DragTool
	Icon            string `json:"icon"`
	Category        string `json:"category"`
	IsConfigured    string `json:"isConfigured"`    // "true"/"false"
	IsAuthenticated string `json:"isAuthenticated"` // "true"/"false"
}

// ToolPayload is one tool plus the full sibling list, so the drop target
// can offer more tools from the same instance without another fetch.
type ToolPayload struct {
	Type         string `json:"type"`
	InstanceID   string `json:"instanceId"`
	InstanceName string `json:"instanceName"`
	ToolsetType  string `json:"toolsetType"`
	Tool         string `json:"tool"`     // JSON-serialized DragTool
	AllTools     string `json:"allTools"` // JSON-serialized []DragTool
	Icon         string `json:"icon"`
	Category     string `json:"category"`
}

func mapTools(node *InstanceNode) []DragTool {
	out := make([]DragTool, 0, len(node.Tools))
	for _, tool := range node.Tools {
		out = append(out, DragTool{
			ToolName:    tool.Name,
			FullName:    tool.FullName,
			ToolsetName: node.InstanceName,
			Description: tool.Description,
			AppName:     node.ToolsetType,
		})
	}
	return out
}

// EncodeToolset serializes a whole-instance drag payload.
func EncodeToolset(node *InstanceNode) (string, error) {
	tools, err := json.Marshal(mapTools(node))
	if err != nil {
		return "", err
	}
	payload := ToolsetPayload{
		Type:            string(PayloadToolset),
		InstanceID:      node.InstanceID,
		InstanceName:    node.InstanceName,
		ToolsetType:     node.ToolsetType,
		Tools:           string(tools),
		Icon:            node.Icon,
		Category:        node.Category,
		IsConfigured:    strconv.FormatBool(node.IsConfigured),
		IsAuthenticated: strconv.FormatBool(node.IsAuthenticated),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EncodeTool serializes a single-tool drag payload carrying the sibling
// list.
func EncodeTool(node *InstanceNode, tool client.RegistryTool) (string, error) {
	mapped := DragTool{
		ToolName:    tool.Name,
		FullName:    tool.FullName,
		ToolsetName: node.InstanceName,
		Description: tool.Description,
		AppName:     node.ToolsetType,
	}
	one, err := json.Marshal(mapped)
	if err != nil {
		return "", err
	}
	all, err := json.Marshal(mapTools(node))
	if err != nil {
		return "", err
	}
	payload := ToolPayload{
		Type:         string(PayloadTool),
		InstanceID:   node.InstanceID,
		InstanceName: node.InstanceName,
		ToolsetType:  node.ToolsetType,
		Tool:         string(one),
		AllTools:     string(all),
		Icon:         node.Icon,
		Category:     node.Category,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decoded is the parsed form of either payload variant.
type Decoded struct {
	Type            PayloadType
	InstanceID      string
	InstanceName    string
	ToolsetType     string
	Icon            string
	Category        string
	Tool            *DragTool
	Tools           []DragTool
	IsConfigured    bool
	IsAuthenticated bool
}

// Decode parses a drag payload produced by EncodeToolset or EncodeTool.
func Decode(raw string) (*Decoded, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(raw), &head); err != nil {
		return nil, fmt.Errorf("invalid drag payload: %w", err)
	}

	switch PayloadType(head.Type) {
	case PayloadToolset:
		var payload ToolsetPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("invalid toolset payload: %w", err)
		}
		var tools []DragTool
		if payload.Tools != "" {
			if err := json.Unmarshal([]byte(payload.Tools), &tools); err != nil {
				return nil, fmt.Errorf("invalid tool list: %w", err)
			}
		}
		configured, _ := strconv.ParseBool(payload.IsConfigured)
		authenticated, _ := strconv.ParseBool(payload.IsAuthenticated)
		return &Decoded{
			Type:            PayloadToolset,
			InstanceID:      payload.InstanceID,
			InstanceName:    payload.InstanceName,
			ToolsetType:     payload.ToolsetType,
			Icon:            payload.Icon,
			Category:        payload.Category,
			Tools:           tools,
			IsConfigured:    configured,
			IsAuthenticated: authenticated,
		}, nil
	case PayloadTool:
		var payload ToolPayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("invalid tool payload: %w", err)
		}
		var tool DragTool
		if err := json.Unmarshal([]byte(payload.Tool), &tool); err != nil {
			return nil, fmt.Errorf("invalid tool: %w", err)
		}
		var all []DragTool
		if payload.AllTools != "" {
			if err := json.Unmarshal([]byte(payload.AllTools), &all); err != nil {
				return nil, fmt.Errorf("invalid sibling tool list: %w", err)
			}
		}
		return &Decoded{
			Type:         PayloadTool,
			InstanceID:   payload.InstanceID,
			InstanceName: payload.InstanceName,
			ToolsetType:  payload.ToolsetType,
			Icon:         payload.Icon,
			Category:     payload.Category,
			Tool:         &tool,
			Tools:        all,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, head.Type)
	}
}
