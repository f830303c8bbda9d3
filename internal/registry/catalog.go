// Package registry holds the catalog of available toolset types: their
// tools, categories and per-auth-type credential schemas. The catalog is
// not user-specific; instances reference entries by toolset type.
package registry

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/stoewer/go-strcase"
	"gopkg.in/yaml.v3"

	"github.com/agentflow-dev/toolsets/internal/models"
)

//go:embed catalog.yaml
var seedCatalog []byte

type catalogFile struct {
	Toolsets []catalogEntry `yaml:"toolsets"`
}

type catalogEntry struct {
	Type        string                               `yaml:"type"`
	DisplayName string                               `yaml:"displayName"`
	Description string                               `yaml:"description"`
	Category    string                               `yaml:"category"`
	Icon        string                               `yaml:"icon"`
	Auth        map[models.AuthType]authSchemaYAML   `yaml:"auth"`
	Tools       []toolYAML                           `yaml:"tools"`
}

type authSchemaYAML struct {
	Fields          []models.SchemaField `yaml:"fields"`
	ShowRedirectURI bool                 `yaml:"showRedirectUri"`
}

type toolYAML struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Catalog is an immutable, in-memory view of the toolset-type registry.
type Catalog struct {
	entries map[string]*models.RegistryEntry
	schemas map[string]*models.ToolsetSchema
	order   []string
}

// Load parses a YAML catalog document.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(file.Toolsets) == 0 {
		return nil, fmt.Errorf("catalog contains no toolsets")
	}

	c := &Catalog{
		entries: make(map[string]*models.RegistryEntry),
		schemas: make(map[string]*models.ToolsetSchema),
	}
	for _, raw := range file.Toolsets {
		if raw.Type == "" {
			return nil, fmt.Errorf("catalog entry missing type")
		}
		if _, dup := c.entries[raw.Type]; dup {
			return nil, fmt.Errorf("duplicate toolset type %q", raw.Type)
		}

		entry := &models.RegistryEntry{
			Type:        raw.Type,
			DisplayName: raw.DisplayName,
			Description: raw.Description,
			Category:    raw.Category,
			Icon:        raw.Icon,
		}
		if entry.DisplayName == "" {
			entry.DisplayName = titleFromType(raw.Type)
		}
		for _, t := range raw.Tools {
			entry.Tools = append(entry.Tools, models.RegistryTool{
				Name:        t.Name,
				FullName:    raw.Type + "." + t.Name,
				Description: t.Description,
			})
		}
		entry.ToolCount = len(entry.Tools)

		schema := &models.ToolsetSchema{
			ToolsetType: raw.Type,
			Schemas:     make(map[models.AuthType]models.AuthSchema),
		}
		for authType, as := range raw.Auth {
			if !authType.Valid() {
				return nil, fmt.Errorf("toolset %q: unknown auth type %q", raw.Type, authType)
			}
			fields := make([]models.SchemaField, len(as.Fields))
			copy(fields, as.Fields)
			for i := range fields {
				if fields[i].Label == "" {
					fields[i].Label = labelFromName(fields[i].Name)
				}
			}
			schema.Schemas[authType] = models.AuthSchema{
				Fields:          fields,
				ShowRedirectURI: as.ShowRedirectURI,
			}
		}
		for _, t := range schema.AuthTypes() {
			entry.AuthTypes = append(entry.AuthTypes, t)
		}

		c.entries[raw.Type] = entry
		c.schemas[raw.Type] = schema
		c.order = append(c.order, raw.Type)
	}
	sort.Strings(c.order)
	return c, nil
}

// LoadSeed loads the embedded seed catalog.
func LoadSeed() (*Catalog, error) {
	return Load(seedCatalog)
}

// Entry returns the registry entry for a toolset type.
func (c *Catalog) Entry(toolsetType string) (*models.RegistryEntry, bool) {
	e, ok := c.entries[toolsetType]
	return e, ok
}

// Schema returns the auth-schema document for a toolset type.
func (c *Catalog) Schema(toolsetType string) (*models.ToolsetSchema, bool) {
	s, ok := c.schemas[toolsetType]
	return s, ok
}

// ListFilter narrows and shapes a registry listing.
type ListFilter struct {
	Search           string
	IncludeTools     bool
	IncludeToolCount bool
	Page             int
	Limit            int
}

// ListResult is one page of the registry listing.
type ListResult struct {
	Toolsets   []models.RegistryEntry
	TotalCount int
	Page       int
	Limit      int
}

// List returns a filtered, paginated page of the catalog. Entries are
// copied; omitting tool detail is the performance lever for callers that
// only need counts.
func (c *Catalog) List(filter ListFilter) ListResult {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 30
	}

	var matched []string
	needle := strings.ToLower(filter.Search)
	for _, t := range c.order {
		entry := c.entries[t]
		if needle != "" &&
			!strings.Contains(strings.ToLower(entry.Type), needle) &&
			!strings.Contains(strings.ToLower(entry.DisplayName), needle) &&
			!strings.Contains(strings.ToLower(entry.Description), needle) {
			continue
		}
		matched = append(matched, t)
	}

	result := ListResult{TotalCount: len(matched), Page: page, Limit: limit}
	start := (page - 1) * limit
	if start >= len(matched) {
		return result
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, t := range matched[start:end] {
		result.Toolsets = append(result.Toolsets, c.project(t, filter))
	}
	return result
}

// ListGrouped returns the full filtered catalog grouped by category.
// Category keys sort alphabetically with "Other" last.
func (c *Catalog) ListGrouped(filter ListFilter) map[string][]models.RegistryEntry {
	groups := make(map[string][]models.RegistryEntry)
	needle := strings.ToLower(filter.Search)
	for _, t := range c.order {
		entry := c.entries[t]
		if needle != "" &&
			!strings.Contains(strings.ToLower(entry.Type), needle) &&
			!strings.Contains(strings.ToLower(entry.DisplayName), needle) {
			continue
		}
		category := entry.Category
		if category == "" {
			category = "Other"
		}
		groups[category] = append(groups[category], c.project(t, filter))
	}
	return groups
}

// SearchTools returns registry tools across all toolset types, optionally
// narrowed by toolset type and a substring search.
func (c *Catalog) SearchTools(appName, search string) []models.RegistryTool {
	needle := strings.ToLower(search)
	var out []models.RegistryTool
	for _, t := range c.order {
		if appName != "" && t != appName {
			continue
		}
		for _, tool := range c.entries[t].Tools {
			if needle != "" &&
				!strings.Contains(strings.ToLower(tool.Name), needle) &&
				!strings.Contains(strings.ToLower(tool.Description), needle) {
				continue
			}
			out = append(out, tool)
		}
	}
	return out
}

// project copies an entry, stripping tool detail unless requested.
func (c *Catalog) project(toolsetType string, filter ListFilter) models.RegistryEntry {
	entry := *c.entries[toolsetType]
	if !filter.IncludeTools {
		entry.Tools = nil
		if !filter.IncludeToolCount {
			entry.ToolCount = 0
		}
	}
	return entry
}

func titleFromType(toolsetType string) string {
	words := strings.Fields(strings.ReplaceAll(strcase.SnakeCase(toolsetType), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func labelFromName(name string) string {
	words := strings.Fields(strings.ReplaceAll(strcase.SnakeCase(name), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
