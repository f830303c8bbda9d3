package models

// SchemaField describes one credential form field: its validation rules and
// display metadata. Pattern is a Go regular expression applied to the whole
// value; Message overrides the generic "Invalid format" error.
type SchemaField struct {
	Name      string `json:"name" yaml:"name"`
	Label     string `json:"label" yaml:"label"`
	Required  bool   `json:"required" yaml:"required"`
	Secret    bool   `json:"secret,omitempty" yaml:"secret"`
	MinLength int    `json:"minLength,omitempty" yaml:"minLength"`
	MaxLength int    `json:"maxLength,omitempty" yaml:"maxLength"`
	Pattern   string `json:"pattern,omitempty" yaml:"pattern"`
	Message   string `json:"message,omitempty" yaml:"message"`
}

// AuthSchema is the field list for one auth type plus its redirect-URI
// display policy (only meaningful for OAUTH).
type AuthSchema struct {
	Fields          []SchemaField `json:"fields" yaml:"fields"`
	ShowRedirectURI bool          `json:"showRedirectUri,omitempty" yaml:"showRedirectUri"`
}

// ToolsetSchema is the auth-schema document for a toolset type: one
// sub-schema per supported auth type.
type ToolsetSchema struct {
	ToolsetType string                  `json:"toolsetType"`
	Schemas     map[AuthType]AuthSchema `json:"schemas"`
}

// AuthTypes returns the supported auth types in a stable order: OAUTH
// first, then the remaining types in declaration order.
func (s *ToolsetSchema) AuthTypes() []AuthType {
	order := []AuthType{AuthTypeOAuth, AuthTypeAPIToken, AuthTypeBearerToken, AuthTypeUsernamePassword, AuthTypeNone}
	var out []AuthType
	for _, t := range order {
		if _, ok := s.Schemas[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Resolve returns the sub-schema for the selected auth type, falling back
// to the first available type when the selection is absent. The lookup is
// pure: repeated calls with the same document and selection yield the same
// result and never mutate the document.
func (s *ToolsetSchema) Resolve(selected AuthType) (AuthType, AuthSchema, bool) {
	if s == nil || len(s.Schemas) == 0 {
		return "", AuthSchema{}, false
	}
	if schema, ok := s.Schemas[selected]; ok {
		return selected, schema, true
	}
	types := s.AuthTypes()
	first := types[0]
	return first, s.Schemas[first], true
}
