package models

import "time"

// DefaultSchema is used whenever a schema header is missing or blank
const DefaultSchema = "public"

// Connection is the active credential set for a browser tab or session
type Connection struct {
	ProjectID     string `json:"projectId"`
	Schema        string `json:"schema"`
	APIKey        string `json:"apiKey"`
	Bearer        string `json:"bearer"`
	InspectedHost string `json:"inspectedHost,omitempty"`
}

// Usable reports whether the connection carries both a project and a key
func (c *Connection) Usable() bool {
	return c != nil && c.ProjectID != "" && c.APIKey != ""
}

// BearerToken returns the bearer, falling back to the api key
func (c *Connection) BearerToken() string {
	if c.Bearer != "" {
		return c.Bearer
	}
	return c.APIKey
}

// SchemaOrDefault returns the schema, or DefaultSchema when blank
func (c *Connection) SchemaOrDefault() string {
	if c.Schema == "" {
		return DefaultSchema
	}
	return c.Schema
}

// SameTarget reports whether two connections address the same project with
// the same key, schema and inspected host
func (c *Connection) SameTarget(other *Connection) bool {
	if c == nil || other == nil {
		return false
	}
	return c.ProjectID == other.ProjectID &&
		c.APIKey == other.APIKey &&
		c.SchemaOrDefault() == other.SchemaOrDefault() &&
		c.InspectedHost == other.InspectedHost
}

// ConnectionSource identifies who wrote the stored connection
type ConnectionSource string

const (
	SourceDetector ConnectionSource = "detector"
	SourceDevtools ConnectionSource = "devtools"
	SourceManual   ConnectionSource = "manual"
)

// ConnectionMeta records provenance for the stored connection
type ConnectionMeta struct {
	Source    ConnectionSource `json:"source"`
	UpdatedAt time.Time        `json:"updatedAt"`
	TabID     int              `json:"tabId,omitempty"`
	Cleared   bool             `json:"cleared,omitempty"`
}
