package config

import (
	"strconv"
	"time"

	"github.com/terrane-io/terrane/pkg/engine"
)

// resourceConfig is the CUE shape of one resource declaration. The map key
// in the resources block is the identity.
type resourceConfig struct {
	// Type is the resource type (e.g. "aws.network").
	Type string `json:"type" validate:"required"`

	// Name is the human-readable name; defaults to the identity.
	Name string `json:"name,omitempty"`

	// Attributes holds the resource-specific configuration. String values
	// of the form "${identity.attribute}" are reference tokens.
	Attributes map[string]any `json:"attributes" validate:"required"`

	// Labels are key-value pairs for organizing and selecting resources.
	Labels map[string]string `json:"labels,omitempty"`

	// Protect denies plans that would delete this resource.
	Protect bool `json:"protect,omitempty"`
}

// WorkspaceConfig is the workspace block of a declaration set.
type WorkspaceConfig struct {
	// Name is the workspace name.
	Name string `json:"name" validate:"required"`

	// Variables are workspace-level variables available to scripts.
	Variables map[string]any `json:"variables,omitempty"`

	// Scripts are inline Starlark programs whose exported globals are
	// merged into Variables during loading.
	Scripts []string `json:"scripts,omitempty"`

	// Backend configures state storage.
	Backend *BackendConfig `json:"backend,omitempty"`

	// Policy configures plan policy enforcement.
	Policy *PolicyConfig `json:"policy,omitempty"`
}

// BackendConfig configures the state storage backend.
type BackendConfig struct {
	// Path is the SQLite database path.
	Path string `json:"path,omitempty"`
}

// PolicyConfig configures policy enforcement.
type PolicyConfig struct {
	// Enabled indicates if policy enforcement is enabled.
	Enabled bool `json:"enabled"`

	// Paths lists rego policy file paths.
	Paths []string `json:"paths,omitempty"`
}

// ParsedSet is the result of loading a declaration set.
type ParsedSet struct {
	// Workspace is the workspace configuration.
	Workspace WorkspaceConfig `json:"workspace"`

	// Declarations are the resource declarations in source order.
	Declarations []engine.Declaration `json:"declarations"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the set was loaded.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists validation errors. A set with errors must not be
	// planned.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is a load-time error with source location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g. "resources.app_vpc").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	switch {
	case e.File != "" && e.Line > 0:
		return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Message
	case e.Path != "":
		return e.Path + ": " + e.Message
	default:
		return e.Message
	}
}
