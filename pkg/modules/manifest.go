// Package modules resolves tcalc import statements: from an in-memory table
// or from a directory of module files.
package modules

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MaxManifestSize is the maximum size of a module manifest in bytes.
const MaxManifestSize = 128 * 1024

// Manifest describes a module in YAML or JSON form.
//
//	name: geo
//	description: plane geometry helpers
//	constants:
//	  tau: 6.283185307179586
//	exports: [area, circumference]
//	source: |
//	  area(r) = pi * r * r
//	  circumference(r) = tau * r
type Manifest struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Constants   map[string]float64 `yaml:"constants"`
	Exports     []string           `yaml:"exports"`
	Source      string             `yaml:"source"`
}

// ManifestError represents an error encountered while reading a manifest.
type ManifestError struct {
	Message  string
	Location string // e.g., "constants.tau"
}

func (e *ManifestError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("manifest error at %s: %s", e.Location, e.Message)
	}
	return fmt.Sprintf("manifest error: %s", e.Message)
}

var manifestKeys = map[string]bool{
	"name": true, "description": true, "constants": true, "exports": true, "source": true,
}

// ParseManifest parses a YAML or JSON module manifest.
func ParseManifest(source []byte) (*Manifest, error) {
	if len(source) > MaxManifestSize {
		return nil, &ManifestError{Message: fmt.Sprintf("manifest size %d exceeds maximum %d bytes", len(source), MaxManifestSize)}
	}

	var raw yaml.Node
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, &ManifestError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	// The root node is a document node containing the actual content
	if raw.Kind != yaml.DocumentNode || len(raw.Content) == 0 {
		return nil, &ManifestError{Message: "empty manifest"}
	}
	root := raw.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ManifestError{Message: "manifest must be a mapping"}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		if !manifestKeys[key] {
			return nil, &ManifestError{Message: fmt.Sprintf("unknown field %q", key), Location: key}
		}
	}

	var m Manifest
	if err := root.Decode(&m); err != nil {
		return nil, &ManifestError{Message: err.Error()}
	}

	for name := range m.Constants {
		if !isName(name) {
			return nil, &ManifestError{Message: fmt.Sprintf("invalid constant name %q", name), Location: "constants." + name}
		}
	}
	for i, name := range m.Exports {
		if !isName(name) {
			return nil, &ManifestError{Message: fmt.Sprintf("invalid export name %q", name), Location: fmt.Sprintf("exports[%d]", i)}
		}
	}
	return &m, nil
}

// isName reports whether s is a valid tcalc identifier.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case i > 0 && ch >= '0' && ch <= '9':
		default:
			return false
		}
	}
	return true
}
