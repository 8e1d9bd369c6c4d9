// Package config loads and validates cluster topology configuration. It uses
// the same gojsonschema loader/NewSchema/Validate idiom the teacher uses
// to validate collection documents against a compiled JSON schema, pointed at
// a topology document instead of an application document.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kartikbazzad/repcrec/site"
	"github.com/xeipuuv/gojsonschema"
)

const topologySchema = `{
	"type": "object",
	"properties": {
		"sites": {"type": "integer", "minimum": 1},
		"variables": {"type": "integer", "minimum": 1},
		"replicationEvery": {"type": "integer", "minimum": 1}
	},
	"required": ["sites", "variables", "replicationEvery"]
}`

var compiledSchema *gojsonschema.Schema

func schema() (*gojsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	loader := gojsonschema.NewStringLoader(topologySchema)
	s, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("invalid topology schema: %w", err)
	}
	compiledSchema = s
	return s, nil
}

// topologyDoc is the JSON shape configuration files are written in; it maps
// onto site.Topology after validation.
type topologyDoc struct {
	Sites            int `json:"sites"`
	Variables        int `json:"variables"`
	ReplicationEvery int `json:"replicationEvery"`
}

// Load reads and validates a topology document from path, falling back to
// site.DefaultTopology() when path is empty.
func Load(path string) (site.Topology, error) {
	if path == "" {
		return site.DefaultTopology(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return site.Topology{}, fmt.Errorf("reading topology config: %w", err)
	}
	return Parse(data)
}

// Parse validates raw JSON bytes against the topology schema and decodes it
// into a site.Topology.
func Parse(data []byte) (site.Topology, error) {
	s, err := schema()
	if err != nil {
		return site.Topology{}, err
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return site.Topology{}, fmt.Errorf("topology validation error: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return site.Topology{}, fmt.Errorf("invalid topology config: %s", strings.Join(errs, "; "))
	}

	var doc topologyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return site.Topology{}, fmt.Errorf("decoding topology config: %w", err)
	}

	return site.Topology{
		Sites:            doc.Sites,
		Variables:        doc.Variables,
		ReplicationEvery: doc.ReplicationEvery,
	}, nil
}
