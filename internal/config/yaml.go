package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// isYAML picks the format by extension. Files with any other extension are
// sniffed: a JSON document starts with '{'.
func isYAML(path string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return false
	}
	return !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{"))
}

// toStrictJSON turns the config file into JSON so both formats go through
// the same DisallowUnknownFields decoder.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	if !isYAML(path, data) {
		return data, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if doc.Kind == 0 {
		return []byte("{}"), nil
	}
	v, err := yamlValue(&doc, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: yaml->json: %w", filepath.Base(path), err)
	}
	return j, nil
}

// yamlValue converts a node tree into JSON-compatible values. Keys must be
// scalars; errors carry the dotted key path and the line.
func yamlValue(n *yaml.Node, path string) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return map[string]any{}, nil
		}
		return yamlValue(n.Content[0], path)
	case yaml.AliasNode:
		return yamlValue(n.Alias, path)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: %s: mapping key must be a scalar", k.Line, orRoot(path))
			}
			child := k.Value
			if path != "" {
				child = path + "." + k.Value
			}
			v, err := yamlValue(n.Content[i+1], child)
			if err != nil {
				return nil, err
			}
			m[k.Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := yamlValue(c, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", n.Line, orRoot(path), err)
		}
		return v, nil
	}
}

func orRoot(path string) string {
	if path == "" {
		return "<root>"
	}
	return path
}
