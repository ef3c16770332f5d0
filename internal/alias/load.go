// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package alias

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads an alias table from a YAML file. The document is a mapping of
// canonical name to a list of variants:
//
//	NEWS:
//	  - news channel
//	  - noticias
//
// An empty path yields an empty table.
func Load(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return New(), nil
	}
	path = filepath.Clean(path)
	// #nosec G304 -- alias file path is provided by the operator via config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("alias: read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("alias: %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes an alias table document. Mapping order is preserved, which
// is why the document goes through yaml.Node instead of a Go map.
func Parse(data []byte) (*Table, error) {
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return New(), nil
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return New(), nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return New(), nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected mapping of alias name to variants", root.Line)
	}

	entries := make([]Entry, 0, len(root.Content)/2)
	seen := make(map[string]int, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		name := strings.TrimSpace(keyNode.Value)
		if name == "" {
			return nil, fmt.Errorf("line %d: empty alias name", keyNode.Line)
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("line %d: duplicate alias %q (first defined on line %d)", keyNode.Line, name, prev)
		}
		seen[name] = keyNode.Line

		var variants []string
		switch valNode.Kind {
		case yaml.SequenceNode:
			if err := valNode.Decode(&variants); err != nil {
				return nil, fmt.Errorf("line %d: alias %q: %w", valNode.Line, name, err)
			}
		case yaml.ScalarNode:
			if valNode.Tag != "!!null" && strings.TrimSpace(valNode.Value) != "" {
				variants = []string{valNode.Value}
			}
		default:
			return nil, fmt.Errorf("line %d: alias %q: variants must be a list", valNode.Line, name)
		}
		entries = append(entries, Entry{Name: name, Variants: variants})
	}
	return New(entries...), nil
}
