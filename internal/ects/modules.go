package ects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Module maps a module name to its credit category.
type Module struct {
	Name     string `yaml:"name" json:"name"`
	Category string `yaml:"category" json:"category"`
}

// ModuleMap is an ordered module catalogue. Lines are matched against the
// modules in order and the first match wins.
type ModuleMap []Module

// Match returns the first module whose lower-cased name occurs in line.
// line must already be lower-cased.
func (m ModuleMap) Match(line string) (Module, bool) {
	for _, mod := range m {
		if mod.Name == "" {
			continue
		}
		if strings.Contains(line, strings.ToLower(mod.Name)) {
			return mod, true
		}
	}
	return Module{}, false
}

// UnmarshalYAML accepts either a mapping (name: category, order kept) or a
// sequence of {name, category} entries.
func (m *ModuleMap) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(ModuleMap, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			name, category := node.Content[i], node.Content[i+1]
			if category.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: category of module %q must be a string", category.Line, name.Value)
			}
			out = append(out, Module{Name: name.Value, Category: category.Value})
		}
		*m = out
		return nil
	case yaml.SequenceNode:
		var entries []Module
		if err := node.Decode(&entries); err != nil {
			return err
		}
		*m = entries
		return nil
	default:
		return fmt.Errorf("line %d: modules must be a mapping or a list", node.Line)
	}
}

// UnmarshalJSON accepts either an object (name to category, order kept) or a
// list of {name, category} entries.
func (m *ModuleMap) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var entries []Module
		if err := json.Unmarshal(b, &entries); err != nil {
			return err
		}
		*m = entries
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return fmt.Errorf("modules must be an object or a list")
	}
	out := ModuleMap{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var category string
		if err := dec.Decode(&category); err != nil {
			return fmt.Errorf("category of module %q must be a string: %w", name, err)
		}
		out = append(out, Module{Name: name, Category: category})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}

// ModuleMapFrom builds a catalogue from parallel name and category slices.
func ModuleMapFrom(pairs ...string) ModuleMap {
	out := make(ModuleMap, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Module{Name: pairs[i], Category: pairs[i+1]})
	}
	return out
}
