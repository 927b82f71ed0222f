package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envReference is one ${VAR} placeholder that had no value in the
// environment, located by its dotted key path and source line.
type envReference struct {
	Name string
	Path string
	Line int
}

func (r envReference) String() string {
	if r.Line > 0 {
		return fmt.Sprintf("%s (line %d): environment variable %s is not set", r.Path, r.Line, r.Name)
	}
	return fmt.Sprintf("%s: environment variable %s is not set", r.Path, r.Name)
}

var remoteURLPath = regexp.MustCompile(`^(remote|remotes\[\d+\])\.url$`)

// fatal reports whether an unset variable at this location leaves the
// config unusable. Endpoint URLs are; other fields fall back to empty.
func (r envReference) fatal() bool {
	return remoteURLPath.MatchString(r.Path)
}

// splitEnvReferences separates unset variables that must fail validation
// from those that only warrant a warning.
func splitEnvReferences(refs []envReference) (problems []string, warnings []envReference) {
	for _, ref := range refs {
		if ref.fatal() {
			problems = append(problems, ref.String())
			continue
		}
		warnings = append(warnings, ref)
	}
	return problems, warnings
}

type envExpander struct {
	unset []envReference
}

// expandEnv replaces ${VAR} placeholders in the string scalars of a YAML
// document. Unquoted scalars that expand to numbers or booleans are retagged
// so they decode as such.
func expandEnv(raw []byte) (string, []envReference, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return "", nil, fmt.Errorf("parse config: %w", err)
	}

	var e envExpander
	e.walk(&root, "")

	out, err := yaml.Marshal(&root)
	if err != nil {
		return "", nil, fmt.Errorf("encode expanded config: %w", err)
	}
	sort.SliceStable(e.unset, func(i, j int) bool {
		if e.unset[i].Line != e.unset[j].Line {
			return e.unset[i].Line < e.unset[j].Line
		}
		return e.unset[i].Name < e.unset[j].Name
	})
	return string(out), e.unset, nil
}

func (e *envExpander) walk(node *yaml.Node, path string) {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			e.walk(child, path)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			e.walk(node.Content[i+1], joinPath(path, node.Content[i].Value))
		}
	case yaml.SequenceNode:
		for i, child := range node.Content {
			e.walk(child, fmt.Sprintf("%s[%d]", path, i))
		}
	case yaml.AliasNode:
		if node.Alias != nil {
			e.walk(node.Alias, path)
		}
	case yaml.ScalarNode:
		e.scalar(node, path)
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func (e *envExpander) scalar(node *yaml.Node, path string) {
	if node.Tag != "" && node.Tag != "!!str" {
		return
	}
	if !strings.Contains(node.Value, "$") {
		return
	}
	seen := make(map[string]struct{})
	expanded := os.Expand(node.Value, func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			e.unset = append(e.unset, envReference{Name: key, Path: path, Line: node.Line})
		}
		return ""
	})
	if expanded == node.Value {
		return
	}
	if node.Style != 0 {
		node.Tag = "!!str"
		node.Value = expanded
		return
	}
	node.Tag, node.Value = retag(expanded)
}

func retag(value string) (string, string) {
	if strings.TrimSpace(value) == "" {
		return "!!str", value
	}
	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return "!!str", value
	}
	switch v := parsed.(type) {
	case bool:
		return "!!bool", strconv.FormatBool(v)
	case int:
		return "!!int", strconv.Itoa(v)
	case float64:
		return "!!float", strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "!!str", value
	}
}
