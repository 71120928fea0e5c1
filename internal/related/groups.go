// Package related finds dishes related to a class: visually similar ones by centroid
// similarity and taxonomically grouped ones from a static table.
package related

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Unclassified is the group name of labels with no mapping.
const Unclassified = "Unclassified"

//go:embed groups.yaml
var defaultGroups []byte

// Group is a named set of class labels in suggestion order.
type Group struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

type groupFile struct {
	Groups []Group `yaml:"groups"`
}

// GroupMap maps class labels to groups. It is immutable once built.
type GroupMap struct {
	groups  []Group
	byLabel map[string]int
}

// NewGroupMap builds a map from groups. A label may belong to one group only.
func NewGroupMap(groups []Group) (*GroupMap, error) {
	g := &GroupMap{byLabel: make(map[string]int)}
	for _, grp := range groups {
		if grp.Name == "" {
			return nil, fmt.Errorf("group with members %v has no name", grp.Members)
		}
		members := make([]string, 0, len(grp.Members))
		for _, label := range grp.Members {
			if prev, ok := g.byLabel[label]; ok {
				return nil, fmt.Errorf("label %q is in both %q and %q", label, g.groups[prev].Name, grp.Name)
			}
			g.byLabel[label] = len(g.groups)
			members = append(members, label)
		}
		g.groups = append(g.groups, Group{Name: grp.Name, Members: members})
	}
	return g, nil
}

// ParseGroupMap parses a YAML group table.
func ParseGroupMap(data []byte) (*GroupMap, error) {
	var f groupFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse groups: %w", err)
	}
	return NewGroupMap(f.Groups)
}

// LoadGroupMap reads a YAML group table from path, or the built-in table when path is empty.
func LoadGroupMap(path string) (*GroupMap, error) {
	if path == "" {
		return DefaultGroupMap()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups: %w", err)
	}
	return ParseGroupMap(data)
}

// DefaultGroupMap returns the built-in table of Vietnamese dishes.
func DefaultGroupMap() (*GroupMap, error) {
	return ParseGroupMap(defaultGroups)
}

// Group returns the group name of label.
func (g *GroupMap) Group(label string) (string, bool) {
	if g == nil {
		return "", false
	}
	i, ok := g.byLabel[label]
	if !ok {
		return "", false
	}
	return g.groups[i].Name, true
}

// Members returns the members of the named group in table order.
func (g *GroupMap) Members(name string) []string {
	if g == nil {
		return nil
	}
	for _, grp := range g.groups {
		if grp.Name == name {
			out := make([]string, len(grp.Members))
			copy(out, grp.Members)
			return out
		}
	}
	return nil
}

// Groups returns the group names in table order.
func (g *GroupMap) Groups() []string {
	if g == nil {
		return nil
	}
	names := make([]string, len(g.groups))
	for i, grp := range g.groups {
		names[i] = grp.Name
	}
	return names
}

// Len returns the number of mapped labels.
func (g *GroupMap) Len() int {
	if g == nil {
		return 0
	}
	return len(g.byLabel)
}
