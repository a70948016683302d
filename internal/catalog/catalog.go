// Package catalog serves the suggested college list. Affiliation itself stays
// free-form; the list only feeds pickers, always ending with "Other".
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const Other = "Other"

//go:embed colleges.yaml
var defaultColleges []byte

type Group struct {
	Name     string   `yaml:"name" json:"name"`
	Colleges []string `yaml:"colleges" json:"colleges"`
}

type Catalog struct {
	Groups []Group `yaml:"groups" json:"groups"`
}

// Load reads the catalog from path, or the embedded list when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultColleges
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read colleges file: %w", err)
		}
		data = raw
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse colleges: %w", err)
	}
	for i := range c.Groups {
		c.Groups[i].Colleges = cleanNames(c.Groups[i].Colleges)
	}
	return &c, nil
}

// Names flattens the groups, deduplicated, with Other last.
func (c *Catalog) Names() []string {
	seen := map[string]bool{Other: true}
	var names []string
	for _, g := range c.Groups {
		for _, name := range g.Colleges {
			if seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return append(names, Other)
}

// Known reports whether name is one of the suggestions.
func (c *Catalog) Known(name string) bool {
	for _, candidate := range c.Names() {
		if strings.EqualFold(candidate, strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

func cleanNames(in []string) []string {
	out := in[:0]
	for _, name := range in {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}
