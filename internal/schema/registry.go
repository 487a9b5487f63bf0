// Package schema holds the DefraDB collection definitions and applies
// them to a node on startup.
package schema

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Schema is one DefraDB collection definition.
type Schema struct {
	Name  string // collection name, e.g. "Book"
	SDL   string // GraphQL SDL
	Order int    // initialization order, lower first
}

// registry lists collections in dependency order: parents before the
// collections that reference them by id.
var registry = []Schema{
	{Name: "User", Order: 1},
	{Name: "Book", Order: 2},
	{Name: "Chunk", Order: 3},
	{Name: "Chapter", Order: 4},
	{Name: "Claim", Order: 5},
	{Name: "Idea", Order: 6},
	{Name: "FinalOutput", Order: 7},
}

// All returns every schema with its SDL loaded, in dependency order.
func All() ([]Schema, error) {
	schemas := make([]Schema, len(registry))
	copy(schemas, registry)

	for i := range schemas {
		filename := fmt.Sprintf("schemas/%s.graphql", strings.ToLower(schemas[i].Name))
		content, err := schemaFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", schemas[i].Name, err)
		}
		schemas[i].SDL = string(content)
	}

	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Order < schemas[j].Order
	})
	return schemas, nil
}

// Get returns one schema by collection name.
func Get(name string) (*Schema, error) {
	for _, s := range registry {
		if s.Name == name {
			content, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.graphql", strings.ToLower(s.Name)))
			if err != nil {
				return nil, fmt.Errorf("reading schema %s: %w", s.Name, err)
			}
			return &Schema{Name: s.Name, SDL: string(content), Order: s.Order}, nil
		}
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}
