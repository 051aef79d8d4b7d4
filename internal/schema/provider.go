// Package schema supplies known table structures to the analyzer. A
// provider maps table names to ordered column lists; the resolver uses it
// to sharpen ambiguity resolution and the extractor uses it to expand
// SELECT * wildcards.
package schema

import "strings"

// Provider answers "what columns does this table have". Lookups are
// case-insensitive. The second return is false when the table is unknown.
type Provider interface {
	TableColumns(table string) ([]string, bool)
}

// MapProvider is a static in-memory provider.
type MapProvider struct {
	tables map[string][]string
}

// NewMapProvider builds a provider from a table → columns mapping.
func NewMapProvider(tables map[string][]string) *MapProvider {
	p := &MapProvider{tables: make(map[string][]string, len(tables))}
	for name, cols := range tables {
		p.tables[strings.ToLower(name)] = cols
	}
	return p
}

// TableColumns implements Provider.
func (p *MapProvider) TableColumns(table string) ([]string, bool) {
	cols, ok := p.tables[strings.ToLower(table)]
	return cols, ok
}

// Add registers or replaces one table's column list.
func (p *MapProvider) Add(table string, columns []string) {
	p.tables[strings.ToLower(table)] = columns
}

// Tables returns the number of known tables.
func (p *MapProvider) Tables() int {
	return len(p.tables)
}
