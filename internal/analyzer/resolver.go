package analyzer

import (
	"fmt"
	"strings"

	"github.com/datatrail-labs/datatrail/pkg/parser"
)

// Policy controls how unqualified column references that match more than
// one table in scope are handled.
type Policy string

// Ambiguity policies.
const (
	// PolicyStrict fails the statement on any ambiguity or schema miss.
	PolicyStrict Policy = "strict"
	// PolicyWarn falls back to the first table in FROM order at reduced
	// confidence and records a warning.
	PolicyWarn Policy = "warn"
	// PolicyInfer behaves like warn, but trusts schema elimination: when
	// every table with a known schema rules itself out and exactly one
	// candidate remains, that candidate is used at higher confidence.
	PolicyInfer Policy = "infer"
)

// ParsePolicy converts a string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicyStrict:
		return PolicyStrict, nil
	case PolicyWarn:
		return PolicyWarn, nil
	case PolicyInfer:
		return PolicyInfer, nil
	default:
		return "", fmt.Errorf("unknown ambiguity policy %q (want strict, warn, or infer)", s)
	}
}

// Resolution is one resolved owner of a column reference. Resolving
// normally yields a single Resolution; a JOIN USING column yields two,
// the left owner first.
type Resolution struct {
	Entry      *ScopeEntry
	Column     string
	Confidence float64
}

// resolveColumn resolves a column reference against the scope per the
// active policy. The first resolution is the primary owner.
func (a *Analyzer) resolveColumn(scope *Scope, ref *parser.ColumnRef) ([]Resolution, error) {
	if ref.Table != "" {
		return a.resolveQualified(scope, ref)
	}
	return a.resolveUnqualified(scope, ref)
}

// resolveQualified handles alias.column references.
func (a *Analyzer) resolveQualified(scope *Scope, ref *parser.ColumnRef) ([]Resolution, error) {
	entry, ok := scope.Lookup(ref.Table)
	if !ok {
		return nil, &UnknownAliasError{Alias: ref.Table, Column: ref.Column}
	}

	confidence := 0.95
	if entry.HasColumn(ref.Column) {
		confidence = 1.0
	}
	return []Resolution{{Entry: entry, Column: ref.Column, Confidence: confidence}}, nil
}

// resolveUnqualified handles bare column references, including the JOIN
// USING co-ownership special case.
func (a *Analyzer) resolveUnqualified(scope *Scope, ref *parser.ColumnRef) ([]Resolution, error) {
	// JOIN USING column: co-owned by both joined tables. The left side
	// is the primary owner; the right side is shadowed.
	if owners := scope.UsingOwners(ref.Column); len(owners) >= 2 {
		return []Resolution{
			{Entry: owners[0], Column: ref.Column, Confidence: 1.0},
			{Entry: owners[1], Column: ref.Column, Confidence: 0.8},
		}, nil
	}

	entries := scope.Entries()
	if len(entries) == 0 {
		return nil, &ColumnNotFoundError{Column: ref.Column}
	}

	// Single table in scope owns everything.
	if len(entries) == 1 {
		return []Resolution{{Entry: entries[0], Column: ref.Column, Confidence: 1.0}}, nil
	}

	// Intersect against known schemas.
	var matches, unknown []*ScopeEntry
	for _, entry := range entries {
		switch {
		case !entry.SchemaKnown():
			unknown = append(unknown, entry)
		case entry.HasColumn(ref.Column):
			matches = append(matches, entry)
		}
	}

	// Every schema known, exactly one table has the column.
	if len(unknown) == 0 && len(matches) == 1 {
		return []Resolution{{Entry: matches[0], Column: ref.Column, Confidence: 1.0}}, nil
	}

	// Every schema known, no table has the column.
	if len(unknown) == 0 && len(matches) == 0 {
		if a.policy == PolicyStrict {
			return nil, &ColumnNotFoundError{Column: ref.Column, Tables: scopeNames(entries)}
		}
		a.diag(DiagColumnFallback, "column %q not found in any known schema; falling back to %q", ref.Column, entries[0].Alias)
		return []Resolution{{Entry: entries[0], Column: ref.Column, Confidence: 0.3}}, nil
	}

	// Ambiguous: multiple schema matches, or unknown schemas in play.
	// Candidates in FROM order: schema matches plus every unknown table.
	var candidates []*ScopeEntry
	for _, entry := range entries {
		if !entry.SchemaKnown() || entry.HasColumn(ref.Column) {
			candidates = append(candidates, entry)
		}
	}

	// Elimination: all known schemas rule themselves out and one unknown
	// table remains. INFER trusts this narrowing.
	if a.policy == PolicyInfer && len(candidates) == 1 {
		a.diag(DiagAmbiguousColumn, "column %q inferred to belong to %q by schema elimination", ref.Column, candidates[0].Alias)
		return []Resolution{{Entry: candidates[0], Column: ref.Column, Confidence: 0.8}}, nil
	}

	if a.policy == PolicyStrict {
		return nil, &AmbiguousColumnError{Column: ref.Column, Candidates: scopeNames(candidates)}
	}

	confidence := 0.5
	if len(candidates) <= 2 {
		confidence = 0.6
	}
	a.diag(DiagAmbiguousColumn, "column %q is ambiguous across %s; assuming %q",
		ref.Column, strings.Join(scopeNames(candidates), ", "), candidates[0].Alias)
	return []Resolution{{Entry: candidates[0], Column: ref.Column, Confidence: confidence}}, nil
}

// scopeNames lists entry display names for error messages.
func scopeNames(entries []*ScopeEntry) []string {
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Def.Name)
	}
	return names
}
