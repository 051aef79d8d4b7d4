package registry

// Snapshot is a serializable view of a registry, suitable for JSON export
// or feeding a graph visualization.
type Snapshot struct {
	Tables         []TableSnapshot `json:"tables"`
	StatementCount int             `json:"statement_count"`
}

// TableSnapshot is one table in a Snapshot.
type TableSnapshot struct {
	Name    string           `json:"name"`
	Kind    TableKind        `json:"kind"`
	Source  bool             `json:"is_source_table"`
	Columns []ColumnSnapshot `json:"columns"`
}

// ColumnSnapshot is one column in a TableSnapshot.
type ColumnSnapshot struct {
	Name          string           `json:"name"`
	Expression    string           `json:"expression,omitempty"`
	Sources       []SourceSnapshot `json:"sources"`
	Aggregate     bool             `json:"is_aggregate,omitempty"`
	AggregateFunc string           `json:"aggregate_function,omitempty"`
	GroupBy       bool             `json:"is_group_by,omitempty"`
}

// SourceSnapshot is one lineage source in a ColumnSnapshot.
type SourceSnapshot struct {
	Table      string  `json:"table"`
	Column     string  `json:"column"`
	Confidence float64 `json:"confidence"`
}

// Snapshot captures the registry's current state.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &Snapshot{
		Tables:         make([]TableSnapshot, 0, len(r.order)),
		StatementCount: r.stmt,
	}

	for _, key := range r.order {
		def := r.tables[key]
		ts := TableSnapshot{
			Name:    def.Name,
			Kind:    def.Kind,
			Source:  def.SourceTable,
			Columns: make([]ColumnSnapshot, 0, len(def.order)),
		}

		for _, col := range def.Columns() {
			cs := ColumnSnapshot{
				Name:          col.Name,
				Expression:    col.Expression,
				Sources:       make([]SourceSnapshot, 0, len(col.Sources)),
				Aggregate:     col.Aggregate,
				AggregateFunc: col.AggregateFunc,
				GroupBy:       col.GroupBy,
			}
			for _, src := range col.Sources {
				cs.Sources = append(cs.Sources, SourceSnapshot{
					Table:      src.Table,
					Column:     src.Column,
					Confidence: src.Confidence,
				})
			}
			ts.Columns = append(ts.Columns, cs)
		}

		snap.Tables = append(snap.Tables, ts)
	}

	return snap
}
