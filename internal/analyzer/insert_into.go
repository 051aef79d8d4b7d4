package analyzer

import (
	"github.com/datatrail-labs/datatrail/pkg/parser"
)

// analyzeInsert handles INSERT INTO ... SELECT: the SELECT's lineages
// merge into the existing target columns, by explicit column list or by
// position. Lineage from multiple INSERTs accumulates.
func (a *Analyzer) analyzeInsert(stmt *parser.InsertStmt) error {
	def, ok := a.registry.Get(stmt.Table)
	if !ok {
		return &UnknownTargetError{Table: stmt.Table}
	}

	cols, err := a.analyzeSelect(stmt.Select)
	if err != nil {
		return err
	}

	// Target column names: the explicit list when given, the table's
	// declared columns when known, otherwise the SELECT's own output
	// names (external placeholder with unknown structure).
	var targets []string
	switch {
	case len(stmt.Columns) > 0:
		targets = stmt.Columns
	case def.ColumnCount() > 0:
		targets = def.ColumnNames()
	}

	if targets != nil && len(targets) != len(cols) {
		return &ColumnCountError{Table: stmt.Table, Expected: len(targets), Actual: len(cols)}
	}

	for i, col := range cols {
		merged := col.Clone()
		if targets != nil {
			merged.Name = targets[i]
		}
		def.AddColumn(merged)
	}

	a.log.Debug("merged insert lineage", "table", stmt.Table, "columns", len(cols))
	return nil
}
