package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrail-labs/datatrail/internal/registry"
)

func TestRegisterIdempotent(t *testing.T) {
	r := registry.New()

	first := r.Register("orders", registry.KindExternal)
	second := r.Register("ORDERS", registry.KindExternal)

	assert.Same(t, first, second)
	assert.Equal(t, "orders", first.Name, "original-case name retained")
}

func TestRegisterKindUpgradeOnly(t *testing.T) {
	r := registry.New()

	def := r.Register("summary", registry.KindExternal)
	assert.True(t, def.SourceTable)

	// Referenced-before-defined table upgrades when the defining statement runs
	r.Register("summary", registry.KindBaseTable)
	assert.Equal(t, registry.KindBaseTable, def.Kind)
	assert.False(t, def.SourceTable)

	// A later bare reference does not downgrade it back
	r.Register("summary", registry.KindExternal)
	assert.Equal(t, registry.KindBaseTable, def.Kind)
}

func TestAddColumnMergesSources(t *testing.T) {
	r := registry.New()
	r.Register("target", registry.KindBaseTable)

	r.AddColumn("target", &registry.ColumnLineage{
		Name: "amount",
		Sources: []registry.ColumnSource{
			{Table: "orders", Column: "amount", Confidence: 1.0},
		},
	})
	r.AddColumn("target", &registry.ColumnLineage{
		Name: "amount",
		Sources: []registry.ColumnSource{
			{Table: "refunds", Column: "amount", Confidence: 0.95},
		},
	})

	def, ok := r.Get("target")
	require.True(t, ok)
	col, ok := def.Column("amount")
	require.True(t, ok)
	assert.Len(t, col.Sources, 2, "INSERT lineage accumulates")
}

func TestMergeDeduplicatesKeepingMaxConfidence(t *testing.T) {
	col := &registry.ColumnLineage{Name: "x"}
	col.AddSource(registry.ColumnSource{Table: "t", Column: "a", Confidence: 0.5})
	col.AddSource(registry.ColumnSource{Table: "T", Column: "A", Confidence: 0.9})
	col.AddSource(registry.ColumnSource{Table: "t", Column: "a", Confidence: 0.3})

	require.Len(t, col.Sources, 1)
	assert.Equal(t, 0.9, col.Sources[0].Confidence)
}

func TestMergeNeverBlanksExpression(t *testing.T) {
	col := &registry.ColumnLineage{Name: "total", Expression: "amount + tax"}
	col.MergeFrom(&registry.ColumnLineage{Name: "total"})
	assert.Equal(t, "amount + tax", col.Expression)

	empty := &registry.ColumnLineage{Name: "total"}
	empty.MergeFrom(&registry.ColumnLineage{Name: "total", Expression: "amount"})
	assert.Equal(t, "amount", empty.Expression)
}

func TestMergeAggregateFlagsStick(t *testing.T) {
	col := &registry.ColumnLineage{Name: "total"}
	col.MergeFrom(&registry.ColumnLineage{Name: "total", Aggregate: true, AggregateFunc: "SUM"})
	col.MergeFrom(&registry.ColumnLineage{Name: "total"})

	assert.True(t, col.Aggregate)
	assert.Equal(t, "SUM", col.AggregateFunc)
}

func TestColumnsPreserveInsertionOrder(t *testing.T) {
	def := registry.NewTableDefinition("t", registry.KindBaseTable)
	def.AddColumn(&registry.ColumnLineage{Name: "b"})
	def.AddColumn(&registry.ColumnLineage{Name: "a"})
	def.AddColumn(&registry.ColumnLineage{Name: "c"})

	assert.Equal(t, []string{"b", "a", "c"}, def.ColumnNames())
}

func TestCaseInsensitiveLookups(t *testing.T) {
	r := registry.New()
	r.Register("Analytics.Events", registry.KindBaseTable)

	def, ok := r.Get("analytics.events")
	require.True(t, ok)
	assert.Equal(t, "Analytics.Events", def.Name)

	def.AddColumn(&registry.ColumnLineage{Name: "UserID"})
	assert.True(t, def.HasColumn("userid"))
}

func TestSourceTables(t *testing.T) {
	r := registry.New()
	r.Register("orders", registry.KindExternal)

	derived := r.Register("summary", registry.KindBaseTable)
	derived.AddColumn(&registry.ColumnLineage{
		Name:    "total",
		Sources: []registry.ColumnSource{{Table: "orders", Column: "amount", Confidence: 1.0}},
	})

	// Base table without lineage counts as a source
	r.Register("seed", registry.KindBaseTable)

	sources := r.SourceTables()
	require.Len(t, sources, 2)
	assert.Equal(t, "orders", sources[0].Name)
	assert.Equal(t, "seed", sources[1].Name)
}

func TestStatementCounter(t *testing.T) {
	r := registry.New()
	assert.Equal(t, 0, r.Statement())

	r.AdvanceStatement()
	r.AdvanceStatement()
	def := r.Register("t", registry.KindBaseTable)
	assert.Equal(t, 2, def.CreatedAt)
}

func TestReset(t *testing.T) {
	r := registry.New()
	r.Register("t", registry.KindBaseTable)
	r.AdvanceStatement()

	r.Reset()

	assert.Empty(t, r.All())
	assert.Equal(t, 0, r.Statement())
	assert.False(t, r.Has("t"))
}

func TestSnapshot(t *testing.T) {
	r := registry.New()
	r.AdvanceStatement()

	def := r.Register("summary", registry.KindBaseTable)
	def.AddColumn(&registry.ColumnLineage{
		Name:          "total",
		Expression:    "SUM(amount)",
		Aggregate:     true,
		AggregateFunc: "SUM",
		Sources:       []registry.ColumnSource{{Table: "orders", Column: "amount", Confidence: 1.0}},
	})

	snap := r.Snapshot()
	require.Len(t, snap.Tables, 1)
	assert.Equal(t, 1, snap.StatementCount)

	table := snap.Tables[0]
	assert.Equal(t, "summary", table.Name)
	require.Len(t, table.Columns, 1)
	assert.Equal(t, "SUM(amount)", table.Columns[0].Expression)
	require.Len(t, table.Columns[0].Sources, 1)
	assert.Equal(t, 1.0, table.Columns[0].Sources[0].Confidence)
}

func TestAllSourcesDeduplicated(t *testing.T) {
	def := registry.NewTableDefinition("t", registry.KindBaseTable)
	def.AddColumn(&registry.ColumnLineage{
		Name:    "a",
		Sources: []registry.ColumnSource{{Table: "s", Column: "x", Confidence: 1.0}},
	})
	def.AddColumn(&registry.ColumnLineage{
		Name: "b",
		Sources: []registry.ColumnSource{
			{Table: "s", Column: "x", Confidence: 0.9},
			{Table: "s", Column: "y", Confidence: 1.0},
		},
	})

	sources := def.AllSources()
	require.Len(t, sources, 2)
	assert.Equal(t, "s.x", sources[0].Qualified())
	assert.Equal(t, "s.y", sources[1].Qualified())
}
