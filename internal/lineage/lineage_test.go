package lineage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrail-labs/datatrail/internal/analyzer"
	"github.com/datatrail-labs/datatrail/internal/lineage"
	"github.com/datatrail-labs/datatrail/internal/registry"
	"github.com/datatrail-labs/datatrail/internal/testutil"
)

func analyzeScript(t *testing.T, script string) *registry.Registry {
	t.Helper()
	a := analyzer.New(registry.New(), analyzer.Options{Logger: testutil.NewTestLogger(t)})
	result := a.AnalyzeScript(script)
	for _, s := range result.Statements {
		require.NoError(t, s.Err, "statement %d: %s", s.Index, s.SQL)
	}
	return result.Registry
}

func addColumn(def *registry.TableDefinition, name string, sources ...registry.ColumnSource) {
	col := &registry.ColumnLineage{Name: name}
	for _, src := range sources {
		col.AddSource(src)
	}
	def.AddColumn(col)
}

func TestTraceTwoHopChain(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE t1 AS SELECT amount FROM orders;
		CREATE TABLE t2 AS SELECT amount * 2 AS doubled FROM t1;
	`)

	trace, err := lineage.New(reg, 0).TraceToSource("t2", "doubled")
	require.NoError(t, err)
	require.Len(t, trace.Paths, 1)

	path := trace.Paths[0]
	assert.Equal(t, 2, path.HopCount())
	assert.Equal(t, "t2.doubled <- t1.amount <- orders.amount", path.String())
	assert.False(t, path.Cyclic)
	assert.False(t, path.Truncated)
	assert.Equal(t, registry.KindExternal, path.Source().Kind)
	assert.Empty(t, trace.Diagnostics)
}

func TestTraceZeroSourceColumn(t *testing.T) {
	reg := analyzeScript(t, `CREATE TABLE t1 AS SELECT amount FROM orders;`)

	trace, err := lineage.New(reg, 0).TraceToSource("orders", "amount")
	require.NoError(t, err)
	require.Len(t, trace.Paths, 1)
	assert.Equal(t, 0, trace.Paths[0].HopCount())
	assert.Equal(t, "orders.amount", trace.Paths[0].String())
}

func TestTraceBranchesPerSource(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE t AS SELECT a FROM s1;
		INSERT INTO t SELECT a FROM s2;
	`)

	trace, err := lineage.New(reg, 0).TraceToSource("t", "a")
	require.NoError(t, err)
	require.Len(t, trace.Paths, 2)
	assert.Equal(t, "t.a <- s1.a", trace.Paths[0].String())
	assert.Equal(t, "t.a <- s2.a", trace.Paths[1].String())
}

func TestTraceSurvivesCTENameCollision(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE fact AS SELECT amount FROM orders;
		CREATE TABLE rpt AS WITH fact AS (SELECT x FROM other) SELECT x FROM fact;
		CREATE TABLE final AS SELECT amount FROM fact;
	`)

	trace, err := lineage.New(reg, 0).TraceToSource("final", "amount")
	require.NoError(t, err)
	require.Len(t, trace.Paths, 1)
	assert.Equal(t, "final.amount <- fact.amount <- orders.amount", trace.Paths[0].String())

	trace, err = lineage.New(reg, 0).TraceToSource("rpt", "x")
	require.NoError(t, err)
	require.Len(t, trace.Paths, 1)
	assert.Equal(t, "rpt.x <- other.x", trace.Paths[0].String())
}

func TestTraceUnknownTargets(t *testing.T) {
	reg := analyzeScript(t, `CREATE TABLE t AS SELECT a FROM s;`)
	resolver := lineage.New(reg, 0)

	_, err := resolver.TraceToSource("nope", "a")
	var notFound *lineage.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.Table)

	_, err = resolver.TraceToSource("t", "nope")
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.Column)
}

func TestTraceCycleTerminates(t *testing.T) {
	reg := registry.New()
	a := reg.Register("a", registry.KindBaseTable)
	addColumn(a, "x", registry.ColumnSource{Table: "b", Column: "y", Confidence: 1.0})
	b := reg.Register("b", registry.KindBaseTable)
	addColumn(b, "y", registry.ColumnSource{Table: "a", Column: "x", Confidence: 1.0})

	trace, err := lineage.New(reg, 0).TraceToSource("a", "x")
	require.NoError(t, err)
	require.Len(t, trace.Paths, 1)

	path := trace.Paths[0]
	assert.True(t, path.Cyclic)
	assert.Equal(t, "a.x <- b.y <- a.x (cyclic)", path.String())

	require.Len(t, trace.Diagnostics, 1)
	assert.Equal(t, analyzer.DiagCyclicLineage, trace.Diagnostics[0].Code)
}

func TestTraceMaxDepthTruncates(t *testing.T) {
	reg := registry.New()
	tables := []string{"t0", "t1", "t2", "t3", "t4", "t5"}
	for i, name := range tables {
		def := reg.Register(name, registry.KindBaseTable)
		if i == len(tables)-1 {
			addColumn(def, "c")
			continue
		}
		addColumn(def, "c", registry.ColumnSource{Table: tables[i+1], Column: "c", Confidence: 1.0})
	}

	trace, err := lineage.New(reg, 3).TraceToSource("t0", "c")
	require.NoError(t, err)
	require.Len(t, trace.Paths, 1)

	path := trace.Paths[0]
	assert.True(t, path.Truncated)
	assert.Equal(t, "t0.c <- t1.c <- t2.c <- t3.c (truncated)", path.String())

	require.Len(t, trace.Diagnostics, 1)
	assert.Equal(t, analyzer.DiagMaxDepth, trace.Diagnostics[0].Code)
}

func TestImpactTransitive(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE t1 AS SELECT amount FROM orders;
		CREATE TABLE t2 AS SELECT amount * 2 AS doubled FROM t1;
	`)

	impact, err := lineage.New(reg, 0).FindImpact("orders", "amount")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"t1": {"amount"},
		"t2": {"doubled"},
	}, impact.Affected)
}

func TestImpactMultipleDependents(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE totals AS SELECT amount, amount * 0.1 AS tax FROM orders;
	`)

	impact, err := lineage.New(reg, 0).FindImpact("orders", "amount")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"totals": {"amount", "tax"},
	}, impact.Affected)
}

func TestImpactLeafColumn(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE t1 AS SELECT amount FROM orders;
		CREATE TABLE t2 AS SELECT amount * 2 AS doubled FROM t1;
	`)

	impact, err := lineage.New(reg, 0).FindImpact("t2", "doubled")
	require.NoError(t, err)
	assert.Empty(t, impact.Affected)

	_, err = lineage.New(reg, 0).FindImpact("nope", "x")
	var notFound *lineage.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestSourceTablesFor(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE t1 AS SELECT amount FROM orders;
		CREATE TABLE t2 AS SELECT t1.amount + r.fee AS total FROM t1 JOIN rates AS r ON t1.amount = r.fee;
	`)

	tables, err := lineage.New(reg, 0).SourceTablesFor("t2", "total")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "rates"}, tables)
}

func TestExplainChain(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE t1 AS SELECT amount FROM orders;
		CREATE TABLE t2 AS SELECT amount * 2 AS doubled FROM t1;
	`)

	lines, err := lineage.New(reg, 0).ExplainCalculation("t2", "doubled")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"t2.doubled = amount * 2 (computed)",
		"  t1.amount = orders.amount (direct)",
		"    orders.amount (source)",
	}, lines)
}

func TestExplainNotesExtraSources(t *testing.T) {
	reg := analyzeScript(t, `
		CREATE TABLE t AS SELECT a FROM s1;
		INSERT INTO t SELECT a FROM s2;
	`)

	lines, err := lineage.New(reg, 0).ExplainCalculation("t", "a")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "t.a = s1.a (direct) [+1 more sources]", lines[0])
	assert.Equal(t, "  s1.a (source)", lines[1])
}

func TestExplainCycleStops(t *testing.T) {
	reg := registry.New()
	a := reg.Register("a", registry.KindBaseTable)
	addColumn(a, "x", registry.ColumnSource{Table: "b", Column: "y", Confidence: 1.0})
	b := reg.Register("b", registry.KindBaseTable)
	addColumn(b, "y", registry.ColumnSource{Table: "a", Column: "x", Confidence: 1.0})

	lines, err := lineage.New(reg, 0).ExplainCalculation("a", "x")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "    a.x (cycle)", lines[2])
}
