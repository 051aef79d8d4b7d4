package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datatrail-labs/datatrail/internal/analyzer"
	"github.com/datatrail-labs/datatrail/internal/registry"
	"github.com/datatrail-labs/datatrail/internal/schema"
	"github.com/datatrail-labs/datatrail/internal/testutil"
)

func analyze(t *testing.T, script string, opts analyzer.Options) *analyzer.AnalysisResult {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testutil.NewTestLogger(t)
	}
	a := analyzer.New(registry.New(), opts)
	return a.AnalyzeScript(script)
}

func requireClean(t *testing.T, result *analyzer.AnalysisResult) {
	t.Helper()
	for _, s := range result.Statements {
		require.NoError(t, s.Err, "statement %d: %s", s.Index, s.SQL)
	}
}

func column(t *testing.T, result *analyzer.AnalysisResult, table, col string) *registry.ColumnLineage {
	t.Helper()
	def, ok := result.Registry.Get(table)
	require.True(t, ok, "table %q not registered", table)
	lineage, ok := def.Column(col)
	require.True(t, ok, "column %q not on table %q", col, table)
	return lineage
}

// ---------- CREATE TABLE AS ----------

func TestCreateTableAsDirectColumns(t *testing.T) {
	result := analyze(t, "CREATE TABLE t1 AS SELECT amount, status FROM orders", analyzer.Options{})
	requireClean(t, result)

	amount := column(t, result, "t1", "amount")
	require.Len(t, amount.Sources, 1)
	assert.Equal(t, "orders.amount", amount.Sources[0].Qualified())
	assert.Equal(t, 1.0, amount.Sources[0].Confidence, "single table in scope")
	assert.Empty(t, amount.Expression, "direct passthrough has no expression")

	def, _ := result.Registry.Get("t1")
	assert.Equal(t, registry.KindBaseTable, def.Kind)

	orders, ok := result.Registry.Get("orders")
	require.True(t, ok, "referenced table auto-registered")
	assert.Equal(t, registry.KindExternal, orders.Kind)
}

func TestCreateViewAndTemp(t *testing.T) {
	result := analyze(t, `
		CREATE VIEW v AS SELECT id FROM t;
		CREATE TEMP TABLE tmp AS SELECT id FROM t;
	`, analyzer.Options{})
	requireClean(t, result)

	v, _ := result.Registry.Get("v")
	assert.Equal(t, registry.KindView, v.Kind)
	tmp, _ := result.Registry.Get("tmp")
	assert.Equal(t, registry.KindTemp, tmp.Kind)
}

func TestComputedColumnExpression(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT quantity * unit_price AS total FROM items", analyzer.Options{})
	requireClean(t, result)

	total := column(t, result, "t", "total")
	assert.Equal(t, "quantity * unit_price", total.Expression)
	require.Len(t, total.Sources, 2)
	assert.Equal(t, "items.quantity", total.Sources[0].Qualified())
	assert.Equal(t, "items.unit_price", total.Sources[1].Qualified())
}

func TestCaseExpressionSources(t *testing.T) {
	result := analyze(t, `CREATE TABLE t AS
		SELECT CASE WHEN status = 'paid' THEN amount ELSE refund END AS net
		FROM orders`, analyzer.Options{})
	requireClean(t, result)

	net := column(t, result, "t", "net")
	require.Len(t, net.Sources, 3, "condition, result, and else branches all contribute")
}

func TestDuplicateTableDefinition(t *testing.T) {
	script := `
		CREATE TABLE t AS SELECT a FROM s;
		CREATE TABLE t AS SELECT b FROM s;
	`
	result := analyze(t, script, analyzer.Options{})
	require.Len(t, result.Statements, 2)
	assert.NoError(t, result.Statements[0].Err)

	var dup *analyzer.DuplicateTableError
	require.ErrorAs(t, result.Statements[1].Err, &dup)
	assert.Equal(t, "t", dup.Table)
}

func TestCreateOrReplaceWins(t *testing.T) {
	script := `
		CREATE TABLE t AS SELECT a FROM s;
		CREATE OR REPLACE TABLE t AS SELECT b FROM s;
	`
	result := analyze(t, script, analyzer.Options{})
	requireClean(t, result)

	def, _ := result.Registry.Get("t")
	assert.Equal(t, []string{"b"}, def.ColumnNames(), "later definition wins outright")
}

// ---------- INSERT INTO ----------

func TestInsertMergesLineage(t *testing.T) {
	script := `
		CREATE TABLE t AS SELECT a FROM s1;
		INSERT INTO t SELECT a FROM s2;
	`
	result := analyze(t, script, analyzer.Options{})
	requireClean(t, result)

	a := column(t, result, "t", "a")
	require.Len(t, a.Sources, 2, "merge never overwrites")
	assert.Equal(t, "s1.a", a.Sources[0].Qualified())
	assert.Equal(t, "s2.a", a.Sources[1].Qualified())
}

func TestInsertNamedColumns(t *testing.T) {
	script := `
		CREATE TABLE t AS SELECT a, b FROM s1;
		INSERT INTO t (b, a) SELECT x, y FROM s2;
	`
	result := analyze(t, script, analyzer.Options{})
	requireClean(t, result)

	b := column(t, result, "t", "b")
	require.Len(t, b.Sources, 2)
	assert.Equal(t, "s2.x", b.Sources[1].Qualified())

	a := column(t, result, "t", "a")
	require.Len(t, a.Sources, 2)
	assert.Equal(t, "s2.y", a.Sources[1].Qualified())
}

func TestInsertUnknownTarget(t *testing.T) {
	result := analyze(t, "INSERT INTO nope SELECT a FROM s", analyzer.Options{})

	var unknown *analyzer.UnknownTargetError
	require.ErrorAs(t, result.Statements[0].Err, &unknown)
	assert.Equal(t, "nope", unknown.Table)
}

func TestInsertColumnCountMismatch(t *testing.T) {
	script := `
		CREATE TABLE t AS SELECT a, b FROM s;
		INSERT INTO t SELECT a FROM s;
	`
	result := analyze(t, script, analyzer.Options{})

	var mismatch *analyzer.ColumnCountError
	require.ErrorAs(t, result.Statements[1].Err, &mismatch)
	assert.Equal(t, 2, mismatch.Expected)
	assert.Equal(t, 1, mismatch.Actual)
}

// ---------- Ambiguity policies ----------

func TestAmbiguousColumnStrict(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT a FROM x JOIN y ON x.id = y.id",
		analyzer.Options{Policy: analyzer.PolicyStrict})

	var ambiguous *analyzer.AmbiguousColumnError
	require.ErrorAs(t, result.Statements[0].Err, &ambiguous)
	assert.Equal(t, "a", ambiguous.Column)
	assert.Equal(t, []string{"x", "y"}, ambiguous.Candidates)
}

func TestAmbiguousColumnWarn(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT a FROM x JOIN y ON x.id = y.id",
		analyzer.Options{Policy: analyzer.PolicyWarn})
	requireClean(t, result)

	a := column(t, result, "t", "a")
	require.Len(t, a.Sources, 1)
	assert.Equal(t, "x.a", a.Sources[0].Qualified(), "falls back to first table in FROM order")
	assert.Equal(t, 0.6, a.Sources[0].Confidence)

	found := false
	for _, d := range result.Diagnostics {
		if d.Code == analyzer.DiagAmbiguousColumn {
			found = true
		}
	}
	assert.True(t, found, "ambiguity warning recorded")
}

func TestSchemaDisambiguates(t *testing.T) {
	provider := schema.NewMapProvider(map[string][]string{
		"x": {"id", "name"},
		"y": {"id", "a"},
	})
	result := analyze(t, "CREATE TABLE t AS SELECT a FROM x JOIN y ON x.id = y.id",
		analyzer.Options{Policy: analyzer.PolicyStrict, Provider: provider})
	requireClean(t, result)

	a := column(t, result, "t", "a")
	require.Len(t, a.Sources, 1)
	assert.Equal(t, "y.a", a.Sources[0].Qualified())
	assert.Equal(t, 1.0, a.Sources[0].Confidence, "schema intersection gives certainty")
}

func TestSchemaZeroMatchFallback(t *testing.T) {
	provider := schema.NewMapProvider(map[string][]string{
		"x": {"id"},
		"y": {"id"},
	})

	strict := analyze(t, "CREATE TABLE t AS SELECT ghost FROM x JOIN y ON x.id = y.id",
		analyzer.Options{Policy: analyzer.PolicyStrict, Provider: provider})
	var notFound *analyzer.ColumnNotFoundError
	require.ErrorAs(t, strict.Statements[0].Err, &notFound)

	warn := analyze(t, "CREATE TABLE t AS SELECT ghost FROM x JOIN y ON x.id = y.id",
		analyzer.Options{Policy: analyzer.PolicyWarn, Provider: provider})
	requireClean(t, warn)
	ghost := column(t, warn, "t", "ghost")
	require.Len(t, ghost.Sources, 1)
	assert.Equal(t, 0.3, ghost.Sources[0].Confidence)
}

func TestInferByElimination(t *testing.T) {
	// x's schema is known and rules itself out; y is the only candidate.
	provider := schema.NewMapProvider(map[string][]string{
		"x": {"id", "name"},
	})
	result := analyze(t, "CREATE TABLE t AS SELECT a FROM x JOIN y ON x.id = y.id",
		analyzer.Options{Policy: analyzer.PolicyInfer, Provider: provider})
	requireClean(t, result)

	a := column(t, result, "t", "a")
	require.Len(t, a.Sources, 1)
	assert.Equal(t, "y.a", a.Sources[0].Qualified())
	assert.Equal(t, 0.8, a.Sources[0].Confidence)
}

func TestConfidenceMonotonicity(t *testing.T) {
	provider := schema.NewMapProvider(map[string][]string{
		"x": {"a", "id"},
		"y": {"a", "id"},
	})

	qualified := analyze(t, "CREATE TABLE t AS SELECT x.a AS xa FROM x JOIN y ON x.id = y.id",
		analyzer.Options{Policy: analyzer.PolicyWarn, Provider: provider})
	requireClean(t, qualified)
	qa := column(t, qualified, "t", "xa")

	unqualified := analyze(t, "CREATE TABLE t AS SELECT a FROM x JOIN y ON x.id = y.id",
		analyzer.Options{Policy: analyzer.PolicyWarn, Provider: provider})
	requireClean(t, unqualified)
	ua := column(t, unqualified, "t", "a")

	assert.GreaterOrEqual(t, qa.Sources[0].Confidence, ua.Sources[0].Confidence)
	assert.Equal(t, 1.0, qa.Sources[0].Confidence)
}

func TestUnknownTableAlias(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT z.a FROM x", analyzer.Options{})

	var unknown *analyzer.UnknownAliasError
	require.ErrorAs(t, result.Statements[0].Err, &unknown)
	assert.Equal(t, "z", unknown.Alias)
}

// ---------- Aggregates and GROUP BY ----------

func TestAggregateAndGroupBy(t *testing.T) {
	result := analyze(t, `CREATE TABLE s AS
		SELECT customer_id, SUM(amount) AS total
		FROM orders
		GROUP BY customer_id`, analyzer.Options{})
	requireClean(t, result)

	total := column(t, result, "s", "total")
	assert.True(t, total.Aggregate)
	assert.Equal(t, "SUM", total.AggregateFunc)
	require.Len(t, total.Sources, 1)
	assert.Equal(t, "orders.amount", total.Sources[0].Qualified())

	customer := column(t, result, "s", "customer_id")
	assert.True(t, customer.GroupBy)
	require.Len(t, customer.Sources, 1)
	assert.Equal(t, "orders.customer_id", customer.Sources[0].Qualified())
	assert.False(t, customer.Aggregate)
}

func TestGroupByQualifiedKey(t *testing.T) {
	result := analyze(t, `
		CREATE TABLE t AS
			SELECT x.a AS xa, y.a AS ya
			FROM x JOIN y ON x.id = y.id
			GROUP BY x.a;
		CREATE TABLE u AS SELECT x.a AS keep FROM x GROUP BY a;
	`, analyzer.Options{})
	requireClean(t, result)

	assert.True(t, column(t, result, "t", "xa").GroupBy)
	assert.False(t, column(t, result, "t", "ya").GroupBy, "same column name on another table is not a key")

	assert.True(t, column(t, result, "u", "keep").GroupBy, "bare key matches a qualified item")
}

func TestCountStarHasZeroSources(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT COUNT(*) AS n FROM orders", analyzer.Options{})
	requireClean(t, result)

	n := column(t, result, "t", "n")
	assert.Empty(t, n.Sources)
	assert.True(t, n.Aggregate)
	assert.Equal(t, "COUNT", n.AggregateFunc)
}

func TestCountDistinct(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT COUNT(DISTINCT user_id) AS users FROM events", analyzer.Options{})
	requireClean(t, result)

	users := column(t, result, "t", "users")
	assert.Equal(t, "COUNT DISTINCT", users.AggregateFunc)
	require.Len(t, users.Sources, 1)
}

// ---------- CTEs, subqueries, set operations ----------

func TestCTELineageFlowsThrough(t *testing.T) {
	result := analyze(t, `CREATE TABLE summary AS
		WITH regional AS (
			SELECT region, SUM(amount) AS total FROM orders GROUP BY region
		)
		SELECT region, total FROM regional`, analyzer.Options{})
	requireClean(t, result)

	total := column(t, result, "summary", "total")
	require.Len(t, total.Sources, 1)
	assert.Equal(t, "regional.total", total.Sources[0].Qualified())

	// The CTE stays registered so traces continue through it
	cteTotal := column(t, result, "regional", "total")
	require.Len(t, cteTotal.Sources, 1)
	assert.Equal(t, "orders.amount", cteTotal.Sources[0].Qualified())
}

func TestCTEChainInOrder(t *testing.T) {
	result := analyze(t, `CREATE TABLE t AS
		WITH a AS (SELECT x FROM src),
		     b AS (SELECT x FROM a)
		SELECT x FROM b`, analyzer.Options{})
	requireClean(t, result)

	bx := column(t, result, "b", "x")
	require.Len(t, bx.Sources, 1)
	assert.Equal(t, "a.x", bx.Sources[0].Qualified(), "later CTE resolves against earlier one")
}

func TestCTEShadowingKeepsTableDefinition(t *testing.T) {
	result := analyze(t, `
		CREATE TABLE fact AS SELECT amount FROM orders;
		CREATE TABLE rpt AS WITH fact AS (SELECT x FROM other) SELECT x FROM fact;
		CREATE TABLE final AS SELECT amount FROM fact;
	`, analyzer.Options{})
	requireClean(t, result)

	// The CTE named fact was scoped to its own statement; the real
	// table keeps its definition and lineage.
	fact, ok := result.Registry.Get("fact")
	require.True(t, ok)
	assert.Equal(t, registry.KindBaseTable, fact.Kind)
	assert.False(t, fact.HasColumn("x"))
	amount := column(t, result, "fact", "amount")
	require.Len(t, amount.Sources, 1)
	assert.Equal(t, "orders.amount", amount.Sources[0].Qualified())

	// References through the shadowing CTE flatten to its own sources.
	rptX := column(t, result, "rpt", "x")
	require.Len(t, rptX.Sources, 1)
	assert.Equal(t, "other.x", rptX.Sources[0].Qualified())

	finalAmount := column(t, result, "final", "amount")
	require.Len(t, finalAmount.Sources, 1)
	assert.Equal(t, "fact.amount", finalAmount.Sources[0].Qualified())

	var shadowed bool
	for _, d := range result.Diagnostics {
		if d.Code == analyzer.DiagShadowedTable {
			shadowed = true
		}
	}
	assert.True(t, shadowed, "shadowing surfaces a diagnostic")
}

func TestFailedStatementDiscardsCTEs(t *testing.T) {
	result := analyze(t,
		"CREATE TABLE t AS WITH c AS (SELECT a FROM s) SELECT zz.a FROM c",
		analyzer.Options{})

	require.Len(t, result.Statements, 1)
	require.Error(t, result.Statements[0].Err)
	assert.False(t, result.Registry.Has("c"), "failed statement leaves no CTE behind")
	assert.False(t, result.Registry.Has("t"))
}

func TestDerivedTableFlattened(t *testing.T) {
	result := analyze(t, `CREATE TABLE t AS
		SELECT d.total
		FROM (SELECT SUM(amount) AS total FROM orders) d`, analyzer.Options{})
	requireClean(t, result)

	total := column(t, result, "t", "total")
	require.Len(t, total.Sources, 1)
	assert.Equal(t, "orders.amount", total.Sources[0].Qualified(), "derived table is transparent")

	assert.False(t, result.Registry.Has("d"), "derived table is not registered")
}

func TestScalarSubqueryFlattened(t *testing.T) {
	result := analyze(t, `CREATE TABLE t AS
		SELECT id, (SELECT MAX(score) FROM ratings) AS best FROM users`, analyzer.Options{})
	requireClean(t, result)

	best := column(t, result, "t", "best")
	require.Len(t, best.Sources, 1)
	assert.Equal(t, "ratings.score", best.Sources[0].Qualified())
}

func TestUnionMergesBranches(t *testing.T) {
	result := analyze(t, `CREATE TABLE t AS
		SELECT a FROM s1
		UNION ALL
		SELECT b FROM s2`, analyzer.Options{})
	requireClean(t, result)

	a := column(t, result, "t", "a")
	require.Len(t, a.Sources, 2)
	assert.Equal(t, "s1.a", a.Sources[0].Qualified())
	assert.Equal(t, "s2.b", a.Sources[1].Qualified())
}

// ---------- Wildcards ----------

func TestStarExpansionWithSchema(t *testing.T) {
	provider := schema.NewMapProvider(map[string][]string{
		"orders": {"id", "amount"},
	})
	result := analyze(t, "CREATE TABLE t AS SELECT * FROM orders",
		analyzer.Options{Provider: provider})
	requireClean(t, result)

	def, _ := result.Registry.Get("t")
	assert.Equal(t, []string{"id", "amount"}, def.ColumnNames())

	id := column(t, result, "t", "id")
	require.Len(t, id.Sources, 1)
	assert.Equal(t, "orders.id", id.Sources[0].Qualified())
}

func TestStarWithoutSchemaIsOpaque(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT * FROM mystery", analyzer.Options{})
	requireClean(t, result)

	star := column(t, result, "t", "*")
	require.Len(t, star.Sources, 1)
	assert.Equal(t, "mystery.*", star.Sources[0].Qualified())

	found := false
	for _, d := range result.Diagnostics {
		if d.Code == analyzer.DiagOpaqueWildcard {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTableStarExpansion(t *testing.T) {
	provider := schema.NewMapProvider(map[string][]string{
		"x": {"a"},
		"y": {"b"},
	})
	result := analyze(t, "CREATE TABLE t AS SELECT x.* FROM x JOIN y ON x.a = y.b",
		analyzer.Options{Provider: provider})
	requireClean(t, result)

	def, _ := result.Registry.Get("t")
	assert.Equal(t, []string{"a"}, def.ColumnNames(), "only the qualified table expands")
}

// ---------- JOIN USING ----------

func TestJoinUsingCoOwnership(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT id FROM x JOIN y USING (id)", analyzer.Options{})
	requireClean(t, result)

	id := column(t, result, "t", "id")
	require.Len(t, id.Sources, 2)
	assert.Equal(t, "x.id", id.Sources[0].Qualified())
	assert.Equal(t, 1.0, id.Sources[0].Confidence)
	assert.Equal(t, "y.id", id.Sources[1].Qualified())
	assert.Equal(t, 0.8, id.Sources[1].Confidence)
}

// ---------- Unsupported constructs and failure isolation ----------

func TestWindowFunctionUnsupported(t *testing.T) {
	result := analyze(t, "CREATE TABLE t AS SELECT ROW_NUMBER() OVER (ORDER BY id) AS rn FROM s",
		analyzer.Options{})

	var unsupported *analyzer.UnsupportedError
	require.ErrorAs(t, result.Statements[0].Err, &unsupported)
}

func TestUpdateDeleteUnsupported(t *testing.T) {
	result := analyze(t, `
		UPDATE t SET a = 1;
		DELETE FROM t;
	`, analyzer.Options{})

	require.Len(t, result.Statements, 2)
	for _, s := range result.Statements {
		var unsupported *analyzer.UnsupportedError
		assert.ErrorAs(t, s.Err, &unsupported)
	}
}

func TestFailureIsolation(t *testing.T) {
	script := `
		CREATE TABLE good1 AS SELECT a FROM s;
		INSERT INTO missing SELECT a FROM s;
		CREATE TABLE good2 AS SELECT a FROM good1;
	`
	result := analyze(t, script, analyzer.Options{})

	require.Len(t, result.Statements, 3)
	assert.NoError(t, result.Statements[0].Err)
	assert.Error(t, result.Statements[1].Err)
	assert.NoError(t, result.Statements[2].Err, "later statements analyze against what succeeded")

	a := column(t, result, "good2", "a")
	require.Len(t, a.Sources, 1)
	assert.Equal(t, "good1.a", a.Sources[0].Qualified())
}

func TestStatementIndexing(t *testing.T) {
	result := analyze(t, `
		CREATE TABLE a AS SELECT x FROM s;
		CREATE TABLE b AS SELECT x FROM a;
	`, analyzer.Options{})
	requireClean(t, result)

	assert.Equal(t, 1, result.Statements[0].Index)
	assert.Equal(t, 2, result.Statements[1].Index)

	b, _ := result.Registry.Get("b")
	assert.Equal(t, 2, b.CreatedAt)
}
