package parser

import "strings"

// Render returns the canonical text form of an expression. It is used to
// record transformation expressions on lineage entries and to compare
// GROUP BY expressions against SELECT items, so it must be stable: the
// same tree always renders to the same string.
func Render(expr Expr) string {
	switch e := expr.(type) {
	case nil:
		return ""

	case *ColumnRef:
		if e.Table != "" {
			return e.Table + "." + e.Column
		}
		return e.Column

	case *Literal:
		switch e.Type {
		case LiteralString:
			return "'" + strings.ReplaceAll(e.Value, "'", "''") + "'"
		case LiteralNull:
			return "NULL"
		case LiteralBool:
			return strings.ToUpper(e.Value)
		default:
			return e.Value
		}

	case *BinaryExpr:
		return Render(e.Left) + " " + e.Op.String() + " " + Render(e.Right)

	case *UnaryExpr:
		if e.Op == TOKEN_NOT {
			return "NOT " + Render(e.Expr)
		}
		return e.Op.String() + Render(e.Expr)

	case *FuncCall:
		return renderFuncCall(e)

	case *CaseExpr:
		return renderCaseExpr(e)

	case *CastExpr:
		return "CAST(" + Render(e.Expr) + " AS " + strings.ToUpper(e.TypeName) + ")"

	case *InExpr:
		return renderInExpr(e)

	case *BetweenExpr:
		s := Render(e.Expr)
		if e.Not {
			s += " NOT"
		}
		return s + " BETWEEN " + Render(e.Low) + " AND " + Render(e.High)

	case *IsNullExpr:
		if e.Not {
			return Render(e.Expr) + " IS NOT NULL"
		}
		return Render(e.Expr) + " IS NULL"

	case *LikeExpr:
		s := Render(e.Expr)
		if e.Not {
			s += " NOT"
		}
		return s + " LIKE " + Render(e.Pattern)

	case *ParenExpr:
		return "(" + Render(e.Expr) + ")"

	case *StarExpr:
		if e.Table != "" {
			return e.Table + ".*"
		}
		return "*"

	case *SubqueryExpr:
		return "(<subquery>)"

	case *ExistsExpr:
		if e.Not {
			return "NOT EXISTS (<subquery>)"
		}
		return "EXISTS (<subquery>)"

	default:
		return ""
	}
}

func renderFuncCall(e *FuncCall) string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte('(')
	if e.Star {
		b.WriteByte('*')
	} else {
		if e.Distinct {
			b.WriteString("DISTINCT ")
		}
		for i, arg := range e.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Render(arg))
		}
	}
	b.WriteByte(')')
	if e.Over {
		b.WriteString(" OVER (...)")
	}
	return b.String()
}

func renderCaseExpr(e *CaseExpr) string {
	var b strings.Builder
	b.WriteString("CASE")
	if e.Operand != nil {
		b.WriteByte(' ')
		b.WriteString(Render(e.Operand))
	}
	for _, when := range e.Whens {
		b.WriteString(" WHEN ")
		b.WriteString(Render(when.Condition))
		b.WriteString(" THEN ")
		b.WriteString(Render(when.Result))
	}
	if e.Else != nil {
		b.WriteString(" ELSE ")
		b.WriteString(Render(e.Else))
	}
	b.WriteString(" END")
	return b.String()
}

func renderInExpr(e *InExpr) string {
	var b strings.Builder
	b.WriteString(Render(e.Expr))
	if e.Not {
		b.WriteString(" NOT")
	}
	b.WriteString(" IN (")
	if e.Query != nil {
		b.WriteString("<subquery>")
	} else {
		for i, v := range e.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Render(v))
		}
	}
	b.WriteByte(')')
	return b.String()
}
