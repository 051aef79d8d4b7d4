package parser

// Statement parsing: CREATE TABLE AS / CREATE VIEW / INSERT INTO SELECT,
// WITH clause, CTEs, SELECT body, SELECT list, ORDER BY.

// parseTopLevel parses a complete statement of any supported kind.
func (p *Parser) parseTopLevel() Statement {
	switch p.token.Type {
	case TOKEN_CREATE:
		return p.parseCreateStmt()
	case TOKEN_INSERT:
		return p.parseInsertStmt()
	default:
		return p.parseSelectStmt()
	}
}

// parseCreateStmt parses CREATE [OR REPLACE] [TEMP] TABLE|VIEW name AS select.
func (p *Parser) parseCreateStmt() Statement {
	p.expect(TOKEN_CREATE)
	stmt := &CreateTableStmt{}

	if p.match(TOKEN_OR) {
		p.expect(TOKEN_REPLACE)
		stmt.OrReplace = true
	}

	if p.match(TOKEN_TEMP) || p.match(TOKEN_TEMPORARY) {
		stmt.Temp = true
	}

	switch {
	case p.match(TOKEN_TABLE):
		stmt.View = false
	case p.match(TOKEN_VIEW):
		stmt.View = true
	default:
		p.addError("expected TABLE or VIEW after CREATE")
		return stmt
	}

	stmt.Name = p.parseQualifiedName()

	p.expect(TOKEN_AS)
	stmt.Select = p.parseSelectStmt()

	return stmt
}

// parseInsertStmt parses INSERT INTO name [(columns)] select.
func (p *Parser) parseInsertStmt() Statement {
	p.expect(TOKEN_INSERT)
	p.expect(TOKEN_INTO)

	stmt := &InsertStmt{}
	stmt.Table = p.parseQualifiedName()

	// Optional explicit column list
	if p.check(TOKEN_LPAREN) && (p.checkPeek(TOKEN_IDENT) && (p.checkPeek2(TOKEN_COMMA) || p.checkPeek2(TOKEN_RPAREN))) {
		p.nextToken() // consume '('
		for {
			if !p.check(TOKEN_IDENT) {
				p.addError("expected column name in INSERT column list")
				break
			}
			stmt.Columns = append(stmt.Columns, p.token.Literal)
			p.nextToken()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
	}

	if p.check(TOKEN_VALUES) {
		p.addError("INSERT ... VALUES is not supported, only INSERT INTO ... SELECT")
		return stmt
	}

	stmt.Select = p.parseSelectStmt()
	return stmt
}

// parseQualifiedName parses an optionally schema-qualified name as a single string.
func (p *Parser) parseQualifiedName() string {
	if !p.check(TOKEN_IDENT) {
		p.addError("expected name")
		return ""
	}
	name := p.token.Literal
	p.nextToken()

	for p.match(TOKEN_DOT) {
		if p.check(TOKEN_IDENT) {
			name += "." + p.token.Literal
			p.nextToken()
		}
	}
	return name
}

// parseSelectStmt parses a SELECT statement with an optional WITH clause.
func (p *Parser) parseSelectStmt() *SelectStmt {
	stmt := &SelectStmt{}

	if p.check(TOKEN_WITH) {
		stmt.With = p.parseWithClause()
	}

	stmt.Body = p.parseSelectBody()

	return stmt
}

// parseWithClause parses a WITH clause with CTEs.
func (p *Parser) parseWithClause() *WithClause {
	p.expect(TOKEN_WITH)
	with := &WithClause{}

	if p.match(TOKEN_RECURSIVE) {
		with.Recursive = true
	}

	for {
		cte := p.parseCTE()
		with.CTEs = append(with.CTEs, cte)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return with
}

// parseCTE parses a single CTE: name [(col, ...)] AS ( select ).
func (p *Parser) parseCTE() *CTE {
	cte := &CTE{}

	if !p.check(TOKEN_IDENT) {
		p.addError("expected CTE name")
		return cte
	}
	cte.Name = p.token.Literal
	p.nextToken()

	// Optional explicit column list
	if p.match(TOKEN_LPAREN) {
		for {
			if !p.check(TOKEN_IDENT) {
				p.addError("expected column name in CTE column list")
				break
			}
			cte.Columns = append(cte.Columns, p.token.Literal)
			p.nextToken()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
	}

	p.expect(TOKEN_AS)
	p.expect(TOKEN_LPAREN)
	cte.Select = p.parseSelectStmt()
	p.expect(TOKEN_RPAREN)

	return cte
}

// parseSelectBody parses a SELECT body with possible set operations.
func (p *Parser) parseSelectBody() *SelectBody {
	body := &SelectBody{}
	body.Left = p.parseSelectCore()

	if p.check(TOKEN_UNION) || p.check(TOKEN_INTERSECT) || p.check(TOKEN_EXCEPT) {
		switch p.token.Type {
		case TOKEN_UNION:
			p.nextToken()
			if p.match(TOKEN_ALL) {
				body.Op = SetOpUnionAll
				body.All = true
			} else {
				body.Op = SetOpUnion
				p.match(TOKEN_DISTINCT) // optional
			}
		case TOKEN_INTERSECT:
			p.nextToken()
			body.Op = SetOpIntersect
			p.match(TOKEN_ALL)
		case TOKEN_EXCEPT:
			p.nextToken()
			body.Op = SetOpExcept
			p.match(TOKEN_ALL)
		}

		// Parse the right side (recursively for chained operations)
		body.Right = p.parseSelectBody()
	}

	return body
}

// parseSelectCore parses a single SELECT clause.
func (p *Parser) parseSelectCore() *SelectCore {
	p.expect(TOKEN_SELECT)
	core := &SelectCore{}

	if p.match(TOKEN_DISTINCT) {
		core.Distinct = true
	} else {
		p.match(TOKEN_ALL) // optional
	}

	core.Columns = p.parseSelectList()

	if p.match(TOKEN_FROM) {
		core.From = p.parseFromClause()
	}

	if p.match(TOKEN_WHERE) {
		core.Where = p.parseExpression()
	}

	if p.match(TOKEN_GROUP) {
		p.expect(TOKEN_BY)
		core.GroupBy = p.parseExpressionList()
	}

	if p.match(TOKEN_HAVING) {
		core.Having = p.parseExpression()
	}

	if p.match(TOKEN_ORDER) {
		p.expect(TOKEN_BY)
		core.OrderBy = p.parseOrderByList()
	}

	if p.match(TOKEN_LIMIT) {
		core.Limit = p.parseExpression()

		if p.match(TOKEN_OFFSET) {
			core.Offset = p.parseExpression()
		}
	}

	return core
}

// parseSelectList parses the list of SELECT items.
func (p *Parser) parseSelectList() []SelectItem {
	var items []SelectItem

	for {
		item := p.parseSelectItem()
		items = append(items, item)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return items
}

// parseSelectItem parses a single SELECT item.
func (p *Parser) parseSelectItem() SelectItem {
	item := SelectItem{}

	if p.check(TOKEN_STAR) {
		item.Star = true
		p.nextToken()
		return item
	}

	// table.* pattern via 3-token lookahead (no rollback needed)
	if p.check(TOKEN_IDENT) && p.checkPeek(TOKEN_DOT) && p.checkPeek2(TOKEN_STAR) {
		tableName := p.token.Literal
		p.nextToken() // consume identifier
		p.nextToken() // consume DOT
		p.nextToken() // consume STAR
		item.TableStar = tableName
		return item
	}

	item.Expr = p.parseExpression()

	// Optional alias
	if p.match(TOKEN_AS) {
		if p.check(TOKEN_IDENT) {
			item.Alias = p.token.Literal
			p.nextToken()
		} else {
			p.addError("expected alias after AS")
		}
	} else if p.check(TOKEN_IDENT) && !p.isKeyword(p.token) {
		// Alias without AS
		item.Alias = p.token.Literal
		p.nextToken()
	}

	return item
}

// parseOrderByList parses a list of ORDER BY items.
func (p *Parser) parseOrderByList() []OrderByItem {
	var items []OrderByItem

	for {
		item := p.parseOrderByItem()
		items = append(items, item)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return items
}

// parseOrderByItem parses a single ORDER BY item.
func (p *Parser) parseOrderByItem() OrderByItem {
	item := OrderByItem{}
	item.Expr = p.parseExpression()

	if p.match(TOKEN_ASC) {
		item.Desc = false
	} else if p.match(TOKEN_DESC) {
		item.Desc = true
	}

	if p.match(TOKEN_NULLS) {
		if p.match(TOKEN_FIRST) {
			b := true
			item.NullsFirst = &b
		} else if p.match(TOKEN_LAST) {
			b := false
			item.NullsFirst = &b
		}
	}

	return item
}

// parseExpressionList parses a comma-separated list of expressions.
func (p *Parser) parseExpressionList() []Expr {
	var exprs []Expr

	for {
		expr := p.parseExpression()
		exprs = append(exprs, expr)

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	return exprs
}
