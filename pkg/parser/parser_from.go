package parser

// FROM clause parsing: table references, derived tables, JOINs.
//
// Grammar:
//
//	from_clause   → table_ref (join)*
//	table_ref     → table_name | derived_table
//	table_name    → [schema "."] identifier [AS identifier]
//	derived_table → "(" select_stmt ")" [AS] identifier
//	join          → join_type JOIN table_ref [ON expr | USING "(" column_list ")"]
//	              | "," table_ref
//	join_type     → [INNER] | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | CROSS

// parseFromClause parses the FROM clause.
func (p *Parser) parseFromClause() *FromClause {
	from := &FromClause{}
	from.Source = p.parseTableRef()

	// Parse JOINs
	for {
		join := p.parseJoin()
		if join == nil {
			break
		}
		from.Joins = append(from.Joins, join)
	}

	return from
}

// parseTableRef parses a table reference.
func (p *Parser) parseTableRef() TableRef {
	// Derived table (subquery)
	if p.check(TOKEN_LPAREN) {
		return p.parseDerivedTable()
	}

	// Simple table name
	return p.parseTableName()
}

// parseTableName parses a table name with optional schema qualifier.
func (p *Parser) parseTableName() *TableName {
	table := &TableName{}

	if !p.check(TOKEN_IDENT) {
		p.addError("expected table name")
		return table
	}

	parts := []string{p.token.Literal}
	p.nextToken()

	for p.match(TOKEN_DOT) {
		if p.check(TOKEN_IDENT) {
			parts = append(parts, p.token.Literal)
			p.nextToken()
		}
	}

	switch len(parts) {
	case 1:
		table.Name = parts[0]
	default:
		table.Schema = parts[0]
		table.Name = parts[len(parts)-1]
	}

	// Optional alias
	if p.match(TOKEN_AS) {
		if p.check(TOKEN_IDENT) {
			table.Alias = p.token.Literal
			p.nextToken()
		}
	} else if p.check(TOKEN_IDENT) && !p.isJoinKeyword(p.token) && !p.isClauseKeyword(p.token) {
		table.Alias = p.token.Literal
		p.nextToken()
	}

	return table
}

// parseDerivedTable parses a derived table (subquery in FROM).
func (p *Parser) parseDerivedTable() *DerivedTable {
	p.expect(TOKEN_LPAREN)
	derived := &DerivedTable{}
	derived.Select = p.parseSelectStmt()
	p.expect(TOKEN_RPAREN)

	// Alias is required for derived tables
	if p.match(TOKEN_AS) {
		if p.check(TOKEN_IDENT) {
			derived.Alias = p.token.Literal
			p.nextToken()
		}
	} else if p.check(TOKEN_IDENT) && !p.isJoinKeyword(p.token) && !p.isClauseKeyword(p.token) {
		derived.Alias = p.token.Literal
		p.nextToken()
	}

	if derived.Alias == "" {
		p.addError("derived table requires an alias")
	}

	return derived
}

// parseJoin parses a single JOIN, or returns nil when no join follows.
func (p *Parser) parseJoin() *Join {
	join := &Join{}

	switch p.token.Type {
	case TOKEN_COMMA:
		p.nextToken()
		join.Type = JoinComma
		join.Right = p.parseTableRef()
		return join

	case TOKEN_JOIN:
		p.nextToken()
		join.Type = JoinInner

	case TOKEN_INNER:
		p.nextToken()
		p.expect(TOKEN_JOIN)
		join.Type = JoinInner

	case TOKEN_LEFT:
		p.nextToken()
		p.match(TOKEN_OUTER)
		p.expect(TOKEN_JOIN)
		join.Type = JoinLeft

	case TOKEN_RIGHT:
		p.nextToken()
		p.match(TOKEN_OUTER)
		p.expect(TOKEN_JOIN)
		join.Type = JoinRight

	case TOKEN_FULL:
		p.nextToken()
		p.match(TOKEN_OUTER)
		p.expect(TOKEN_JOIN)
		join.Type = JoinFull

	case TOKEN_CROSS:
		p.nextToken()
		p.expect(TOKEN_JOIN)
		join.Type = JoinCross
		join.Right = p.parseTableRef()
		return join

	default:
		return nil
	}

	join.Right = p.parseTableRef()

	switch {
	case p.match(TOKEN_ON):
		join.Condition = p.parseExpression()
	case p.match(TOKEN_USING):
		p.expect(TOKEN_LPAREN)
		for {
			if !p.check(TOKEN_IDENT) {
				p.addError("expected column name in USING list")
				break
			}
			join.Using = append(join.Using, p.token.Literal)
			p.nextToken()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
	}

	return join
}
