package parser

// StatementKind identifies what kind of statement a piece of SQL is,
// determined from its leading tokens without a full parse.
type StatementKind string

// StatementKind constants.
const (
	KindSelect           StatementKind = "SELECT"
	KindCreateTableAs    StatementKind = "CREATE_TABLE_AS"
	KindCreateView       StatementKind = "CREATE_VIEW"
	KindInsertIntoSelect StatementKind = "INSERT_INTO_SELECT"
	KindWithCTE          StatementKind = "WITH_CTE"
	KindUnsupported      StatementKind = "UNSUPPORTED"
)

// Classification describes a classified statement: its kind and, for
// CREATE and INSERT statements, the target table name.
type Classification struct {
	Kind   StatementKind
	Target string
}

// Classify inspects the leading tokens of a SQL statement and reports its
// kind. UPDATE, DELETE, and INSERT ... VALUES are classified as unsupported.
func Classify(sql string) Classification {
	l := NewLexer(sql)
	tok := l.NextToken()

	switch tok.Type {
	case TOKEN_SELECT:
		return Classification{Kind: KindSelect}

	case TOKEN_WITH:
		return Classification{Kind: KindWithCTE}

	case TOKEN_CREATE:
		return classifyCreate(l)

	case TOKEN_INSERT:
		return classifyInsert(l)

	default:
		return Classification{Kind: KindUnsupported}
	}
}

func classifyCreate(l *Lexer) Classification {
	view := false

	// Skip OR REPLACE / TEMP / TEMPORARY modifiers
	tok := l.NextToken()
	for {
		switch tok.Type {
		case TOKEN_OR, TOKEN_REPLACE, TOKEN_TEMP, TOKEN_TEMPORARY:
			tok = l.NextToken()
			continue
		}
		break
	}

	switch tok.Type {
	case TOKEN_TABLE:
	case TOKEN_VIEW:
		view = true
	default:
		return Classification{Kind: KindUnsupported}
	}

	target, _ := readDottedName(l)
	if target == "" {
		return Classification{Kind: KindUnsupported}
	}

	kind := KindCreateTableAs
	if view {
		kind = KindCreateView
	}
	return Classification{Kind: kind, Target: target}
}

func classifyInsert(l *Lexer) Classification {
	if l.NextToken().Type != TOKEN_INTO {
		return Classification{Kind: KindUnsupported}
	}

	target, next := readDottedName(l)
	if target == "" {
		return Classification{Kind: KindUnsupported}
	}

	// Scan forward: SELECT or WITH means a query source, VALUES does not.
	// An optional column list may come first.
	tok := next
	for {
		switch tok.Type {
		case TOKEN_SELECT, TOKEN_WITH:
			return Classification{Kind: KindInsertIntoSelect, Target: target}
		case TOKEN_VALUES, TOKEN_EOF:
			return Classification{Kind: KindUnsupported, Target: target}
		}
		tok = l.NextToken()
	}
}

// readDottedName reads an optionally qualified name from the lexer.
// Returns the full dotted name (empty when no identifier follows) and the
// first token after it.
func readDottedName(l *Lexer) (string, Token) {
	tok := l.NextToken()
	if tok.Type != TOKEN_IDENT {
		return "", tok
	}
	name := tok.Literal

	for {
		dot := l.NextToken()
		if dot.Type != TOKEN_DOT {
			return name, dot
		}
		part := l.NextToken()
		if part.Type != TOKEN_IDENT {
			return name, part
		}
		name += "." + part.Literal
	}
}
