package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DBProvider reads table structures from a live database through
// information_schema.columns. The whole catalog is loaded once up front;
// lookups are then served from memory.
type DBProvider struct {
	tables    map[string][]string
	bareOwner map[string]string
}

// Open connects to a database and preloads its catalog. Supported drivers:
// "duckdb" and "postgres" (served by pgx).
func Open(ctx context.Context, driver, dsn string) (*DBProvider, error) {
	name := driver
	if name == "postgres" {
		name = "pgx"
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	defer db.Close()

	return NewDBProvider(ctx, db)
}

// NewDBProvider preloads the catalog from an existing connection.
func NewDBProvider(ctx context.Context, db *sql.DB) (*DBProvider, error) {
	const query = `
		SELECT table_schema, table_name, column_name
		FROM information_schema.columns
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_schema, table_name, ordinal_position`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying information_schema: %w", err)
	}
	defer rows.Close()

	p := &DBProvider{
		tables:    make(map[string][]string),
		bareOwner: make(map[string]string),
	}

	for rows.Next() {
		var schemaName, tableName, columnName string
		if err := rows.Scan(&schemaName, &tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}

		// Register under both the bare and schema-qualified name. When the
		// same table name exists in several schemas, the bare entry keeps
		// the first schema's columns.
		bare := strings.ToLower(tableName)
		qualified := strings.ToLower(schemaName) + "." + bare
		p.tables[qualified] = append(p.tables[qualified], columnName)
		if prev, ok := p.bareOwner[bare]; !ok || prev == qualified {
			p.bareOwner[bare] = qualified
			p.tables[bare] = append(p.tables[bare], columnName)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading catalog rows: %w", err)
	}

	return p, nil
}

// TableColumns implements Provider.
func (p *DBProvider) TableColumns(table string) ([]string, bool) {
	cols, ok := p.tables[strings.ToLower(table)]
	return cols, ok
}
