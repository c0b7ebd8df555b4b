package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Inspector reads table and constraint metadata from the PostgreSQL catalog.
// It backs both the DDL provider and the schema inspection endpoints.
type Inspector struct {
	db *sql.DB
}

func NewInspector(db *sql.DB) *Inspector {
	return &Inspector{db: db}
}

type TableInfo struct {
	TableName   string `json:"table_name"`
	RowCount    int64  `json:"row_count"`
	ColumnCount int    `json:"column_count"`
}

type ColumnInfo struct {
	Name      string  `json:"column_name"`
	DataType  string  `json:"data_type"`
	UDTName   string  `json:"-"`
	MaxLength *int64  `json:"character_maximum_length,omitempty"`
	Nullable  bool    `json:"is_nullable"`
	Default   *string `json:"column_default,omitempty"`
	Position  int     `json:"ordinal_position"`
}

type ForeignKey struct {
	ConstraintName string `json:"constraint_name"`
	Column         string `json:"column_name"`
	ForeignTable   string `json:"foreign_table_name"`
	ForeignColumn  string `json:"foreign_column_name"`
}

type TableSchema struct {
	TableName   string       `json:"table_name"`
	RowCount    int64        `json:"row_count"`
	Columns     []ColumnInfo `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

func (i *Inspector) HealthCheck(ctx context.Context) error {
	if err := i.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (i *Inspector) ListTableNames(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table names: %w", err)
	}
	return names, nil
}

// ListTables returns every public table with its live row count and column
// count. Row counts run one COUNT(*) per table, which is acceptable for the
// DVD rental database's table population.
func (i *Inspector) ListTables(ctx context.Context) ([]TableInfo, error) {
	names, err := i.ListTableNames(ctx)
	if err != nil {
		return nil, err
	}

	tables := make([]TableInfo, 0, len(names))
	for _, name := range names {
		info := TableInfo{TableName: name}
		if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name)).Scan(&info.RowCount); err != nil {
			return nil, fmt.Errorf("count rows of %s: %w", name, err)
		}
		if err := i.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1`, name).Scan(&info.ColumnCount); err != nil {
			return nil, fmt.Errorf("count columns of %s: %w", name, err)
		}
		tables = append(tables, info)
	}
	return tables, nil
}

func (i *Inspector) TableSchema(ctx context.Context, tableName string) (TableSchema, error) {
	columns, err := i.listColumns(ctx, tableName)
	if err != nil {
		return TableSchema{}, err
	}
	if len(columns) == 0 {
		return TableSchema{}, ErrTableNotFound
	}

	table := TableSchema{TableName: tableName, Columns: columns, PrimaryKeys: []string{}, ForeignKeys: []ForeignKey{}}
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(tableName)).Scan(&table.RowCount); err != nil {
		return TableSchema{}, fmt.Errorf("count rows of %s: %w", tableName, err)
	}

	pkRows, err := i.db.QueryContext(ctx, `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position`, tableName)
	if err != nil {
		return TableSchema{}, fmt.Errorf("list primary keys of %s: %w", tableName, err)
	}
	defer func() { _ = pkRows.Close() }()
	for pkRows.Next() {
		var column string
		if err := pkRows.Scan(&column); err != nil {
			return TableSchema{}, fmt.Errorf("scan primary key: %w", err)
		}
		table.PrimaryKeys = append(table.PrimaryKeys, column)
	}
	if err := pkRows.Err(); err != nil {
		return TableSchema{}, fmt.Errorf("iterate primary keys: %w", err)
	}

	fks, err := i.listForeignKeys(ctx, tableName)
	if err != nil {
		return TableSchema{}, err
	}
	table.ForeignKeys = fks
	return table, nil
}

var ErrTableNotFound = fmt.Errorf("table not found")

func (i *Inspector) listColumns(ctx context.Context, tableName string) ([]ColumnInfo, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT column_name, data_type, udt_name, character_maximum_length, is_nullable, column_default, ordinal_position
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`, tableName)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]ColumnInfo, 0)
	for rows.Next() {
		var column ColumnInfo
		var nullable string
		if err := rows.Scan(&column.Name, &column.DataType, &column.UDTName, &column.MaxLength, &nullable, &column.Default, &column.Position); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", tableName, err)
		}
		column.Nullable = strings.EqualFold(nullable, "YES")
		columns = append(columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", tableName, err)
	}
	return columns, nil
}

func (i *Inspector) listForeignKeys(ctx context.Context, tableName string) ([]ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT tc.constraint_name, kcu.column_name, ccu.table_name AS foreign_table_name, ccu.column_name AS foreign_column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.table_schema = 'public' AND tc.table_name = $1 AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY tc.constraint_name`, tableName)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys of %s: %w", tableName, err)
	}
	defer func() { _ = rows.Close() }()

	fks := make([]ForeignKey, 0)
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.ConstraintName, &fk.Column, &fk.ForeignTable, &fk.ForeignColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key of %s: %w", tableName, err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys of %s: %w", tableName, err)
	}
	return fks, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// DatabaseProvider renders DDL text by introspecting the live database.
type DatabaseProvider struct {
	Inspector *Inspector
}

func (p DatabaseProvider) Load(ctx context.Context) (Context, error) {
	if p.Inspector == nil {
		return Context{}, fmt.Errorf("inspector is required")
	}
	ddl, err := p.Inspector.RenderDDL(ctx)
	if err != nil {
		return Context{}, err
	}
	return NewContext(ddl, "database", time.Now()), nil
}

// RenderDDL reconstructs a CREATE TABLE script for every public table,
// followed by primary keys, foreign keys and non-PK indexes. The output is
// prompt context for the generator, not a runnable restore script.
func (i *Inspector) RenderDDL(ctx context.Context) (string, error) {
	names, err := i.ListTableNames(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no public tables found")
	}

	var b strings.Builder
	b.WriteString("-- DVD Rental Database DDL\n")
	b.WriteString("-- Generated from the PostgreSQL catalog\n\n")

	for _, name := range names {
		columns, err := i.listColumns(ctx, name)
		if err != nil {
			return "", err
		}
		b.WriteString(fmt.Sprintf("-- Table: %s\n", name))
		b.WriteString(fmt.Sprintf("CREATE TABLE %s (\n", name))
		defs := make([]string, 0, len(columns))
		for _, column := range columns {
			defs = append(defs, "    "+renderColumn(column))
		}
		b.WriteString(strings.Join(defs, ",\n"))
		b.WriteString("\n);\n\n")
	}

	if err := i.renderPrimaryKeys(ctx, &b); err != nil {
		return "", err
	}
	if err := i.renderForeignKeys(ctx, &b); err != nil {
		return "", err
	}
	if err := i.renderIndexes(ctx, &b); err != nil {
		return "", err
	}

	return b.String(), nil
}

func renderColumn(column ColumnInfo) string {
	def := column.Name + " "

	switch column.DataType {
	case "character varying":
		if column.MaxLength != nil {
			def += fmt.Sprintf("VARCHAR(%d)", *column.MaxLength)
		} else {
			def += "VARCHAR"
		}
	case "character":
		if column.MaxLength != nil {
			def += fmt.Sprintf("CHAR(%d)", *column.MaxLength)
		} else {
			def += "CHAR"
		}
	case "timestamp without time zone":
		def += "TIMESTAMP"
	case "timestamp with time zone":
		def += "TIMESTAMPTZ"
	case "USER-DEFINED":
		def += strings.ToUpper(column.UDTName)
	default:
		def += strings.ToUpper(column.DataType)
	}

	if !column.Nullable {
		def += " NOT NULL"
	}
	if column.Default != nil {
		if strings.Contains(*column.Default, "nextval") {
			def += " SERIAL"
		} else {
			def += " DEFAULT " + *column.Default
		}
	}
	return def
}

func (i *Inspector) renderPrimaryKeys(ctx context.Context, b *strings.Builder) error {
	rows, err := i.db.QueryContext(ctx, `
SELECT tc.table_name, string_agg(kcu.column_name, ', ' ORDER BY kcu.ordinal_position) AS columns
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'
GROUP BY tc.table_name
ORDER BY tc.table_name`)
	if err != nil {
		return fmt.Errorf("list primary keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	b.WriteString("-- Primary Keys\n")
	for rows.Next() {
		var table, columns string
		if err := rows.Scan(&table, &columns); err != nil {
			return fmt.Errorf("scan primary key row: %w", err)
		}
		b.WriteString(fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s);\n", table, columns))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate primary key rows: %w", err)
	}
	b.WriteString("\n")
	return nil
}

func (i *Inspector) renderForeignKeys(ctx context.Context, b *strings.Builder) error {
	rows, err := i.db.QueryContext(ctx, `
SELECT tc.table_name, tc.constraint_name, kcu.column_name, ccu.table_name AS foreign_table_name, ccu.column_name AS foreign_column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'
ORDER BY tc.table_name, tc.constraint_name`)
	if err != nil {
		return fmt.Errorf("list foreign keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	b.WriteString("-- Foreign Keys\n")
	for rows.Next() {
		var table, constraint, column, foreignTable, foreignColumn string
		if err := rows.Scan(&table, &constraint, &column, &foreignTable, &foreignColumn); err != nil {
			return fmt.Errorf("scan foreign key row: %w", err)
		}
		b.WriteString(fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s);\n",
			table, constraint, column, foreignTable, foreignColumn))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate foreign key rows: %w", err)
	}
	b.WriteString("\n")
	return nil
}

func (i *Inspector) renderIndexes(ctx context.Context, b *strings.Builder) error {
	rows, err := i.db.QueryContext(ctx, `
SELECT indexdef
FROM pg_indexes
WHERE schemaname = 'public' AND indexname NOT LIKE '%_pkey'
ORDER BY tablename, indexname`)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	b.WriteString("-- Indexes\n")
	for rows.Next() {
		var indexDef string
		if err := rows.Scan(&indexDef); err != nil {
			return fmt.Errorf("scan index row: %w", err)
		}
		b.WriteString(indexDef + ";\n")
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate index rows: %w", err)
	}
	return nil
}
