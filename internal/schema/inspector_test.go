package schema

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

const listTablesSQL = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`

const listColumnsSQL = `
SELECT column_name, data_type, udt_name, character_maximum_length, is_nullable, column_default, ordinal_position
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`

func TestListTables(t *testing.T) {
	db, mock := newSQLMock(t)
	inspector := NewInspector(db)

	mock.ExpectQuery(regexp.QuoteMeta(listTablesSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("actor"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "actor"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(200)))
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT COUNT(*)
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1`)).
		WithArgs("actor").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	tables, err := inspector.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("len(tables) = %d", len(tables))
	}
	if tables[0].TableName != "actor" || tables[0].RowCount != 200 || tables[0].ColumnCount != 4 {
		t.Fatalf("tables[0] = %+v", tables[0])
	}
	assertSQLMock(t, mock)
}

func TestTableSchemaNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	inspector := NewInspector(db)

	mock.ExpectQuery(regexp.QuoteMeta(listColumnsSQL)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "udt_name", "character_maximum_length", "is_nullable", "column_default", "ordinal_position"}))

	_, err := inspector.TableSchema(context.Background(), "missing")
	if !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("error = %v, want ErrTableNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestRenderDDL(t *testing.T) {
	db, mock := newSQLMock(t)
	inspector := NewInspector(db)

	mock.ExpectQuery(regexp.QuoteMeta(listTablesSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("actor"))

	maxLen := int64(45)
	serialDefault := "nextval('actor_actor_id_seq'::regclass)"
	nowDefault := "now()"
	mock.ExpectQuery(regexp.QuoteMeta(listColumnsSQL)).
		WithArgs("actor").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "udt_name", "character_maximum_length", "is_nullable", "column_default", "ordinal_position"}).
			AddRow("actor_id", "integer", "int4", nil, "NO", serialDefault, 1).
			AddRow("first_name", "character varying", "varchar", maxLen, "NO", nil, 2).
			AddRow("rating", "USER-DEFINED", "mpaa_rating", nil, "YES", nil, 3).
			AddRow("last_update", "timestamp without time zone", "timestamp", nil, "NO", nowDefault, 4))

	mock.ExpectQuery("PRIMARY KEY").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "columns"}).AddRow("actor", "actor_id"))
	mock.ExpectQuery("FOREIGN KEY").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "constraint_name", "column_name", "foreign_table_name", "foreign_column_name"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pg_indexes")).
		WillReturnRows(sqlmock.NewRows([]string{"indexdef"}).AddRow("CREATE INDEX idx_actor_last_name ON public.actor USING btree (last_name)"))

	ddl, err := inspector.RenderDDL(context.Background())
	if err != nil {
		t.Fatalf("RenderDDL() error = %v", err)
	}

	for _, want := range []string{
		"CREATE TABLE actor (",
		"actor_id INTEGER NOT NULL SERIAL",
		"first_name VARCHAR(45) NOT NULL",
		"rating MPAA_RATING",
		"last_update TIMESTAMP NOT NULL DEFAULT now()",
		"ALTER TABLE actor ADD PRIMARY KEY (actor_id);",
		"CREATE INDEX idx_actor_last_name",
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("DDL missing %q:\n%s", want, ddl)
		}
	}
	assertSQLMock(t, mock)
}

func TestDatabaseProviderLoadRequiresInspector(t *testing.T) {
	if _, err := (DatabaseProvider{}).Load(context.Background()); err == nil {
		t.Fatal("expected error without inspector")
	}
}
