package sqlite

import (
	"fmt"

	"github.com/Masterminds/squirrel"
)

// sqlBuilder wraps squirrel to generate the snapshot table statements
type sqlBuilder struct {
	sq    squirrel.StatementBuilderType
	table string
}

func newSQLBuilder(table string) *sqlBuilder {
	return &sqlBuilder{
		sq:    squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		table: table,
	}
}

// createTable returns the DDL of the snapshot table
func (b *sqlBuilder) createTable() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    ticket INTEGER NOT NULL,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL
)`, b.table)
}

// upsert writes the body of one database
func (b *sqlBuilder) upsert(name string, ticket uint64, body []byte, updatedAt int64) (string, []interface{}, error) {
	return b.sq.Insert(b.table).
		Columns("name", "ticket", "body", "updated_at").
		Values(name, int64(ticket), string(body), updatedAt).
		Suffix("ON CONFLICT(name) DO UPDATE SET ticket = excluded.ticket, body = excluded.body, updated_at = excluded.updated_at").
		ToSql()
}

// selectBody reads the body of one database
func (b *sqlBuilder) selectBody(name string) (string, []interface{}, error) {
	return b.sq.Select("body").From(b.table).Where(squirrel.Eq{"name": name}).ToSql()
}

// deleteRow removes one database
func (b *sqlBuilder) deleteRow(name string) (string, []interface{}, error) {
	return b.sq.Delete(b.table).Where(squirrel.Eq{"name": name}).ToSql()
}

// selectNames lists the stored databases
func (b *sqlBuilder) selectNames() (string, []interface{}, error) {
	return b.sq.Select("name").From(b.table).OrderBy("name").ToSql()
}
