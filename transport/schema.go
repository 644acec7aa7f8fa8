package transport

import (
	"context"

	"github.com/outline-cli-ws/protocore/pg"
)

// SchemaExecutor is the schema-manager surface spec.md §4.6 names: a
// migration CLI composes execute/fetch_with_stmt/fetch_many_with_stmt/
// transaction to run versioned migrations, rollbacks, and seed files. The
// migration runner itself is the out-of-scope CLI named in spec.md §1;
// this type is the contract it would be built against.
type SchemaExecutor struct {
	conn *pg.Conn
}

// NewSchemaExecutor wraps an already-authenticated pg.Conn.
func NewSchemaExecutor(conn *pg.Conn) *SchemaExecutor {
	return &SchemaExecutor{conn: conn}
}

// Execute runs sql with no parameters and no result rows expected, such as
// DDL in a migration file.
func (s *SchemaExecutor) Execute(ctx context.Context, sql string) (pg.CommandResult, error) {
	return s.conn.SimpleQuery(ctx, sql, nil)
}

// FetchWithStmt runs sql through the extended-query/statement-cache path
// and returns every row.
func (s *SchemaExecutor) FetchWithStmt(ctx context.Context, sql string, params []pg.Param) (*pg.Rows, error) {
	return s.conn.ExecuteWithStmt(ctx, sql, params)
}

// FetchManyWithStmt runs the same sql once per entry in paramSets,
// returning one Rows per execution in order. A migration seed file uses
// this to insert a batch of rows through one prepared statement.
func (s *SchemaExecutor) FetchManyWithStmt(ctx context.Context, sql string, paramSets [][]pg.Param) ([]*pg.Rows, error) {
	results := make([]*pg.Rows, 0, len(paramSets))
	for _, params := range paramSets {
		rows, err := s.conn.ExecuteWithStmt(ctx, sql, params)
		if err != nil {
			return results, err
		}
		results = append(results, rows)
	}
	return results, nil
}

// Transaction runs fn between BEGIN and COMMIT, issuing ROLLBACK if fn
// returns an error or panics. A migration file's statements run inside one
// Transaction so a failed migration leaves no partial schema change.
func (s *SchemaExecutor) Transaction(ctx context.Context, fn func(*SchemaExecutor) error) (err error) {
	if _, err = s.conn.SimpleQuery(ctx, "BEGIN", nil); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_, _ = s.conn.SimpleQuery(ctx, "ROLLBACK", nil)
			panic(p)
		}
		if err != nil {
			_, _ = s.conn.SimpleQuery(ctx, "ROLLBACK", nil)
			return
		}
		_, err = s.conn.SimpleQuery(ctx, "COMMIT", nil)
	}()
	err = fn(s)
	return err
}
