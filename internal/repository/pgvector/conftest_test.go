package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePool records statements and replays canned rows.
type fakePool struct {
	execs    []string
	execArgs [][]any
	execTag  string
	execErr  error

	queries []string
	rows    [][]any
	queryFn func(sql string, args []any) ([][]any, error)

	batches  []*pgx.Batch
	batchErr error
	pingErr  error
}

func (p *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execs = append(p.execs, sql)
	p.execArgs = append(p.execArgs, args)
	if p.execErr != nil {
		return pgconn.CommandTag{}, p.execErr
	}
	return pgconn.NewCommandTag(p.execTag), nil
}

func (p *fakePool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.queries = append(p.queries, sql)
	data := p.rows
	if p.queryFn != nil {
		var err error
		if data, err = p.queryFn(sql, args); err != nil {
			return nil, err
		}
	}
	return &fakeRows{data: data, pos: -1}, nil
}

func (p *fakePool) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	p.batches = append(p.batches, b)
	return &fakeBatchResults{err: p.batchErr}
}

func (p *fakePool) Ping(context.Context) error { return p.pingErr }

type fakeBatchResults struct{ err error }

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), b.err
}
func (b *fakeBatchResults) Query() (pgx.Rows, error) { return nil, b.err }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (b *fakeBatchResults) Close() error             { return nil }

// fakeRows scans string, int and float64 columns into matching pointers.
type fakeRows struct {
	data [][]any
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.pos], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos]
	if len(row) != len(dest) {
		return fmt.Errorf("scan: %d columns into %d targets", len(row), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *int:
			*p = row[i].(int)
		case *float64:
			*p = row[i].(float64)
		default:
			return fmt.Errorf("scan: unsupported target %T", d)
		}
	}
	return nil
}
