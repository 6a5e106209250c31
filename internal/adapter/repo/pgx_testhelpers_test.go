package repo

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// valuesRow scans values positionally; nil leaves the destination untouched.
func valuesRow(values ...any) simpleRow {
	return simpleRow{scan: func(dest ...any) error { return assign(dest, values) }}
}

func errRow(err error) simpleRow {
	return simpleRow{scan: func(...any) error { return err }}
}

func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		target := reflect.ValueOf(dest[i]).Elem()
		value := reflect.ValueOf(v)
		if !value.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan: column %d: cannot assign %T to %s", i, v, target.Type())
		}
		target.Set(value)
	}
	return nil
}

type call struct {
	query string
	args  []any
}

type stubSQL struct {
	row   pgx.Row
	rows  pgx.Rows
	tag   pgconn.CommandTag
	err   error
	calls []call
}

func (s *stubSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, call{query, args})
	return s.tag, s.err
}

func (s *stubSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, call{query, args})
	if s.row == nil {
		return simpleRow{}
	}
	return s.row
}

func (s *stubSQL) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, call{query, args})
	if s.err != nil {
		return nil, s.err
	}
	if s.rows == nil {
		return nil, errors.New("no rows configured")
	}
	return s.rows, nil
}

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (testRowsBase) Conn() *pgx.Conn { return nil }

func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (testRowsBase) RawValues() [][]byte { return nil }

// sliceRows yields each entry of data as one row.
type sliceRows struct {
	testRowsBase
	data [][]any
	pos  int
	err  error
}

func (r *sliceRows) Close() {}

func (r *sliceRows) Err() error { return r.err }

func (r *sliceRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *sliceRows) Scan(dest ...any) error {
	return assign(dest, r.data[r.pos-1])
}
