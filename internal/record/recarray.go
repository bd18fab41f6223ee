package record

import (
	"fmt"
)

// RecArray is a table-like record array: named, typed columns and rows.
// Every row holds exactly Schema.NumCols() normalized values.
type RecArray struct {
	Schema Schema
	Rows   [][]any
}

// NewRecArray builds a RecArray from column names and rows, inferring the
// schema. Rows are normalized in place.
func NewRecArray(names []string, rows [][]any) (*RecArray, error) {
	s, err := InferSchema(names, rows)
	if err != nil {
		return nil, err
	}
	return &RecArray{Schema: s, Rows: rows}, nil
}

// Empty returns a RecArray with columns but no rows.
func Empty(names []string) *RecArray {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: ColAny, Nullable: true}
	}
	return &RecArray{Schema: Schema{Cols: cols}}
}

func (ra *RecArray) Len() int {
	if ra == nil {
		return 0
	}
	return len(ra.Rows)
}

func (ra *RecArray) Names() []string { return ra.Schema.Names() }

// Row returns the i-th record.
func (ra *RecArray) Row(i int) []any { return ra.Rows[i] }

// Value returns a single field of the i-th record.
func (ra *RecArray) Value(i int, name string) (any, error) {
	c := ra.Schema.Index(name)
	if c < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchColumn, name)
	}
	if i < 0 || i >= len(ra.Rows) {
		return nil, fmt.Errorf("record: row %d out of range [0,%d)", i, len(ra.Rows))
	}
	return ra.Rows[i][c], nil
}

// Column returns all values of the named column.
func (ra *RecArray) Column(name string) ([]any, error) {
	c := ra.Schema.Index(name)
	if c < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchColumn, name)
	}
	out := make([]any, len(ra.Rows))
	for i, row := range ra.Rows {
		out[i] = row[c]
	}
	return out, nil
}

// Float64s returns a numeric column as float64. A NULL or non-numeric value
// is an error.
func (ra *RecArray) Float64s(name string) ([]float64, error) {
	vals, err := ra.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case float64:
			out[i] = x
		case int64:
			out[i] = float64(x)
		case bool:
			if x {
				out[i] = 1
			}
		default:
			return nil, fmt.Errorf("%w: column %q row %d is %T, not numeric",
				ErrSchemaMismatch, name, i, v)
		}
	}
	return out, nil
}

func (ra *RecArray) Int64s(name string) ([]int64, error) {
	vals, err := ra.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(vals))
	for i, v := range vals {
		switch x := v.(type) {
		case int64:
			out[i] = x
		case bool:
			if x {
				out[i] = 1
			}
		default:
			return nil, fmt.Errorf("%w: column %q row %d is %T, not an integer",
				ErrSchemaMismatch, name, i, v)
		}
	}
	return out, nil
}

// Strings formats every value of a column; NULL becomes "".
func (ra *RecArray) Strings(name string) ([]string, error) {
	vals, err := ra.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = FormatValue(v, "")
	}
	return out, nil
}

// Records returns the rows as plain tuples (shared, not copied).
func (ra *RecArray) Records() [][]any { return ra.Rows }

// FormatValue renders v for text output; nil becomes null.
func FormatValue(v any, null string) string {
	switch x := v.(type) {
	case nil:
		return null
	case string:
		return x
	case []byte:
		return fmt.Sprintf("%x", x)
	default:
		return fmt.Sprint(x)
	}
}
