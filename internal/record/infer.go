package record

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// NormalizeValue maps a Go value onto the small set of types a RecArray
// holds: nil, int64, float64, bool, string, []byte, time.Time and array
// slices ([]float64, []int64, []string, []any).
func NormalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, int64, float64, bool, string, []byte, time.Time,
		[]float64, []int64, []string, []any:
		return x, nil
	case float32:
		return float64(x), nil
	case []float32, []int, []int32:
		// canonicalize through the codec's widening rules
		return widenSlice(x), nil
	}
	if n, ok := asInt64(v); ok {
		return n, nil
	}
	if u, ok := v.(uint64); ok {
		// does not fit int64 (asInt64 accepted everything else)
		return float64(u), nil
	}
	if u, ok := v.(uint); ok {
		return float64(u), nil
	}

	// named types such as `type Celsius float64`
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return float64(u), nil
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return NormalizeValue(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func widenSlice(v any) any {
	switch x := v.(type) {
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out
	case []int:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out
	case []int32:
		out := make([]int64, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out
	}
	return v
}

// BindValue prepares a normalized value for a SQLite statement parameter:
// array slices are encoded with the array codec.
func BindValue(v any) (any, error) {
	nv, err := NormalizeValue(v)
	if err != nil {
		return nil, err
	}
	if IsArrayValue(nv) {
		return EncodeArray(nv)
	}
	return nv, nil
}

// InferType decides the column type of a sequence of normalized values.
// nil values only mark the column nullable.
func InferType(values []any) (ColumnType, bool) {
	var (
		typ      ColumnType
		seen     bool
		nullable bool
	)
	for _, v := range values {
		if v == nil {
			nullable = true
			continue
		}
		t := typeOf(v)
		if !seen {
			typ, seen = t, true
			continue
		}
		typ = unify(typ, t)
	}
	if !seen {
		return ColAny, true
	}
	return typ, nullable
}

func typeOf(v any) ColumnType {
	switch v.(type) {
	case int64:
		return ColInt64
	case float64:
		return ColFloat64
	case bool:
		return ColBool
	case string:
		return ColText
	case []byte:
		return ColBytes
	case []float64, []int64, []string, []any:
		return ColArray
	case time.Time:
		return ColTime
	}
	return ColAny
}

func unify(a, b ColumnType) ColumnType {
	switch {
	case a == b:
		return a
	case (a == ColInt64 && b == ColFloat64) || (a == ColFloat64 && b == ColInt64):
		return ColFloat64
	default:
		return ColAny
	}
}

// InferSchema normalizes rows in place and returns their schema.
func InferSchema(names []string, rows [][]any) (Schema, error) {
	if err := validateNames(names); err != nil {
		return Schema{}, err
	}
	nc := len(names)
	for r, row := range rows {
		if len(row) != nc {
			return Schema{}, fmt.Errorf("%w: row %d has %d values, want %d",
				ErrSchemaMismatch, r, len(row), nc)
		}
		for c, v := range row {
			nv, err := NormalizeValue(v)
			if err != nil {
				return Schema{}, fmt.Errorf("row %d column %q: %w", r, names[c], err)
			}
			row[c] = nv
		}
	}

	s := Schema{Cols: make([]Column, nc)}
	col := make([]any, len(rows))
	for c, name := range names {
		for r, row := range rows {
			col[r] = row[c]
		}
		typ, nullable := InferType(col)
		s.Cols[c] = Column{Name: name, Type: typ, Nullable: nullable}

		if typ == ColFloat64 {
			for _, row := range rows {
				if n, ok := row[c].(int64); ok {
					row[c] = float64(n)
				}
			}
		}
	}
	return s, nil
}

// ---- small helpers to accept multiple numeric types ----
func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), true
		}
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
