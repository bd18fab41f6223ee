package record

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// TagName is the struct tag that names a column: `rec:"name"`, `rec:"-"`.
const TagName = "rec"

var ErrNotStructSlice = errors.New("record: want a slice of structs")

var timeType = reflect.TypeOf(time.Time{})

type structField struct {
	index []int
	col   Column
}

// FromStructs builds a RecArray from a slice (or array) of structs or
// struct pointers. Field order is column order.
func FromStructs(v any) (*RecArray, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: got %T", ErrNotStructSlice, v)
	}
	et := rv.Type().Elem()
	byPtr := et.Kind() == reflect.Pointer
	if byPtr {
		et = et.Elem()
	}
	if et.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: element type %s", ErrNotStructSlice, et)
	}

	fields := structFields(et)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s has no exported fields", ErrNotStructSlice, et)
	}

	s := Schema{Cols: make([]Column, len(fields))}
	for i, f := range fields {
		s.Cols[i] = f.col
	}
	if err := validateNames(s.Names()); err != nil {
		return nil, err
	}

	rows := make([][]any, rv.Len())
	for i := range rows {
		ev := rv.Index(i)
		if byPtr {
			if ev.IsNil() {
				return nil, fmt.Errorf("record: element %d is a nil pointer", i)
			}
			ev = ev.Elem()
		}
		row := make([]any, len(fields))
		for c, f := range fields {
			nv, err := NormalizeValue(ev.FieldByIndex(f.index).Interface())
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, f.col.Name, err)
			}
			if nv == nil {
				s.Cols[c].Nullable = true
			}
			if n, ok := nv.(int64); ok && f.col.Type == ColFloat64 {
				nv = float64(n)
			}
			row[c] = nv
		}
		rows[i] = row
	}
	return &RecArray{Schema: s, Rows: rows}, nil
}

func structFields(t reflect.Type) []structField {
	var out []structField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup(TagName); ok {
			tag = strings.Split(tag, ",")[0]
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		typ, nullable := fieldType(f.Type)
		out = append(out, structField{
			index: f.Index,
			col:   Column{Name: name, Type: typ, Nullable: nullable},
		})
	}
	return out
}

func fieldType(t reflect.Type) (ColumnType, bool) {
	nullable := false
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		nullable = true
	}
	if t == timeType {
		return ColTime, nullable
	}
	switch t.Kind() {
	case reflect.Bool:
		return ColBool, nullable
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return ColInt64, nullable
	case reflect.Uint, reflect.Uint64, reflect.Float32, reflect.Float64:
		return ColFloat64, nullable
	case reflect.String:
		return ColText, nullable
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return ColBytes, true
		}
		return ColArray, true
	case reflect.Interface:
		return ColAny, true
	}
	return ColAny, nullable
}

// Decode copies the rows into dst, a pointer to a slice of structs, matching
// columns to fields by `rec` tag or (case-insensitive) field name.
func (ra *RecArray) Decode(dst any) error {
	names := ra.Names()
	maps := make([]map[string]any, len(ra.Rows))
	for i, row := range ra.Rows {
		m := make(map[string]any, len(names))
		for c, n := range names {
			m[n] = row[c]
		}
		maps[i] = m
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          TagName,
		WeaklyTypedInput: true,
		Result:           dst,
	})
	if err != nil {
		return fmt.Errorf("record: decoder: %w", err)
	}
	if err := dec.Decode(maps); err != nil {
		return fmt.Errorf("record: decode: %w", err)
	}
	return nil
}
