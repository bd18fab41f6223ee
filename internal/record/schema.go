package record

import (
	"errors"
	"fmt"
)

var (
	ErrSchemaMismatch = errors.New("record: schema/values mismatch")
	ErrNoSuchColumn   = errors.New("record: no such column")
	ErrBadColumnName  = errors.New("record: bad column name")
)

type ColumnType uint8

const (
	ColAny ColumnType = iota // mixed or unknown values; no SQL affinity
	ColInt64
	ColFloat64
	ColBool
	ColText  // UTF-8
	ColBytes // opaque bytes
	ColArray // vector/tuple values stored with the array codec
	ColTime
)

// SQLType is the declared SQLite column type used when a table is created.
// BOOLEAN makes the driver hand integers back as bool for stored columns,
// TIMESTAMP parses stored text back into time.Time.
func (t ColumnType) SQLType() string {
	switch t {
	case ColInt64:
		return "INTEGER"
	case ColFloat64:
		return "REAL"
	case ColBool:
		return "BOOLEAN"
	case ColText:
		return "TEXT"
	case ColBytes:
		return "BLOB"
	case ColArray:
		return "ARRAY"
	case ColTime:
		return "TIMESTAMP"
	default:
		return ""
	}
}

func (t ColumnType) String() string {
	switch t {
	case ColInt64:
		return "int64"
	case ColFloat64:
		return "float64"
	case ColBool:
		return "bool"
	case ColText:
		return "text"
	case ColBytes:
		return "bytes"
	case ColArray:
		return "array"
	case ColTime:
		return "time"
	default:
		return "any"
	}
}

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

type Schema struct {
	Cols []Column
}

func (s Schema) NumCols() int { return len(s.Cols) }

func (s Schema) Names() []string {
	out := make([]string, len(s.Cols))
	for i, c := range s.Cols {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column or -1.
func (s Schema) Index(name string) int {
	for i, c := range s.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func validateNames(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: no columns", ErrBadColumnName)
	}
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		if n == "" {
			return fmt.Errorf("%w: column %d is empty", ErrBadColumnName, i)
		}
		if _, dup := seen[n]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrBadColumnName, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}
