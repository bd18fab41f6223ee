package engine

import (
	"strconv"
	"strings"

	"github.com/tuannm99/recsql/internal/record"
)

// materialize turns a query result into a RecArray. Unless raw, TEXT
// columns that came back as bytes become strings and array blobs in ARRAY
// or untyped columns are decoded.
func materialize(res *Result, raw bool) (*record.RecArray, error) {
	names := uniqueNames(res.Columns)
	if !raw {
		for _, row := range res.Rows {
			for i, v := range row {
				row[i] = decodeValue(v, res.DeclTypes[i])
			}
		}
	}
	if len(res.Rows) == 0 {
		return record.Empty(names), nil
	}
	return record.NewRecArray(names, res.Rows)
}

func decodeValue(v any, declType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if textAffinity(declType) {
		return string(b)
	}
	// Only ARRAY columns and untyped expressions carry array blobs; a
	// BLOB value starting with the array magic stays bytes.
	if (declType == "" || declType == record.ColArray.SQLType()) && record.IsArray(b) {
		if arr, err := record.DecodeArray(b); err == nil {
			return arr
		}
	}
	return b
}

// textAffinity follows SQLite's rule: a declared type containing CHAR,
// CLOB or TEXT has TEXT affinity.
func textAffinity(declType string) bool {
	return strings.Contains(declType, "CHAR") ||
		strings.Contains(declType, "CLOB") ||
		strings.Contains(declType, "TEXT")
}

func textValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// uniqueNames suffixes repeated or empty column names (SELECT a, a ...).
func uniqueNames(cols []string) []string {
	out := make([]string, len(cols))
	used := make(map[string]bool, len(cols))
	for i, c := range cols {
		if c == "" {
			c = "col" + strconv.Itoa(i)
		}
		name := c
		for n := 1; used[name]; n++ {
			name = c + "_" + strconv.Itoa(n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}
