package recsqlwire

import (
	"fmt"
	"math"

	"github.com/tuannm99/recsql/internal/record"
)

type Op string

const (
	OpLoad   Op = "load"   // load Path into the session, optionally as Table
	OpQuery  Op = "query"  // run SQL against Table
	OpTables Op = "tables" // list loaded tables
	OpDrop   Op = "drop"   // close Table
)

type Request struct {
	ID     uint64 `json:"id"`
	Op     Op     `json:"op"`
	Table  string `json:"table,omitempty"`
	SQL    string `json:"sql,omitempty"`
	Params []any  `json:"params,omitempty"`
	Path   string `json:"path,omitempty"`
}

type Response struct {
	ID     uint64  `json:"id"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Result carries rows for queries and table names for load/tables.
type Result struct {
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`
	Tables  []string `json:"tables,omitempty"`
}

// RecArray converts the rows back into a record array. JSON numbers come
// back as float64.
func (r *Result) RecArray() (*record.RecArray, error) {
	if len(r.Columns) == 0 {
		return nil, fmt.Errorf("recsqlwire: result has no columns")
	}
	if len(r.Rows) == 0 {
		return record.Empty(r.Columns), nil
	}
	return record.NewRecArray(r.Columns, r.Rows)
}

// FromRecArray builds a wire result. Values JSON cannot carry (NaN, ±Inf)
// become null.
func FromRecArray(ra *record.RecArray) *Result {
	res := &Result{Columns: ra.Names(), Rows: make([][]any, len(ra.Rows))}
	for i, row := range ra.Rows {
		out := make([]any, len(row))
		for c, v := range row {
			out[c] = wireValue(v)
		}
		res.Rows[i] = out
	}
	return res
}

func wireValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case []float64:
		out := make([]any, len(x))
		for i, f := range x {
			out[i] = wireValue(f)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = wireValue(e)
		}
		return out
	}
	return v
}
