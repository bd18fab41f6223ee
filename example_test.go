package recsql_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/recsql"
)

func gridRows() [][]any {
	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{i, float64(i) * 0.5, float64(i * i), fmt.Sprintf("p%02d", i)}
	}
	return rows
}

func Example() {
	ctx := context.Background()

	ra, err := recsql.NewRecArray([]string{"id", "x", "y", "label"}, gridRows())
	if err != nil {
		panic(err)
	}
	a, err := recsql.FromRecArray(ctx, "grid", ra)
	if err != nil {
		panic(err)
	}
	defer a.Close(ctx)

	res, err := a.SQL(ctx, "SELECT label, x, y FROM __self__ WHERE x > 5 AND y < 144")
	if err != nil {
		panic(err)
	}
	fmt.Println(res.Len(), res.Rows[0])

	sel, err := a.Selection(ctx, "x > 5 AND y < 144")
	if err != nil {
		panic(err)
	}
	defer sel.Close(ctx)
	n, err := sel.Len(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println(n)

	// Output:
	// 1 [p11 5.5 121]
	// 1
}

func ExampleHistogram() {
	ctx := context.Background()
	a, err := recsql.FromRecords(ctx, "grid", []string{"id", "x", "y", "label"}, gridRows())
	if err != nil {
		panic(err)
	}
	defer a.Close(ctx)

	res, err := a.SQL(ctx, "SELECT histogram(x, 4, 0, 12) AS h FROM __self__")
	if err != nil {
		panic(err)
	}
	h, err := recsql.Histogram(res.Rows[0][0])
	if err != nil {
		panic(err)
	}
	fmt.Println(h.Values, h.Edges)

	// Output:
	// [6 6 6 7] [0 3 6 9 12]
}

func TestFunctions(t *testing.T) {
	names := recsql.Functions()
	require.Contains(t, names, "sqrt")
	require.Contains(t, names, "histogram")
	require.Contains(t, names, "median")
}

func TestStructs(t *testing.T) {
	type star struct {
		Name string
		Mag  float64
	}
	ctx := context.Background()
	a, err := recsql.FromStructs(ctx, "stars", []star{{"Vega", 0.03}, {"Deneb", 1.25}})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close(ctx)) }()

	ra, err := a.SQL(ctx, "SELECT * FROM __self__ WHERE Mag < 1")
	require.NoError(t, err)
	var out []star
	require.NoError(t, ra.Decode(&out))
	require.Equal(t, []star{{"Vega", 0.03}}, out)

	_, err = recsql.FromRecords(ctx, "recsql_master", []string{"a"}, [][]any{{1}})
	require.ErrorIs(t, err, recsql.ErrReservedName)
}
