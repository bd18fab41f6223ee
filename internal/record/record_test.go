package record

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInferSchema_PromotesMixedNumbers(t *testing.T) {
	rows := [][]any{
		{1, 2.5, "a", true, nil},
		{int64(3), 4, "b", false, nil},
		{uint8(5), float32(0.5), "c", true, nil},
	}

	s, err := InferSchema([]string{"i", "f", "s", "b", "n"}, rows)
	require.NoError(t, err)

	require.Equal(t, ColInt64, s.Cols[0].Type)
	require.Equal(t, ColFloat64, s.Cols[1].Type)
	require.Equal(t, ColText, s.Cols[2].Type)
	require.Equal(t, ColBool, s.Cols[3].Type)
	require.Equal(t, ColAny, s.Cols[4].Type)
	require.True(t, s.Cols[4].Nullable)
	require.False(t, s.Cols[0].Nullable)

	// ints in a float column are promoted in place
	require.Equal(t, float64(4), rows[1][1])
	require.Equal(t, int64(5), rows[2][0])
}

func TestInferSchema_Errors(t *testing.T) {
	_, err := InferSchema([]string{"a", "a"}, nil)
	require.ErrorIs(t, err, ErrBadColumnName)

	_, err = InferSchema([]string{"a", "b"}, [][]any{{1}})
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = InferSchema([]string{"a"}, [][]any{{struct{}{}}})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestInferType_MixedIsAny(t *testing.T) {
	typ, nullable := InferType([]any{int64(1), "x"})
	require.Equal(t, ColAny, typ)
	require.False(t, nullable)

	typ, nullable = InferType([]any{[]float64{1}, nil})
	require.Equal(t, ColArray, typ)
	require.True(t, nullable)
}

func TestInferType_Time(t *testing.T) {
	when := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	typ, nullable := InferType([]any{when, nil})
	require.Equal(t, ColTime, typ)
	require.True(t, nullable)

	type event struct {
		At time.Time `rec:"at"`
	}
	ra, err := FromStructs([]event{{At: when}})
	require.NoError(t, err)
	require.Equal(t, ColTime, ra.Schema.Cols[0].Type)
}

func TestSQLType(t *testing.T) {
	require.Equal(t, "INTEGER", ColInt64.SQLType())
	require.Equal(t, "REAL", ColFloat64.SQLType())
	require.Equal(t, "BOOLEAN", ColBool.SQLType())
	require.Equal(t, "TEXT", ColText.SQLType())
	require.Equal(t, "BLOB", ColBytes.SQLType())
	require.Equal(t, "ARRAY", ColArray.SQLType())
	require.Equal(t, "TIMESTAMP", ColTime.SQLType())
	require.Equal(t, "", ColAny.SQLType())
}

func TestRecArray_Accessors(t *testing.T) {
	ra, err := NewRecArray([]string{"name", "age", "score"}, [][]any{
		{"einstein", 42, 1.5},
		{"dirac", 31, 2},
	})
	require.NoError(t, err)
	require.Equal(t, 2, ra.Len())
	require.Equal(t, []string{"name", "age", "score"}, ra.Names())

	v, err := ra.Value(1, "name")
	require.NoError(t, err)
	require.Equal(t, "dirac", v)

	ages, err := ra.Int64s("age")
	require.NoError(t, err)
	require.Equal(t, []int64{42, 31}, ages)

	scores, err := ra.Float64s("score")
	require.NoError(t, err)
	require.Equal(t, []float64{1.5, 2}, scores)

	names, err := ra.Strings("name")
	require.NoError(t, err)
	require.Equal(t, []string{"einstein", "dirac"}, names)

	_, err = ra.Column("missing")
	require.ErrorIs(t, err, ErrNoSuchColumn)

	_, err = ra.Float64s("name")
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = ra.Value(5, "name")
	require.Error(t, err)
}

type laureate struct {
	Name  string  `rec:"name"`
	Age   int     `rec:"age"`
	Year  int64   `rec:"year"`
	Prize float64 `rec:"prize"`
	Note  *string `rec:"note"`
	skip  int
	Tmp   int `rec:"-"`
}

func TestFromStructs_AndDecode(t *testing.T) {
	note := "photoelectric"
	in := []laureate{
		{Name: "A. Einstein", Age: 42, Year: 1921, Prize: 1, Note: &note},
		{Name: "P. Dirac", Age: 31, Year: 1933, Prize: 0.5},
	}

	ra, err := FromStructs(in)
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age", "year", "prize", "note"}, ra.Names())
	require.Equal(t, ColInt64, ra.Schema.Cols[1].Type)
	require.Equal(t, ColFloat64, ra.Schema.Cols[3].Type)
	require.True(t, ra.Schema.Cols[4].Nullable)
	require.Equal(t, "photoelectric", ra.Rows[0][4])
	require.Nil(t, ra.Rows[1][4])

	var out []laureate
	require.NoError(t, ra.Decode(&out))
	require.Len(t, out, 2)
	require.Equal(t, "P. Dirac", out[1].Name)
	require.Equal(t, 31, out[1].Age)
	require.Equal(t, int64(1933), out[1].Year)
	require.NotNil(t, out[0].Note)
	require.Equal(t, "photoelectric", *out[0].Note)
}

func TestFromStructs_Rejects(t *testing.T) {
	_, err := FromStructs(42)
	require.ErrorIs(t, err, ErrNotStructSlice)

	_, err = FromStructs([]int{1, 2})
	require.ErrorIs(t, err, ErrNotStructSlice)

	_, err = FromStructs([]*laureate{nil})
	require.Error(t, err)
}

func TestArrayCodec_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want any
	}{
		{"floats", []float64{1.5, math.Inf(1), -2}, []float64{1.5, math.Inf(1), -2}},
		{"ints", []int{1, -2, 3}, []int64{1, -2, 3}},
		{"strings", []string{"a", "", "héllo"}, []string{"a", "", "héllo"}},
		{"empty", []float64{}, []float64{}},
		{
			"tuple",
			[]any{[]float64{1, 2}, []float64{0, 0.5, 1}, nil, "x", 7, 2.5},
			[]any{[]float64{1, 2}, []float64{0, 0.5, 1}, nil, "x", int64(7), 2.5},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := EncodeArray(tc.in)
			require.NoError(t, err)
			require.True(t, IsArray(b))

			got, err := DecodeArray(b)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestArrayCodec_Corrupt(t *testing.T) {
	b, err := EncodeArray([]float64{1, 2, 3})
	require.NoError(t, err)

	_, err = DecodeArray(b[:len(b)-3])
	require.ErrorIs(t, err, ErrBadBuffer)

	_, err = DecodeArray([]byte("plain blob"))
	require.ErrorIs(t, err, ErrBadBuffer)

	_, err = DecodeArray(append(b, 0))
	require.ErrorIs(t, err, ErrBadBuffer)

	_, err = EncodeArray([]any{struct{}{}})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestBindValue(t *testing.T) {
	v, err := BindValue(int16(3))
	require.NoError(t, err)
	require.Equal(t, int64(3), v)

	v, err = BindValue([]float64{1})
	require.NoError(t, err)
	b, ok := v.([]byte)
	require.True(t, ok)
	require.True(t, IsArray(b))

	type celsius float64
	v, err = BindValue(celsius(21.5))
	require.NoError(t, err)
	require.Equal(t, 21.5, v)
}
