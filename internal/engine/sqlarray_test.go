package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/recsql/internal/record"
	"github.com/tuannm99/recsql/internal/sqlfunc"
	"github.com/tuannm99/recsql/internal/tables"
)

// grid returns 25 rows of (id, x, y, label) with x = id/2 and y = id^2.
func grid(t *testing.T) *record.RecArray {
	t.Helper()
	rows := make([][]any, 25)
	for i := range rows {
		rows[i] = []any{i, float64(i) * 0.5, float64(i * i), fmt.Sprintf("p%02d", i)}
	}
	ra, err := record.NewRecArray([]string{"id", "x", "y", "label"}, rows)
	require.NoError(t, err)
	return ra
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(typ EventType, cached bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ && e.Cached == cached {
			n++
		}
	}
	return n
}

func newGrid(t *testing.T, opts ...Option) *SQLArray {
	t.Helper()
	a, err := FromRecArray(context.Background(), "grid", grid(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestFilterAndSelection(t *testing.T) {
	ctx := context.Background()
	a := newGrid(t)

	n, err := a.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 25, n)

	ra, err := a.SQL(ctx, "SELECT * FROM __self__ WHERE x > 5 AND y < 144")
	require.NoError(t, err)
	require.Equal(t, 1, ra.Len())
	require.Equal(t, []string{"id", "x", "y", "label"}, ra.Names())
	label, err := ra.Value(0, "label")
	require.NoError(t, err)
	require.Equal(t, "p11", label)

	sel, err := a.Selection(ctx, "x > 5 AND y < 144")
	require.NoError(t, err)
	defer sel.Close(ctx)

	require.True(t, strings.HasPrefix(sel.Name, "selection_"))
	require.Equal(t, a.Columns, sel.Columns)
	n, err = sel.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// the selection is itself queryable
	ra, err = sel.Select(ctx, "id", nil)
	require.NoError(t, err)
	ids, err := ra.Int64s("id")
	require.NoError(t, err)
	require.Equal(t, []int64{11}, ids)
}

func TestSchemaTypes(t *testing.T) {
	ctx := context.Background()
	a := newGrid(t)

	res, err := a.Conn().Query(ctx, "SELECT * FROM grid LIMIT 1")
	require.NoError(t, err)
	require.Equal(t, []string{"INTEGER", "REAL", "REAL", "TEXT"}, res.DeclTypes)

	ra, err := a.RecArray(ctx)
	require.NoError(t, err)
	require.Equal(t, record.ColInt64, ra.Schema.Cols[0].Type)
	require.Equal(t, record.ColFloat64, ra.Schema.Cols[1].Type)
	require.Equal(t, record.ColText, ra.Schema.Cols[3].Type)
}

func TestSQL_Cache(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	a := newGrid(t, WithObserver(rec))

	const q = "SELECT id FROM __self__ WHERE id < 3"
	first, err := a.SQL(ctx, q)
	require.NoError(t, err)
	second, err := a.SQL(ctx, q)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, rec.count(EventQuery, true))

	// a modification anywhere on the connection invalidates the cache
	res, err := a.SQL(ctx, "INSERT INTO __self__ (id, x, y, label) VALUES (-1, 0, 0, 'neg')")
	require.NoError(t, err)
	require.Nil(t, res)
	third, err := a.SQL(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 4, third.Len())
	require.Equal(t, 1, rec.count(EventQuery, true))

	_, err = a.SQL(ctx, q, NoCache())
	require.NoError(t, err)
	_, err = a.SQL(ctx, "SELECT id FROM __self__ WHERE id < ?", Params(3))
	require.NoError(t, err)
	_, err = a.SQL(ctx, "SELECT id FROM __self__ WHERE id < ?", Params(3))
	require.NoError(t, err)
	require.Equal(t, 1, rec.count(EventQuery, true))

	empty, err := a.SQL(ctx, "SELECT id FROM __self__ WHERE id > 1000")
	require.NoError(t, err)
	require.Equal(t, 0, empty.Len())
	require.Equal(t, []string{"id"}, empty.Names())
	_, err = a.SQL(ctx, "SELECT id FROM __self__ WHERE id > 1000")
	require.NoError(t, err)
	require.Equal(t, 1, rec.count(EventQuery, true))

	require.Equal(t, 1, rec.count(EventExec, false))
	require.Equal(t, 1, rec.count(EventLoad, false))
}

func TestNames(t *testing.T) {
	ctx := context.Background()
	ra := grid(t)

	_, err := FromRecArray(ctx, "bad name", ra)
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = FromRecArray(ctx, MasterTable, ra)
	require.ErrorIs(t, err, ErrReservedName)
	_, err = FromRecArray(ctx, TmpMergeTable, ra)
	require.ErrorIs(t, err, ErrReservedName)
	_, err = FromRecords(ctx, "t", nil, nil)
	require.ErrorIs(t, err, ErrNoColumns)
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	a := newGrid(t)

	_, err := Attach(ctx, "missing", WithConnection(a.Conn()))
	require.ErrorIs(t, err, ErrNoSuchTable)
	require.Contains(t, err.Error(), "grid")

	b, err := Attach(ctx, "grid", WithConnection(a.Conn()))
	require.NoError(t, err)
	require.Equal(t, a.Columns, b.Columns)

	count, err := a.ConnectionCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, int32(2), a.Conn().Refs())

	require.NoError(t, b.Close(ctx))
	require.NoError(t, b.Close(ctx))
	count, err = a.ConnectionCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// the table survives while another SQLArray uses it
	ok, err := a.HasTable(ctx, "grid")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = b.SQL(ctx, "SELECT 1")
	require.ErrorIs(t, err, ErrClosed)
}

func TestClose_LastReferenceClosesConn(t *testing.T) {
	ctx := context.Background()
	a, err := FromRecArray(ctx, "grid", grid(t))
	require.NoError(t, err)
	conn := a.Conn()

	require.NoError(t, a.Close(ctx))
	require.True(t, conn.isClosed())
	_, err = conn.Query(ctx, "SELECT 1")
	require.ErrorIs(t, err, ErrClosed)
}

func TestSelection_Options(t *testing.T) {
	ctx := context.Background()
	a := newGrid(t)

	_, err := a.Selection(ctx, "id < 3", SelectionName("grid"))
	require.ErrorIs(t, err, ErrSelfReference)

	small, err := a.Selection(ctx, "id < ?", SelectionName("small"), SelectionParams(3))
	require.NoError(t, err)
	defer small.Close(ctx)
	n, err := small.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// an existing table is reused and the query ignored
	again, err := a.Selection(ctx, "id < 10", SelectionName("small"))
	require.NoError(t, err)
	n, err = again.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.NoError(t, again.Close(ctx))

	forced, err := a.Selection(ctx, "id < 10", SelectionName("small"), Force())
	require.NoError(t, err)
	defer forced.Close(ctx)
	n, err = forced.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	// full queries and text after ';' is dropped
	full, err := a.Selection(ctx, "SELECT id, label FROM __self__ WHERE id >= 20; DROP TABLE grid")
	require.NoError(t, err)
	defer full.Close(ctx)
	require.Equal(t, []string{"id", "label"}, full.Columns)
	ok, err := a.HasTable(ctx, "grid")
	require.NoError(t, err)
	require.True(t, ok)

	tbls, err := a.Tables(ctx)
	require.NoError(t, err)
	require.Contains(t, tbls, "small")
	require.Contains(t, tbls, full.Name)
	require.NotContains(t, tbls, MasterTable)
}

func TestSelectionName_Deterministic(t *testing.T) {
	a := &SQLArray{Name: "grid"}
	q1 := a.selectionSQL("x > 1; junk")
	q2 := a.selectionSQL("x > 1")
	require.Equal(t, "SELECT * FROM grid WHERE x > 1", q1)
	require.Equal(t, selectionName(q1), selectionName(q2))
	require.Len(t, selectionName(q1), len("selection_")+32)
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	a, err := FromRecords(ctx, "m", []string{"k", "v"}, [][]any{{1, "a"}, {2, "b"}})
	require.NoError(t, err)
	defer a.Close(ctx)
	require.NoError(t, a.SQLIndex(ctx, "m_k", []string{"k"}, true))

	more, err := record.NewRecArray([]string{"v", "k"}, [][]any{{"c", 3}, {"d", 4}})
	require.NoError(t, err)
	n, err := a.Merge(ctx, more)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ok, err := a.HasTable(ctx, TmpMergeTable)
	require.NoError(t, err)
	require.False(t, ok)

	// the unique index aborts the whole merge
	dup, err := record.NewRecArray([]string{"k", "v"}, [][]any{{5, "e"}, {1, "x"}})
	require.NoError(t, err)
	_, err = a.Merge(ctx, dup)
	require.Error(t, err)
	l, err := a.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, l)

	wrong, err := record.NewRecArray([]string{"k"}, [][]any{{9}})
	require.NoError(t, err)
	_, err = a.Merge(ctx, wrong)
	require.ErrorIs(t, err, ErrMergeMismatch)

	count, err := a.ConnectionCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	other, err := FromRecords(ctx, "other", []string{"k", "v"}, [][]any{{7, "g"}, {8, "h"}}, WithConnection(a.Conn()))
	require.NoError(t, err)
	defer other.Close(ctx)
	n, err = a.MergeTable(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.ErrorIs(t, a.SQLIndex(ctx, "none", nil, false), ErrNoColumns)
}

func TestLimits(t *testing.T) {
	ctx := context.Background()
	a := newGrid(t)
	lo, hi, err := a.Limits(ctx, "y")
	require.NoError(t, err)
	require.Equal(t, 0.0, lo)
	require.Equal(t, 576.0, hi)
}

func TestArraysAndFunctions(t *testing.T) {
	ctx := context.Background()
	a, err := FromRecords(ctx, "vec", []string{"name", "coords"}, [][]any{
		{"a", []float64{1, 2, 3}},
		{"b", []float64{4, 5}},
	})
	require.NoError(t, err)
	defer a.Close(ctx)

	ra, err := a.SQL(ctx, "SELECT coords FROM __self__ WHERE name = 'b'")
	require.NoError(t, err)
	require.Equal(t, []float64{4, 5}, ra.Rows[0][0])

	raw, err := a.SQL(ctx, "SELECT coords FROM __self__ WHERE name = 'b'", AsRecords())
	require.NoError(t, err)
	require.IsType(t, []byte(nil), raw.Rows[0][0])

	g := newGrid(t, WithConnection(a.Conn()))
	ra, err = g.Select(ctx, "histogram(x, 4, 0, 12) AS h, sqrt(max(y)) AS r", nil)
	require.NoError(t, err)
	h, err := sqlfunc.DecodeHistogram(ra.Rows[0][0])
	require.NoError(t, err)
	require.Equal(t, []float64{6, 6, 6, 7}, h.Values)
	require.Equal(t, 24.0, ra.Rows[0][1])
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	a := newGrid(t)
	require.ErrorIs(t, a.Save(ctx, ""), ErrNoSavePath)

	path := filepath.Join(t.TempDir(), "grid.db")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
	require.NoError(t, a.Save(ctx, path))

	b, err := Attach(ctx, "grid", WithDBFile(path))
	require.NoError(t, err)
	defer b.Close(ctx)
	require.False(t, b.Conn().InMemory())
	n, err := b.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 25, n)
	require.NoError(t, b.Save(ctx, ""))
}

const stars = `
Table[stars]: bright stars
=========  =====
name       mag
=========  =====
Sirius     -1.46
Canopus    -0.74
Arcturus   -0.05
=========  =====
`

func TestFromReSTAndFile(t *testing.T) {
	ctx := context.Background()
	a, err := FromReST(ctx, stars)
	require.NoError(t, err)
	defer a.Close(ctx)
	require.Equal(t, "stars", a.Name)
	ra, err := a.Select(ctx, "name", []string{"WHERE mag < -0.5", "ORDER BY mag"})
	require.NoError(t, err)
	names, err := ra.Strings("name")
	require.NoError(t, err)
	require.Equal(t, []string{"Sirius", "Canopus"}, names)

	path := filepath.Join(t.TempDir(), "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,age\nann,31\nbob,42\n"), 0o644))
	b, err := FromFile(ctx, path, WithConnection(a.Conn()), WithConverter(tables.Options{Name: "people"}))
	require.NoError(t, err)
	defer b.Close(ctx)
	require.Equal(t, "people", b.Name)
	n, err := b.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

type planet struct {
	Name   string  `rec:"name"`
	Radius float64 `rec:"radius"`
	Moons  int     `rec:"moons"`
}

func TestFromStructsAndDecode(t *testing.T) {
	ctx := context.Background()
	a, err := FromStructs(ctx, "planets", []planet{
		{"Mercury", 2439.7, 0},
		{"Earth", 6371.0, 1},
		{"Mars", 3389.5, 2},
	})
	require.NoError(t, err)
	defer a.Close(ctx)

	ra, err := a.Select(ctx, "*", []string{"WHERE moons > 0", "ORDER BY name"})
	require.NoError(t, err)
	var out []planet
	require.NoError(t, ra.Decode(&out))
	require.Equal(t, []planet{{"Earth", 6371.0, 1}, {"Mars", 3389.5, 2}}, out)
}

func TestClassify(t *testing.T) {
	read := stmtKind{rows: true}
	require.Equal(t, read, classify("  select 1"))
	require.Equal(t, read, classify("WITH t AS (SELECT 1) SELECT * FROM t"))
	require.Equal(t, read, classify("(SELECT 1)"))
	require.Equal(t, read, classify("pragma table_info(x)"))
	require.Equal(t, read, classify("-- note\nSELECT 1"))
	require.Equal(t, read, classify("/* a */ /* b */\n VALUES (1)"))

	require.Equal(t, stmtKind{writes: true}, classify("INSERT INTO t VALUES (1)"))
	require.Equal(t, stmtKind{writes: true}, classify("CREATE TABLE t (x)"))
	require.Equal(t, stmtKind{writes: true}, classify("PRAGMA user_version = 3"))
	require.Equal(t, stmtKind{writes: true}, classify("SELECTED"))
	require.Equal(t, stmtKind{rows: true, writes: true}, classify("DELETE FROM t WHERE x < 1 RETURNING x"))
	require.Equal(t, stmtKind{rows: true, writes: true},
		classify("WITH d AS (SELECT 1 AS v) INSERT INTO t SELECT v FROM d RETURNING *"))
}

func TestSQL_CommentsAndReturning(t *testing.T) {
	ctx := context.Background()
	a := newGrid(t)

	ra, err := a.SQL(ctx, "-- small ids\nSELECT id FROM __self__ WHERE id < 2")
	require.NoError(t, err)
	require.Equal(t, 2, ra.Len())

	before, err := a.SQL(ctx, "SELECT id FROM __self__ WHERE id < 5")
	require.NoError(t, err)
	require.Equal(t, 5, before.Len())

	gone, err := a.SQL(ctx, "DELETE FROM __self__ WHERE id < 3 RETURNING id")
	require.NoError(t, err)
	ids, err := gone.Int64s("id")
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{0, 1, 2}, ids)

	after, err := a.SQL(ctx, "SELECT id FROM __self__ WHERE id < 5")
	require.NoError(t, err)
	require.Equal(t, 2, after.Len())
}

func TestUniqueNames(t *testing.T) {
	require.Equal(t, []string{"a", "a_1", "col2", "a_2"}, uniqueNames([]string{"a", "a", "", "a"}))
}

func TestSQL_CacheSharedConn(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	a := newGrid(t, WithObserver(rec))
	b, err := Attach(ctx, "grid", WithConnection(a.Conn()))
	require.NoError(t, err)
	defer b.Close(ctx)

	const q = "SELECT id FROM __self__ WHERE id < 100"
	first, err := a.SQL(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 25, first.Len())

	_, err = b.SQL(ctx, "DELETE FROM __self__ WHERE id < 20")
	require.NoError(t, err)

	second, err := a.SQL(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 5, second.Len())
	require.Equal(t, 0, rec.count(EventQuery, true))
}

func TestSQL_WriteDuringQueryIsNotCached(t *testing.T) {
	ctx := context.Background()
	const q = "SELECT id FROM __self__ WHERE id < 100"

	var (
		a    *SQLArray
		once sync.Once
	)
	a = newGrid(t, WithObserver(ObserverFunc(func(e Event) {
		if e.Type != EventQuery || e.Cached {
			return
		}
		once.Do(func() {
			_, err := a.Conn().Exec(ctx, "DELETE FROM grid WHERE id < 20")
			require.NoError(t, err)
		})
	})))

	first, err := a.SQL(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 25, first.Len())

	second, err := a.SQL(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 5, second.Len())
}

func TestClose_Concurrent(t *testing.T) {
	ctx := context.Background()
	a := newGrid(t)
	b, err := Attach(ctx, "grid", WithConnection(a.Conn()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Close(ctx)
		}()
	}
	wg.Wait()

	count, err := a.ConnectionCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, int32(1), a.Conn().Refs())
}

func TestSelection_KeepsDeclaredTypes(t *testing.T) {
	ctx := context.Background()
	when := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := FromRecords(ctx, "runs", []string{"id", "ok", "at", "v"}, [][]any{
		{1, true, when, []float64{1, 2}},
		{2, false, when.Add(time.Hour), []float64{3}},
	})
	require.NoError(t, err)
	defer a.Close(ctx)

	check := func(s *SQLArray) {
		t.Helper()
		ra, err := s.SQL(ctx, "SELECT ok, at, v FROM __self__ WHERE id = 1")
		require.NoError(t, err)
		require.Equal(t, true, ra.Rows[0][0])
		at, ok := ra.Rows[0][1].(time.Time)
		require.True(t, ok, "got %T", ra.Rows[0][1])
		require.True(t, when.Equal(at))
		require.Equal(t, []float64{1, 2}, ra.Rows[0][2])
	}
	check(a)

	sel, err := a.Selection(ctx, "id = 1")
	require.NoError(t, err)
	defer sel.Close(ctx)
	check(sel)

	res, err := a.Conn().Query(ctx, "SELECT * FROM "+sel.Name+" WHERE 0")
	require.NoError(t, err)
	require.Equal(t, []string{"INTEGER", "BOOLEAN", "TIMESTAMP", "ARRAY"}, res.DeclTypes)
}

func TestBlobWithArrayMagic(t *testing.T) {
	ctx := context.Background()
	blob, err := record.EncodeArray([]float64{1, 2})
	require.NoError(t, err)

	a, err := FromRecords(ctx, "blobs", []string{"b"}, [][]any{{blob}})
	require.NoError(t, err)
	defer a.Close(ctx)

	ra, err := a.SQL(ctx, "SELECT b FROM __self__")
	require.NoError(t, err)
	require.Equal(t, blob, ra.Rows[0][0])
}
