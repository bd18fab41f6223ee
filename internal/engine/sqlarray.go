// Package engine loads record arrays into SQLite tables and queries them.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/tuannm99/recsql/internal/cache"
	"github.com/tuannm99/recsql/internal/record"
	"github.com/tuannm99/recsql/internal/tables"
)

var (
	ErrInvalidName   = errors.New("recsql: invalid table name")
	ErrReservedName  = errors.New("recsql: reserved table name")
	ErrNoSuchTable   = errors.New("recsql: no such table")
	ErrSelfReference = errors.New("recsql: selection cannot replace its parent table")
	ErrClosed        = errors.New("recsql: sqlarray is closed")
	ErrNoColumns     = errors.New("recsql: no columns given")
	ErrMergeMismatch = errors.New("recsql: merge mismatch")
	ErrNoSavePath    = errors.New("recsql: in-memory database needs a path to save")
)

const (
	// MasterTable keeps per-database bookkeeping such as the connection
	// counter.
	MasterTable = "recsql_master"
	// TmpMergeTable is the temporary table Merge stages rows in.
	TmpMergeTable = "__tmp_merge_table"
	// SelfToken in SQL text is replaced by the table name.
	SelfToken = "__self__"

	counterKey = "connection_counter"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether name can be used unquoted as a table name.
func ValidName(name string) bool { return identRe.MatchString(name) }

func checkName(name string, temporary bool) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.EqualFold(name, MasterTable) || (name == TmpMergeTable && !temporary) {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return nil
}

// SQLArray is a table in a SQLite database, queryable with SQL.
type SQLArray struct {
	Name    string
	Columns []string

	conn      *Conn
	temporary bool
	cacheSize int
	observers []Observer

	mu     sync.Mutex
	cache  *cache.KRing[*record.RecArray]
	gen    uint64
	closed bool
}

// open returns the connection named in o or a fresh one. The returned Conn
// carries one reference for the new SQLArray.
func open(ctx context.Context, o options) (*Conn, error) {
	if o.conn != nil {
		if err := o.conn.Acquire(); err != nil {
			return nil, err
		}
		return o.conn, nil
	}
	return OpenConn(ctx, o.dbfile)
}

// newSQLArray binds name on an acquired connection and bumps the master
// connection counter.
func newSQLArray(ctx context.Context, conn *Conn, name string, o options) (*SQLArray, error) {
	a := &SQLArray{
		Name:      name,
		conn:      conn,
		temporary: o.temporary,
		cacheSize: o.cacheSize,
		observers: o.observers,
		cache:     cache.NewKRing[*record.RecArray](o.cacheSize),
	}
	if _, err := conn.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+MasterTable+" (name PRIMARY KEY, value)"); err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "INSERT OR IGNORE INTO "+MasterTable+" (name, value) VALUES (?, 0)", counterKey); err != nil {
		return nil, err
	}
	if err := a.addConnectionCounter(ctx, 1); err != nil {
		return nil, err
	}
	return a, nil
}

// FromRecArray creates table name from ra and loads all rows.
func FromRecArray(ctx context.Context, name string, ra *record.RecArray, opts ...Option) (*SQLArray, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := checkName(name, o.temporary); err != nil {
		return nil, err
	}
	if ra == nil || ra.Schema.NumCols() == 0 {
		return nil, fmt.Errorf("load %s: %w", name, ErrNoColumns)
	}

	conn, err := open(ctx, o)
	if err != nil {
		return nil, err
	}
	a, err := newSQLArray(ctx, conn, name, o)
	if err != nil {
		return nil, multierr.Append(err, conn.Close())
	}
	a.Columns = ra.Names()

	start := time.Now()
	err = a.load(ctx, ra)
	a.emit(Event{Type: EventLoad, Table: name, Rows: ra.Len(), Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("load %s: %w", name, err), a.release(ctx))
	}
	return a, nil
}

func (a *SQLArray) load(ctx context.Context, ra *record.RecArray) error {
	defs := make([]string, len(ra.Schema.Cols))
	cols := make([]string, len(ra.Schema.Cols))
	marks := make([]string, len(ra.Schema.Cols))
	for i, c := range ra.Schema.Cols {
		cols[i] = quoteIdent(c.Name)
		defs[i] = strings.TrimSpace(cols[i] + " " + c.Type.SQLType())
		marks[i] = "?"
	}
	create := "CREATE TABLE "
	if a.temporary {
		create = "CREATE TEMPORARY TABLE "
	}
	create += a.Name + " (" + strings.Join(defs, ", ") + ")"
	insert := "INSERT INTO " + a.Name + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	return a.conn.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return err
		}
		defer stmt.Close()

		args := make([]any, len(cols))
		for r, row := range ra.Rows {
			for c, v := range row {
				if args[c], err = record.BindValue(v); err != nil {
					return fmt.Errorf("row %d column %s: %w", r, ra.Schema.Cols[c].Name, err)
				}
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("row %d: %w", r, err)
			}
		}
		return nil
	})
}

// FromRecords creates a table from plain rows with the given column names.
func FromRecords(ctx context.Context, name string, columns []string, rows [][]any, opts ...Option) (*SQLArray, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("load %s: %w", name, ErrNoColumns)
	}
	ra, err := record.NewRecArray(columns, rows)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return FromRecArray(ctx, name, ra, opts...)
}

// FromStructs creates a table from a slice of structs; see record.FromStructs.
func FromStructs(ctx context.Context, name string, slice any, opts ...Option) (*SQLArray, error) {
	ra, err := record.FromStructs(slice)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return FromRecArray(ctx, name, ra, opts...)
}

// FromReST parses a reStructuredText simple table; the table is named
// after its Table[name] header unless the converter options set a name.
func FromReST(ctx context.Context, text string, opts ...Option) (*SQLArray, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	tbl, err := tables.ParseReST(text, o.tables)
	if err != nil {
		return nil, err
	}
	return fromTable(ctx, tbl, opts)
}

// FromFile loads a .rst/.txt table or a .csv file.
func FromFile(ctx context.Context, path string, opts ...Option) (*SQLArray, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	tbl, err := tables.ReadFile(path, o.tables)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return fromTable(ctx, tbl, opts)
}

func fromTable(ctx context.Context, tbl *tables.Table, opts []Option) (*SQLArray, error) {
	ra, err := tbl.RecArray()
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tbl.Name, err)
	}
	return FromRecArray(ctx, tbl.Name, ra, opts...)
}

// Attach binds an existing table in the database.
func Attach(ctx context.Context, name string, opts ...Option) (*SQLArray, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := checkName(name, o.temporary); err != nil {
		return nil, err
	}
	conn, err := open(ctx, o)
	if err != nil {
		return nil, err
	}
	a, err := newSQLArray(ctx, conn, name, o)
	if err != nil {
		return nil, multierr.Append(err, conn.Close())
	}

	res, err := conn.Query(ctx, "SELECT * FROM "+name+" WHERE 0")
	if err != nil {
		if strings.Contains(err.Error(), "no such table") || strings.Contains(err.Error(), "syntax error") {
			names, _ := a.Tables(ctx)
			err = fmt.Errorf("%w: %q (database has %v)", ErrNoSuchTable, name, names)
		}
		return nil, multierr.Append(err, a.release(ctx))
	}
	a.Columns = res.Columns
	a.emit(Event{Type: EventAttach, Table: name})
	return a, nil
}

// Conn returns the shared connection; pass it to WithConnection to put
// more tables into the same database.
func (a *SQLArray) Conn() *Conn { return a.conn }

func (a *SQLArray) emit(e Event) {
	for _, o := range a.observers {
		o.OnEvent(e)
	}
}

func (a *SQLArray) checkOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%s: %w", a.Name, ErrClosed)
	}
	return nil
}

func (a *SQLArray) expand(q string) string {
	return strings.ReplaceAll(q, SelfToken, a.Name)
}

// SQL runs q with __self__ replaced by the table name. Statements that
// return rows yield a RecArray (with zero rows when nothing matched);
// other statements yield nil. The last few results are cached until any
// table on the connection changes. Cached results are shared and must not
// be modified.
func (a *SQLArray) SQL(ctx context.Context, q string, opts ...QueryOption) (*record.RecArray, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	var qo queryOptions
	for _, opt := range opts {
		opt(&qo)
	}
	q = a.expand(q)
	key := q
	if qo.raw {
		key = "raw:" + q
	}
	useCache := !qo.noCache && len(qo.params) == 0 && !strings.Contains(q, "?")

	kind := classify(q)
	start := time.Now()
	if !kind.rows {
		_, err := a.conn.Exec(ctx, q, qo.params...)
		a.emit(Event{Type: EventExec, Table: a.Name, SQL: q, Duration: time.Since(start), Err: err})
		return nil, err
	}
	if kind.writes {
		ra, err := a.query(ctx, a.conn.ExecQuery, q, qo)
		ev := Event{Type: EventExec, Table: a.Name, SQL: q, Duration: time.Since(start), Err: err}
		if err == nil {
			ev.Rows = ra.Len()
		}
		a.emit(ev)
		return ra, err
	}

	if useCache {
		if ra, ok := a.cached(key); ok {
			a.emit(Event{Type: EventQuery, Table: a.Name, SQL: q, Rows: ra.Len(), Cached: true, Duration: time.Since(start)})
			return ra, nil
		}
	}

	gen := a.conn.Generation()
	ra, err := a.query(ctx, a.conn.Query, q, qo)
	ev := Event{Type: EventQuery, Table: a.Name, SQL: q, Duration: time.Since(start), Err: err}
	if err == nil {
		ev.Rows = ra.Len()
	}
	a.emit(ev)
	if err != nil {
		return nil, err
	}
	if useCache && ra.Len() > 0 {
		a.store(key, ra, gen)
	}
	return ra, nil
}

type runFunc func(ctx context.Context, q string, args ...any) (*Result, error)

func (a *SQLArray) query(ctx context.Context, run runFunc, q string, qo queryOptions) (*record.RecArray, error) {
	res, err := run(ctx, q, qo.params...)
	if err != nil {
		return nil, err
	}
	return materialize(res, qo.raw)
}

// cached returns a cached result unless the connection changed since it
// was stored.
func (a *SQLArray) cached(key string) (*record.RecArray, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if g := a.conn.Generation(); g != a.gen {
		a.cache.Clear()
		a.gen = g
		return nil, false
	}
	return a.cache.Get(key)
}

// store caches ra, read at generation gen. A result is dropped when the
// connection changed while it was read.
func (a *SQLArray) store(key string, ra *record.RecArray, gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn.Generation() != gen {
		return
	}
	if gen != a.gen {
		a.cache.Clear()
		a.gen = gen
	}
	a.cache.Append(key, ra)
}

// Select runs SELECT <fields> FROM __self__ <clauses...>.
func (a *SQLArray) Select(ctx context.Context, fields string, clauses []string, opts ...QueryOption) (*record.RecArray, error) {
	q := "SELECT " + fields + " FROM " + SelfToken
	if len(clauses) > 0 {
		q += " " + strings.Join(clauses, " ")
	}
	return a.SQL(ctx, q, opts...)
}

// RecArray returns the whole table.
func (a *SQLArray) RecArray(ctx context.Context) (*record.RecArray, error) {
	return a.Select(ctx, "*", nil)
}

// Len returns the number of rows in the table.
func (a *SQLArray) Len(ctx context.Context) (int, error) {
	ra, err := a.Select(ctx, "COUNT() AS length", nil, NoCache())
	if err != nil {
		return 0, err
	}
	n, err := ra.Int64s("length")
	if err != nil {
		return 0, err
	}
	return int(n[0]), nil
}

// Limits returns the minimum and maximum of column over all rows.
func (a *SQLArray) Limits(ctx context.Context, column string) (lo, hi any, err error) {
	ra, err := a.Select(ctx, fmt.Sprintf("min(%s) AS lo, max(%s) AS hi", column, column), nil)
	if err != nil {
		return nil, nil, err
	}
	return ra.Rows[0][0], ra.Rows[0][1], nil
}

// HasTable reports whether a table (regular or temporary) exists.
func (a *SQLArray) HasTable(ctx context.Context, name string) (bool, error) {
	if err := a.checkOpen(); err != nil {
		return false, err
	}
	res, err := a.conn.Query(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?
		 UNION ALL SELECT name FROM sqlite_temp_master WHERE type='table' AND name=?`, name, name)
	if err != nil {
		return false, err
	}
	return len(res.Rows) > 0, nil
}

// Tables lists the regular tables in the database, without the master
// table.
func (a *SQLArray) Tables(ctx context.Context) ([]string, error) {
	res, err := a.conn.Query(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name != ? ORDER BY name", MasterTable)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		names = append(names, fmt.Sprint(textValue(row[0])))
	}
	return names, nil
}

// ConnectionCount returns the number of SQLArrays registered in the
// database's master table.
func (a *SQLArray) ConnectionCount(ctx context.Context) (int, error) {
	res, err := a.conn.Query(ctx, "SELECT value FROM "+MasterTable+" WHERE name = ?", counterKey)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) == 0 {
		return 0, nil
	}
	n, ok := res.Rows[0][0].(int64)
	if !ok {
		return 0, fmt.Errorf("recsql: bad %s value %v", counterKey, res.Rows[0][0])
	}
	return int(n), nil
}

func (a *SQLArray) addConnectionCounter(ctx context.Context, inc int) error {
	_, err := a.conn.Exec(ctx,
		"UPDATE "+MasterTable+" SET value = value + ? WHERE name = ?", inc, counterKey)
	return err
}

// Close unregisters the SQLArray. When it was the last one on the
// database an in-memory table is dropped; the connection is closed once
// no SQLArray uses it.
func (a *SQLArray) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.cache.Clear()
	a.mu.Unlock()

	start := time.Now()
	err := a.release(ctx)
	a.emit(Event{Type: EventClose, Table: a.Name, Duration: time.Since(start), Err: err})
	return err
}

// release undoes newSQLArray. Close is the only caller on a live SQLArray.
func (a *SQLArray) release(ctx context.Context) error {
	err := a.addConnectionCounter(ctx, -1)
	if err == nil && a.conn.InMemory() {
		var n int
		if n, err = a.ConnectionCount(ctx); err == nil && n == 0 {
			_, err = a.conn.Exec(ctx, "DROP TABLE IF EXISTS "+a.Name)
		}
	}
	return multierr.Append(err, a.conn.Close())
}

// quoteIdent quotes a column name for DDL.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
