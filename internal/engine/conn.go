package engine

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"

	"github.com/tuannm99/recsql/internal/lock"
	"github.com/tuannm99/recsql/internal/sqlfunc"
)

// DriverName is the database/sql driver with the recsql functions installed.
const DriverName = "sqlite3_recsql"

// MemoryDB is the SQLite name of a private in-memory database.
const MemoryDB = ":memory:"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{ConnectHook: sqlfunc.Register})
	})
}

// Conn is one pinned connection to a SQLite database. An in-memory
// database exists only inside a single connection, so every statement runs
// on the same *sql.Conn, serialized by mu.
type Conn struct {
	dbfile string
	db     *sql.DB
	conn   *sql.Conn
	refs   *lock.RefCount

	// gen is bumped by every statement that may modify data.
	gen atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// Result is a fully read query result.
type Result struct {
	Columns   []string
	DeclTypes []string
	Rows      [][]any
}

// OpenConn opens dbfile (MemoryDB when empty). The caller owns one
// reference and must Close it.
func OpenConn(ctx context.Context, dbfile string) (*Conn, error) {
	registerDriver()
	if dbfile == "" {
		dbfile = MemoryDB
	}

	db, err := sql.Open(DriverName, dbfile)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbfile, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("connect %s: %w", dbfile, err), db.Close())
	}

	return &Conn{
		dbfile: dbfile,
		db:     db,
		conn:   conn,
		refs:   lock.NewRefCount(),
	}, nil
}

func (c *Conn) DBFile() string { return c.dbfile }

func (c *Conn) InMemory() bool {
	return c.dbfile == MemoryDB || strings.HasPrefix(c.dbfile, "file::memory:")
}

// Generation changes whenever a statement that may modify data ran.
func (c *Conn) Generation() uint64 { return c.gen.Load() }

// Acquire adds a reference for a new SQLArray sharing the connection.
func (c *Conn) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.refs.Acquire()
	return nil
}

// Refs returns the number of live references.
func (c *Conn) Refs() int32 { return c.refs.Load() }

// Query runs q and reads every row before returning.
func (c *Conn) Query(ctx context.Context, q string, args ...any) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return queryAll(ctx, c.conn, q, args...)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryAll(ctx context.Context, q queryer, query string, args ...any) (*Result, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: cols, DeclTypes: make([]string, len(types))}
	for i, ct := range types {
		res.DeclTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

// ExecQuery runs a statement that both modifies data and returns rows,
// such as INSERT ... RETURNING.
func (c *Conn) ExecQuery(ctx context.Context, q string, args ...any) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	defer c.gen.Add(1)
	return queryAll(ctx, c.conn, q, args...)
}

// Exec runs a statement that may modify data.
func (c *Conn) Exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	defer c.gen.Add(1)
	return c.conn.ExecContext(ctx, q, args...)
}

// Tx runs fn in a transaction, committing when fn returns nil.
func (c *Conn) Tx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	defer c.gen.Add(1)

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return multierr.Append(err, tx.Rollback())
	}
	return tx.Commit()
}

// Close releases one reference; the last one closes the database.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if !c.refs.Release() {
		return nil
	}
	c.closed = true
	return multierr.Combine(c.conn.Close(), c.db.Close())
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// stmtKind tells SQL how to run a statement.
type stmtKind struct {
	rows   bool // returns rows
	writes bool // may modify data
}

var (
	readKeywords  = []string{"SELECT", "WITH", "PRAGMA", "EXPLAIN", "VALUES"}
	writeKeywords = []string{"INSERT", "UPDATE", "DELETE", "REPLACE"}

	returningRe = regexp.MustCompile(`(?i)\bRETURNING\b`)
	dmlRe       = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|REPLACE)\b`)
)

func classify(q string) stmtKind {
	s := skipComments(q)
	switch kw := firstKeyword(s); {
	case slices.Contains(writeKeywords, kw):
		return stmtKind{rows: returningRe.MatchString(s), writes: true}
	case kw == "WITH" && dmlRe.MatchString(s):
		return stmtKind{rows: returningRe.MatchString(s), writes: true}
	case kw == "PRAGMA" && strings.Contains(s, "="):
		return stmtKind{writes: true}
	case slices.Contains(readKeywords, kw):
		return stmtKind{rows: true}
	}
	return stmtKind{writes: true}
}

// skipComments drops leading white space, '(' and SQL comments.
func skipComments(q string) string {
	for {
		q = strings.TrimLeft(q, " \t\r\n(")
		switch {
		case strings.HasPrefix(q, "--"):
			i := strings.IndexByte(q, '\n')
			if i < 0 {
				return ""
			}
			q = q[i+1:]
		case strings.HasPrefix(q, "/*"):
			i := strings.Index(q[2:], "*/")
			if i < 0 {
				return ""
			}
			q = q[i+4:]
		default:
			return q
		}
	}
}

func firstKeyword(s string) string {
	end := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}
