package engine

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/tuannm99/recsql/internal/record"
)

var fullSelectRe = regexp.MustCompile(`(?is)^\s*SELECT.*FROM`)

// selectionSQL reduces text to the statement before the first ';' and
// turns a bare WHERE fragment into a full SELECT over the parent table.
func (a *SQLArray) selectionSQL(text string) string {
	if i := strings.IndexByte(text, ';'); i >= 0 {
		text = text[:i]
	}
	if !fullSelectRe.MatchString(text) {
		text = "SELECT * FROM " + SelfToken + " WHERE " + text
	}
	return a.expand(text)
}

// selectionName is the generated table name for a selection query.
func selectionName(q string) string {
	sum := md5.Sum([]byte(q))
	return "selection_" + hex.EncodeToString(sum[:])
}

// Selection stores the result of a query as a new table and returns it
// as a SQLArray on the same connection. where is either a WHERE fragment
// ("x > 3") or a full "SELECT ... FROM ..." query. An existing table of
// the same name is reused unless Force is given.
func (a *SQLArray) Selection(ctx context.Context, where string, opts ...SelectionOption) (*SQLArray, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	var so selectionOptions
	for _, opt := range opts {
		opt(&so)
	}

	q := a.selectionSQL(where)
	name := so.name
	if name == "" {
		name = selectionName(q)
	}
	if name == SelfToken || name == a.Name {
		return nil, fmt.Errorf("%w: %q", ErrSelfReference, name)
	}
	if err := checkName(name, false); err != nil {
		return nil, err
	}

	start := time.Now()
	err := a.createSelection(ctx, name, q, so)
	a.emit(Event{Type: EventSelection, Table: name, SQL: q, Duration: time.Since(start), Err: err})
	if err != nil {
		return nil, fmt.Errorf("selection %s: %w", name, err)
	}

	return Attach(ctx, name,
		WithConnection(a.conn),
		WithCacheSize(a.cacheSize),
		WithObserver(a.observers...),
	)
}

func (a *SQLArray) createSelection(ctx context.Context, name, q string, so selectionOptions) error {
	exists, err := a.HasTable(ctx, name)
	if err != nil {
		return err
	}
	if exists && so.force {
		if _, err := a.conn.Exec(ctx, "DROP TABLE "+name); err != nil {
			return err
		}
		exists = false
	}
	if exists {
		return nil
	}
	// Column types come from the query; CREATE TABLE ... AS keeps only
	// affinities (BOOLEAN becomes NUM).
	return a.conn.Tx(ctx, func(tx *sql.Tx) error {
		shape, err := queryAll(ctx, tx, "SELECT * FROM ("+q+") WHERE 0", so.params...)
		if err != nil {
			return err
		}
		names := uniqueNames(shape.Columns)
		defs := make([]string, len(names))
		for i, n := range names {
			defs[i] = strings.TrimSpace(quoteIdent(n) + " " + shape.DeclTypes[i])
		}
		if _, err := tx.ExecContext(ctx, "CREATE TABLE "+name+" ("+strings.Join(defs, ", ")+")"); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO "+name+" SELECT * FROM ("+q+")", so.params...)
		return err
	})
}

// Merge inserts the rows of ra, which must have the same columns as the
// table, and returns the number of inserted rows. Rows violating a
// constraint abort the whole merge.
func (a *SQLArray) Merge(ctx context.Context, ra *record.RecArray) (int, error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}
	if ra == nil || !sameColumns(a.Columns, ra.Names()) {
		var got []string
		if ra != nil {
			got = ra.Names()
		}
		return 0, fmt.Errorf("%w: columns %v, want %v", ErrMergeMismatch, got, a.Columns)
	}

	before, err := a.Len(ctx)
	if err != nil {
		return 0, err
	}

	tmp, err := FromRecArray(ctx, TmpMergeTable, ra,
		WithConnection(a.conn), Temporary(), WithCacheSize(0))
	if err != nil {
		return 0, err
	}
	cols := make([]string, len(ra.Schema.Cols))
	for i, c := range ra.Schema.Cols {
		cols[i] = quoteIdent(c.Name)
	}
	list := strings.Join(cols, ", ")
	_, err = a.SQL(ctx, "INSERT OR ABORT INTO "+SelfToken+" ("+list+") SELECT "+list+" FROM temp."+TmpMergeTable)
	_, dropErr := a.conn.Exec(ctx, "DROP TABLE IF EXISTS temp."+TmpMergeTable)
	if err = multierr.Combine(err, dropErr, tmp.Close(ctx)); err != nil {
		return 0, fmt.Errorf("merge into %s: %w", a.Name, err)
	}

	after, err := a.Len(ctx)
	if err != nil {
		return 0, err
	}
	n := after - before
	if n != ra.Len() {
		return n, fmt.Errorf("%w: inserted %d of %d rows", ErrMergeMismatch, n, ra.Len())
	}
	return n, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	for _, c := range b {
		if !set[c] {
			return false
		}
	}
	return true
}

// MergeTable copies every row of table name into this table and returns
// the number of inserted rows.
func (a *SQLArray) MergeTable(ctx context.Context, name string) (int, error) {
	if !ValidName(name) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	before, err := a.Len(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := a.SQL(ctx, "INSERT OR ABORT INTO "+SelfToken+" SELECT * FROM "+name); err != nil {
		return 0, fmt.Errorf("merge %s into %s: %w", name, a.Name, err)
	}
	after, err := a.Len(ctx)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// SQLIndex creates a named index on columns.
func (a *SQLArray) SQLIndex(ctx context.Context, indexName string, columns []string, unique bool) error {
	if len(columns) == 0 {
		return fmt.Errorf("index %s: %w", indexName, ErrNoColumns)
	}
	if !ValidName(indexName) {
		return fmt.Errorf("%w: index %q", ErrInvalidName, indexName)
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = quoteIdent(c)
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	_, err := a.SQL(ctx, fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, indexName, SelfToken, strings.Join(cols, ", ")))
	return err
}

// Save writes the whole database to path, replacing an existing file. An
// empty path is a no-op for an on-disk database.
func (a *SQLArray) Save(ctx context.Context, path string) error {
	if err := a.checkOpen(); err != nil {
		return err
	}
	if path == "" {
		if a.conn.InMemory() {
			return ErrNoSavePath
		}
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("save %s: %w", path, err)
	}
	start := time.Now()
	_, err := a.conn.Exec(ctx, "VACUUM INTO ?", path)
	a.emit(Event{Type: EventExec, Table: a.Name, SQL: "VACUUM INTO " + path, Duration: time.Since(start), Err: err})
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
