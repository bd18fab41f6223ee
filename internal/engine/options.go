package engine

import "github.com/tuannm99/recsql/internal/tables"

// DefaultCacheSize is the number of query results each SQLArray keeps.
const DefaultCacheSize = 5

type options struct {
	conn      *Conn
	dbfile    string
	cacheSize int
	temporary bool
	observers []Observer
	tables    tables.Options
}

func defaultOptions() options {
	return options{dbfile: MemoryDB, cacheSize: DefaultCacheSize}
}

// Option configures a SQLArray constructor.
type Option func(*options)

// WithConnection shares an open connection instead of opening a new one.
func WithConnection(c *Conn) Option {
	return func(o *options) { o.conn = c }
}

// WithDBFile opens (or creates) an on-disk database instead of the default
// in-memory one. Ignored with WithConnection.
func WithDBFile(path string) Option {
	return func(o *options) { o.dbfile = path }
}

// WithCacheSize sets how many query results are cached; 0 disables it.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// Temporary creates the table with CREATE TEMPORARY TABLE.
func Temporary() Option {
	return func(o *options) { o.temporary = true }
}

func WithObserver(obs ...Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs...) }
}

// WithConverter sets how FromFile and FromReST convert table cells.
func WithConverter(opts tables.Options) Option {
	return func(o *options) { o.tables = opts }
}

type queryOptions struct {
	raw     bool
	noCache bool
	params  []any
}

// QueryOption configures SQLArray.SQL and SQLArray.Select.
type QueryOption func(*queryOptions)

// AsRecords returns driver values as they are: no text normalization and
// no array decoding.
func AsRecords() QueryOption {
	return func(o *queryOptions) { o.raw = true }
}

// NoCache bypasses the query cache for large results.
func NoCache() QueryOption {
	return func(o *queryOptions) { o.noCache = true }
}

// Params binds values to the ? placeholders. Parameterized queries are
// never cached.
func Params(args ...any) QueryOption {
	return func(o *queryOptions) { o.params = args }
}

type selectionOptions struct {
	name   string
	force  bool
	params []any
}

type SelectionOption func(*selectionOptions)

// SelectionName names the new table instead of the generated
// selection_<md5> name.
func SelectionName(name string) SelectionOption {
	return func(o *selectionOptions) { o.name = name }
}

// Force drops an existing table of the same name first.
func Force() SelectionOption {
	return func(o *selectionOptions) { o.force = true }
}

func SelectionParams(args ...any) SelectionOption {
	return func(o *selectionOptions) { o.params = args }
}
