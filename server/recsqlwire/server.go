package recsqlwire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/tuannm99/recsql/internal/engine"
	"github.com/tuannm99/recsql/internal/tables"
)

var (
	ErrUnknownOp  = errors.New("recsqlwire: unknown op")
	ErrNoTable    = errors.New("recsqlwire: table not loaded")
	ErrNeedsTable = errors.New("recsqlwire: request needs a table name")
)

type ServerConfig struct {
	Addr string
	// Preload lists files loaded into every new session.
	Preload []string
	// DBFile backs each session; empty means in-memory.
	DBFile    string
	CacheSize int
	Tables    tables.Options
	Observers []engine.Observer
	Logger    *slog.Logger
}

func (sc ServerConfig) logger() *slog.Logger {
	if sc.Logger != nil {
		return sc.Logger
	}
	return slog.Default()
}

// Run listens on sc.Addr and serves until ctx is done.
func Run(ctx context.Context, sc ServerConfig) error {
	ln, err := net.Listen("tcp", sc.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return Serve(ctx, ln, sc)
}

// Serve accepts connections on ln until ctx is done; ln is closed on
// return.
func Serve(ctx context.Context, ln net.Listener, sc ServerConfig) error {
	defer func() { _ = ln.Close() }()
	log := sc.logger()
	log.Info("server.listen", "addr", ln.Addr().String(), "preload", sc.Preload)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("server.accept", "err", err)
			continue
		}
		go handleConn(ctx, conn, sc)
	}
}

func handleConn(ctx context.Context, conn net.Conn, sc ServerConfig) {
	defer func() { _ = conn.Close() }()
	log := sc.logger().With("remote", conn.RemoteAddr().String())

	_ = conn.SetDeadline(time.Time{})

	s := NewSession(sc)
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			log.Warn("session.close", "err", err)
		}
	}()
	for _, path := range sc.Preload {
		if _, err := s.Load(ctx, path, ""); err != nil {
			log.Warn("session.preload", "path", path, "err", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			// client closed or bad frame
			return
		}

		res, err := s.Handle(ctx, req)
		resp := Response{ID: req.ID, Result: res}
		if err != nil {
			log.Debug("session.request", "op", req.Op, "err", err)
			resp = Response{ID: req.ID, Error: err.Error()}
		}
		if err := WriteFrame(conn, resp); err != nil {
			log.Warn("session.write", "err", err)
			return
		}
	}
}

// Session owns one in-memory database shared by every table a client
// loads. It is not safe for concurrent use.
type Session struct {
	sc     ServerConfig
	conn   *engine.Conn
	arrays map[string]*engine.SQLArray
}

func NewSession(sc ServerConfig) *Session {
	return &Session{sc: sc, arrays: make(map[string]*engine.SQLArray)}
}

func (s *Session) options() []engine.Option {
	opts := []engine.Option{
		engine.WithCacheSize(s.sc.CacheSize),
		engine.WithObserver(s.sc.Observers...),
	}
	switch {
	case s.conn != nil:
		opts = append(opts, engine.WithConnection(s.conn))
	case s.sc.DBFile != "":
		opts = append(opts, engine.WithDBFile(s.sc.DBFile))
	}
	return opts
}

// Handle runs one request.
func (s *Session) Handle(ctx context.Context, req Request) (*Result, error) {
	switch req.Op {
	case OpLoad:
		name, err := s.Load(ctx, req.Path, req.Table)
		if err != nil {
			return nil, err
		}
		return &Result{Tables: []string{name}}, nil

	case OpQuery:
		a, err := s.Table(req.Table)
		if err != nil {
			return nil, err
		}
		ra, err := a.SQL(ctx, req.SQL, engine.Params(req.Params...))
		if err != nil {
			return nil, err
		}
		if ra == nil {
			return &Result{}, nil
		}
		return FromRecArray(ra), nil

	case OpTables:
		return &Result{Tables: s.Names()}, nil

	case OpDrop:
		a, err := s.Table(req.Table)
		if err != nil {
			return nil, err
		}
		if err := s.Drop(ctx, a.Name); err != nil {
			return nil, err
		}
		return &Result{Tables: []string{a.Name}}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
}

// Load reads a table file into the session database and returns the
// table name. A table of the same name is replaced. CSV files are named
// after the file unless name is given.
func (s *Session) Load(ctx context.Context, path, name string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("load: empty path")
	}
	to := s.sc.Tables
	to.Name = name
	if name == "" && strings.EqualFold(filepath.Ext(path), ".csv") {
		to.Name = tables.MakeName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), tables.DefaultCSVName)
	}
	tbl, err := tables.ReadFile(path, to)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	ra, err := tbl.RecArray()
	if err != nil {
		return "", fmt.Errorf("table %s: %w", tbl.Name, err)
	}
	if _, ok := s.arrays[tbl.Name]; ok {
		if err := s.Drop(ctx, tbl.Name); err != nil {
			return "", err
		}
	}

	a, err := engine.FromRecArray(ctx, tbl.Name, ra, s.options()...)
	if err != nil {
		return "", err
	}
	if err := s.adopt(ctx, a); err != nil {
		return "", err
	}
	return a.Name, nil
}

// Attach binds a table that already exists in the session database.
func (s *Session) Attach(ctx context.Context, name string) (*engine.SQLArray, error) {
	if a, ok := s.arrays[name]; ok {
		return a, nil
	}
	a, err := engine.Attach(ctx, name, s.options()...)
	if err != nil {
		return nil, err
	}
	if err := s.adopt(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// adopt takes the session's own reference on the first table's
// connection and registers a.
func (s *Session) adopt(ctx context.Context, a *engine.SQLArray) error {
	if s.conn == nil {
		s.conn = a.Conn()
		// the session keeps the database alive between tables
		if err := s.conn.Acquire(); err != nil {
			s.conn = nil
			return multierr.Append(err, a.Close(ctx))
		}
	}
	s.arrays[a.Name] = a
	return nil
}

// Drop closes the named table and removes it from the database.
func (s *Session) Drop(ctx context.Context, name string) error {
	a, ok := s.arrays[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoTable, name)
	}
	delete(s.arrays, name)
	err := a.Close(ctx)
	if s.conn != nil {
		_, derr := s.conn.Exec(ctx, "DROP TABLE IF EXISTS "+name)
		err = multierr.Append(err, derr)
	}
	return err
}

// Table returns the named table, or the only table when name is empty.
func (s *Session) Table(name string) (*engine.SQLArray, error) {
	if name == "" {
		if len(s.arrays) != 1 {
			return nil, ErrNeedsTable
		}
		for _, a := range s.arrays {
			return a, nil
		}
	}
	a, ok := s.arrays[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTable, name)
	}
	return a, nil
}

func (s *Session) Names() []string {
	out := make([]string, 0, len(s.arrays))
	for n := range s.arrays {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s *Session) Close(ctx context.Context) error {
	var err error
	for name, a := range s.arrays {
		err = multierr.Append(err, a.Close(ctx))
		delete(s.arrays, name)
	}
	if s.conn != nil {
		err = multierr.Append(err, s.conn.Close())
		s.conn = nil
	}
	return err
}
