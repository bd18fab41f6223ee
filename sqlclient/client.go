// Package sqlclient talks to a recsql server over the recsqlwire protocol.
package sqlclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuannm99/recsql/server/recsqlwire"
)

// Client is a simple synchronous client. Requests are serialized on the
// connection, so it is safe to share between goroutines.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	id   atomic.Uint64

	// Optional per-request timeout (0 = no timeout).
	rwTimeout time.Duration
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

func DialContext(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

// SetRWTimeout sets a per-request read/write deadline.
func (c *Client) SetRWTimeout(d time.Duration) {
	if c == nil {
		return
	}
	c.rwTimeout = d
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Load reads a table file on the server side. An empty name keeps the
// name found in the file. It returns the table name.
func (c *Client) Load(ctx context.Context, path, name string) (string, error) {
	res, err := c.do(ctx, recsqlwire.Request{Op: recsqlwire.OpLoad, Path: path, Table: name})
	if err != nil {
		return "", err
	}
	if res == nil || len(res.Tables) != 1 {
		return "", fmt.Errorf("sqlclient: load returned no table")
	}
	return res.Tables[0], nil
}

// Query runs q against table; __self__ in q names the table. An empty table
// works when the session holds a single table.
func (c *Client) Query(ctx context.Context, table, q string, params ...any) (*recsqlwire.Result, error) {
	return c.do(ctx, recsqlwire.Request{Op: recsqlwire.OpQuery, Table: table, SQL: q, Params: params})
}

func (c *Client) Tables(ctx context.Context) ([]string, error) {
	res, err := c.do(ctx, recsqlwire.Request{Op: recsqlwire.OpTables})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.Tables, nil
}

func (c *Client) Drop(ctx context.Context, table string) error {
	_, err := c.do(ctx, recsqlwire.Request{Op: recsqlwire.OpDrop, Table: table})
	return err
}

func (c *Client) do(ctx context.Context, req recsqlwire.Request) (*recsqlwire.Result, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("sqlclient: nil client")
	}

	req.ID = c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	defer func() {
		// idle connections must not expire
		_ = c.conn.SetDeadline(time.Time{})
	}()

	if err := recsqlwire.WriteFrame(c.conn, req); err != nil {
		return nil, err
	}

	var resp recsqlwire.Response
	if err := recsqlwire.ReadFrame(c.conn, &resp); err != nil {
		return nil, err
	}

	if resp.ID != req.ID {
		return nil, fmt.Errorf("sqlclient: response id mismatch: got=%d want=%d", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Result, nil
}

func (c *Client) applyDeadline(ctx context.Context) error {
	// Prefer context deadline if present; otherwise use rwTimeout.
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	if c.rwTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.rwTimeout))
	}
	return nil
}
