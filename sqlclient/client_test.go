package sqlclient

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/recsql/server/recsqlwire"
)

func startServer(t *testing.T, sc recsqlwire.ServerConfig) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	sc.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() { done <- recsqlwire.Serve(ctx, ln, sc) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return ln.Addr().String()
}

func TestClient_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stars.csv")
	require.NoError(t, os.WriteFile(path, []byte("star,mag\nSirius,-1.46\nVega,0.03\nDeneb,1.25\n"), 0o644))

	addr := startServer(t, recsqlwire.ServerConfig{CacheSize: 5})
	ctx := context.Background()

	c, err := DialContext(ctx, addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	c.SetRWTimeout(5 * time.Second)

	name, err := c.Load(ctx, path, "")
	require.NoError(t, err)
	require.Equal(t, "stars", name)

	res, err := c.Query(ctx, "", "SELECT star, mag FROM __self__ WHERE mag > ? ORDER BY mag", 0.0)
	require.NoError(t, err)
	require.Equal(t, []string{"star", "mag"}, res.Columns)
	require.Equal(t, [][]any{{"Vega", 0.03}, {"Deneb", 1.25}}, res.Rows)

	ra, err := res.RecArray()
	require.NoError(t, err)
	require.Equal(t, 2, ra.Len())

	res, err = c.Query(ctx, "stars", "SELECT sqrt(mag) AS r FROM __self__ WHERE star = 'Sirius'")
	require.NoError(t, err)
	require.Equal(t, [][]any{{nil}}, res.Rows)

	names, err := c.Tables(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"stars"}, names)

	_, err = c.Query(ctx, "missing", "SELECT 1")
	require.ErrorContains(t, err, "table not loaded")

	require.NoError(t, c.Drop(ctx, "stars"))
	names, err = c.Tables(ctx)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestClient_Preload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obs.csv")
	require.NoError(t, os.WriteFile(path, []byte("t,flux\n1,10\n2,20\n"), 0o644))

	addr := startServer(t, recsqlwire.ServerConfig{Preload: []string{path}})
	c, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	res, err := c.Query(context.Background(), "obs", "SELECT SUM(flux) AS total FROM __self__")
	require.NoError(t, err)
	require.Equal(t, [][]any{{30.0}}, res.Rows)
}

func TestClient_Nil(t *testing.T) {
	var c *Client
	_, err := c.Query(context.Background(), "", "SELECT 1")
	require.Error(t, err)
	require.NoError(t, c.Close())
}
