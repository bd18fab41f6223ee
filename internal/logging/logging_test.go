package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, l)

	l, err = ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, l)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New(&buf, Options{Level: "warn", Format: "json"})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("sqlarray.event", "table", "t")
	require.Zero(t, buf.Len())

	logger.Warn("sqlarray.event", "table", "t")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "sqlarray.event", rec["msg"])
	require.Equal(t, "t", rec["table"])

	_, _, err = New(&buf, Options{Format: "xml"})
	require.Error(t, err)
}

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	require.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).With("svc", "recsql")
	logger.Debug("only.first")
	logger.Error("both")

	require.Contains(t, a.String(), "only.first")
	require.Contains(t, a.String(), "svc=recsql")
	require.NotContains(t, b.String(), "only.first")
	require.Contains(t, b.String(), "both")
}
