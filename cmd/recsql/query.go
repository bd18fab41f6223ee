package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tuannm99/recsql/internal/engine"
	"github.com/tuannm99/recsql/internal/export"
	"github.com/tuannm99/recsql/internal/record"
	"github.com/tuannm99/recsql/server/recsqlwire"
)

func newQueryCmd(a *app) *cobra.Command {
	var (
		name   string
		format string
		null   string
	)
	cmd := &cobra.Command{
		Use:   "query FILE SQL",
		Short: "Load a table file and run one SQL statement against it",
		Example: `  recsql query stars.csv "SELECT name, mag FROM __self__ WHERE mag < 1"
  recsql query runs.rst "SELECT histogram(t, 10, 0, 100) FROM __self__" --format yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := a.session()
			defer func() { _ = s.Close(context.Background()) }()

			table, err := s.Load(ctx, args[0], name)
			if err != nil {
				return err
			}
			t, err := s.Table(table)
			if err != nil {
				return err
			}
			ra, err := t.SQL(ctx, args[1])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), ra, format, null)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "table name (default: from the file)")
	cmd.Flags().StringVar(&format, "format", "table", "output format (table, csv, latex, yaml)")
	cmd.Flags().StringVar(&null, "null", "NULL", "text printed for NULL values")
	return cmd
}

// session opens a local session configured like a server session.
func (a *app) session() *recsqlwire.Session {
	return recsqlwire.NewSession(recsqlwire.ServerConfig{
		DBFile:    a.cfg.Engine.DBFile,
		CacheSize: a.cfg.Engine.CacheSize,
		Tables:    a.tableOptions(),
		Observers: []engine.Observer{engine.NewLoggingObserver(slog.Default())},
	})
}

func render(w io.Writer, ra *record.RecArray, format, null string) error {
	if ra == nil {
		_, err := fmt.Fprintln(w, "OK")
		return err
	}
	switch format {
	case "", "table":
		export.WriteTable(w, ra, null)
		_, err := fmt.Fprintf(w, "(%d rows)\n", ra.Len())
		return err
	case "csv":
		return export.WriteCSV(w, ra)
	case "latex":
		_, err := io.WriteString(w, export.LaTeX(ra, null))
		return err
	case "yaml":
		return export.WriteYAML(w, ra)
	}
	return fmt.Errorf("unknown format %q", format)
}
