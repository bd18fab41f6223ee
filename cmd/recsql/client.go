package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tuannm99/recsql/internal/record"
	"github.com/tuannm99/recsql/server/recsqlwire"
	"github.com/tuannm99/recsql/sqlclient"
)

const clientHelp = `commands:
  \load FILE [NAME]   load a table file on the server
  \tables             list tables in this session
  \use NAME           make NAME the target of __self__
  \drop NAME          drop a table
  \history            print history
  \help               show help
  \q | quit | exit    quit

sql:
  end statements with ';'; __self__ names the current table`

type remote struct {
	c     *sqlclient.Client
	table string
	out   io.Writer
}

func newClientCmd(a *app) *cobra.Command {
	var (
		timeout  time.Duration
		histPath string
		histMax  int
		oneShot  string
	)
	cmd := &cobra.Command{
		Use:   "client [FILE...]",
		Short: "Interactive shell against a recsql server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := sqlclient.DialContext(ctx, a.cfg.Server.Addr, timeout)
			if err != nil {
				return fmt.Errorf("dial: %w", err)
			}
			defer func() { _ = c.Close() }()
			c.SetRWTimeout(30 * time.Second)

			r := &remote{c: c, out: cmd.OutOrStdout()}
			for _, path := range args {
				if err := r.command(ctx, command{name: "load", args: []string{path}}); err != nil {
					return err
				}
			}

			// one-shot mode
			if strings.TrimSpace(oneShot) != "" {
				return r.exec(ctx, oneShot)
			}

			fmt.Fprintf(r.out, "connected to %s\n", a.cfg.Server.Addr)
			sh := &shell{
				prompt:  "recsql@" + a.cfg.Server.Addr,
				history: NewHistory(histPath),
				out:     r.out,
				exec:    r.exec,
				command: r.command,
				help:    clientHelp,
			}
			return sh.run(ctx, histMax)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:5433", "server address")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "dial timeout")
	cmd.Flags().StringVar(&histPath, "history", defaultHistoryPath(), "history file path")
	cmd.Flags().IntVar(&histMax, "history-max", 2000, "max history lines loaded into memory")
	cmd.Flags().StringVarP(&oneShot, "command", "c", "", "run one statement and exit")
	return cmd
}

func (r *remote) exec(ctx context.Context, stmt string) error {
	res, err := r.c.Query(ctx, r.table, stmt)
	if err != nil {
		return err
	}
	printResult(r.out, res)
	return nil
}

// printResult prints rows the way the server sent them; NULL, NaN and
// infinities all arrive as null.
func printResult(w io.Writer, res *recsqlwire.Result) {
	if res == nil || len(res.Columns) == 0 {
		fmt.Fprintln(w, "OK")
		return
	}
	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = make([]string, len(row))
		for c, v := range row {
			rows[i][c] = record.FormatValue(v, "NULL")
		}
	}
	printRows(w, res.Columns, rows)
}

func (r *remote) command(ctx context.Context, c command) error {
	switch c.name {
	case "load":
		if len(c.args) < 1 || len(c.args) > 2 {
			return fmt.Errorf(`usage: \load FILE [NAME]`)
		}
		name := ""
		if len(c.args) == 2 {
			name = c.args[1]
		}
		table, err := r.c.Load(ctx, c.args[0], name)
		if err != nil {
			return err
		}
		r.table = table
		fmt.Fprintf(r.out, "loaded %s\n", table)
		return nil

	case "tables":
		names, err := r.c.Tables(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			marker := " "
			if n == r.table {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s\n", marker, n)
		}
		return nil

	case "use":
		if len(c.args) != 1 {
			return fmt.Errorf(`usage: \use NAME`)
		}
		r.table = c.args[0]
		return nil

	case "drop":
		if len(c.args) != 1 {
			return fmt.Errorf(`usage: \drop NAME`)
		}
		if r.table == c.args[0] {
			r.table = ""
		}
		return r.c.Drop(ctx, c.args[0])
	}
	return fmt.Errorf(`unknown command \%s`, c.name)
}
