package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/tuannm99/recsql/internal/engine"
	"github.com/tuannm99/recsql/internal/export"
	"github.com/tuannm99/recsql/internal/record"
	"github.com/tuannm99/recsql/server/recsqlwire"
)

const replHelp = `commands:
  \load FILE [NAME]             load a .csv/.rst/.txt table
  \attach NAME                  bind a table already in the database
  \tables                       list tables
  \use NAME                     make NAME the target of __self__
  \select NAME WHERE...         store a selection of the current table as NAME
  \export csv|latex|yaml FILE   write the last result
  \save FILE                    copy the database to FILE
  \drop NAME                    drop a table
  \history                      print history
  \help                         show help
  \q | quit | exit              quit

sql:
  end statements with ';'; __self__ names the current table`

// local is the state behind the REPL's commands.
type local struct {
	s       *recsqlwire.Session
	current *engine.SQLArray
	last    *record.RecArray
	out     io.Writer
	null    string
}

func newReplCmd(a *app) *cobra.Command {
	var (
		histPath string
		histMax  int
	)
	cmd := &cobra.Command{
		Use:   "repl [FILE...]",
		Short: "Interactive SQL shell over local table files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l := &local{s: a.session(), out: cmd.OutOrStdout(), null: "NULL"}
			defer func() { _ = l.s.Close(context.Background()) }()

			for _, path := range args {
				if err := l.command(ctx, command{name: "load", args: []string{path}}); err != nil {
					return err
				}
			}

			sh := &shell{
				prompt:  "recsql",
				history: NewHistory(histPath),
				out:     l.out,
				exec:    l.exec,
				command: l.command,
				help:    replHelp,
			}
			return sh.run(ctx, histMax)
		},
	}
	cmd.Flags().StringVar(&histPath, "history", defaultHistoryPath(), "history file path")
	cmd.Flags().IntVar(&histMax, "history-max", 2000, "max history lines loaded into memory")
	return cmd
}

func (l *local) exec(ctx context.Context, stmt string) error {
	if l.current == nil {
		return fmt.Errorf(`no table; \load one first`)
	}
	ra, err := l.current.SQL(ctx, stmt)
	if err != nil {
		return err
	}
	if ra != nil {
		l.last = ra
	}
	return render(l.out, ra, "table", l.null)
}

func (l *local) command(ctx context.Context, c command) error {
	switch c.name {
	case "load":
		if len(c.args) < 1 || len(c.args) > 2 {
			return fmt.Errorf(`usage: \load FILE [NAME]`)
		}
		name := ""
		if len(c.args) == 2 {
			name = c.args[1]
		}
		table, err := l.s.Load(ctx, c.args[0], name)
		if err != nil {
			return err
		}
		fmt.Fprintf(l.out, "loaded %s\n", table)
		return l.use(table)

	case "attach":
		if len(c.args) != 1 {
			return fmt.Errorf(`usage: \attach NAME`)
		}
		if _, err := l.s.Attach(ctx, c.args[0]); err != nil {
			return err
		}
		return l.use(c.args[0])

	case "tables":
		for _, n := range l.s.Names() {
			marker := " "
			if l.current != nil && l.current.Name == n {
				marker = "*"
			}
			fmt.Fprintf(l.out, "%s %s\n", marker, n)
		}
		return nil

	case "use":
		if len(c.args) != 1 {
			return fmt.Errorf(`usage: \use NAME`)
		}
		return l.use(c.args[0])

	case "select":
		name, where := cutWord(c.rest)
		if name == "" || where == "" || l.current == nil {
			return fmt.Errorf(`usage: \select NAME WHERE... (with a current table)`)
		}
		if name == l.current.Name {
			return engine.ErrSelfReference
		}
		if _, err := l.s.Table(name); err == nil {
			if err := l.s.Drop(ctx, name); err != nil {
				return err
			}
		}
		sel, err := l.current.Selection(ctx, where, engine.SelectionName(name), engine.Force())
		if err != nil {
			return err
		}
		// the session owns the new table from here on
		if _, err := l.s.Attach(ctx, sel.Name); err != nil {
			return multierr.Append(err, sel.Close(ctx))
		}
		n, err := sel.Len(ctx)
		if err != nil {
			return multierr.Append(err, sel.Close(ctx))
		}
		fmt.Fprintf(l.out, "selected %d rows into %s\n", n, sel.Name)
		return sel.Close(ctx)

	case "export":
		if len(c.args) != 2 {
			return fmt.Errorf(`usage: \export csv|latex|yaml FILE`)
		}
		if l.last == nil {
			return fmt.Errorf("nothing to export yet")
		}
		return exportFile(l.last, c.args[0], c.args[1], l.null)

	case "save":
		if len(c.args) != 1 || l.current == nil {
			return fmt.Errorf(`usage: \save FILE (with a current table)`)
		}
		return l.current.Save(ctx, c.args[0])

	case "drop":
		if len(c.args) != 1 {
			return fmt.Errorf(`usage: \drop NAME`)
		}
		if l.current != nil && l.current.Name == c.args[0] {
			l.current = nil
		}
		return l.s.Drop(ctx, c.args[0])
	}
	return fmt.Errorf(`unknown command \%s`, c.name)
}

func (l *local) use(name string) error {
	t, err := l.s.Table(name)
	if err != nil {
		return err
	}
	l.current = t
	return nil
}

func exportFile(ra *record.RecArray, format, path, null string) error {
	var err error
	switch format {
	case "csv":
		_, err = export.Rec2CSV(ra, path)
	case "latex":
		_, err = export.Rec2LaTeX(ra, path, null)
	case "yaml":
		err = export.Rec2YAML(ra, path)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	return err
}

