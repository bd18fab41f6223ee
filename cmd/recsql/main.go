package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuannm99/recsql/internal"
	"github.com/tuannm99/recsql/internal/convert"
	"github.com/tuannm99/recsql/internal/logging"
	"github.com/tuannm99/recsql/internal/tables"
)

type app struct {
	cfgPath string
	cfg     *internal.RecsqlConfig
	cleanup func()
}

func (a *app) tableOptions() tables.Options {
	return tables.Options{
		Autoconvert: a.cfg.Engine.Autoconvert,
		Mode:        convert.Mode(a.cfg.Engine.Mode),
		Encoding:    a.cfg.Engine.Encoding,
	}
}

func newRootCmd() *cobra.Command {
	a := &app{cleanup: func() {}}

	root := &cobra.Command{
		Use:           "recsql",
		Short:         "Query record tables with SQL",
		Long:          `recsql loads CSV and reStructuredText tables into SQLite and queries them with SQL, including histogram and statistics functions.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig(a.cfgPath, cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			cleanup, err := logging.Setup(os.Stderr, logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				SeqURL: cfg.Log.SeqURL,
			})
			if err != nil {
				return err
			}
			a.cleanup = cleanup
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.cleanup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "YAML config file")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("seq-url", "", "Seq server URL for structured logs")
	pf.Int("cache-size", 5, "query results cached per table")
	pf.String("dbfile", ":memory:", "SQLite database file")
	pf.Bool("autoconvert", false, "convert special values and split tuples in reST cells")
	pf.String("mode", "fancy", "autoconvert mode (simple, singlet, fancy, unicode)")
	pf.String("encoding", "utf-8", "CSV source encoding")

	root.AddCommand(
		newQueryCmd(a),
		newReplCmd(a),
		newServeCmd(a),
		newClientCmd(a),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
