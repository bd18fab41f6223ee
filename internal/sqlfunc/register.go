package sqlfunc

import (
	"fmt"

	"github.com/mattn/go-sqlite3"
)

type scalar struct {
	name string
	impl any
}

type aggregate struct {
	name string
	ctor any
}

var scalars = []scalar{
	{"sqrt", Sqrt},
	{"sqr", Sqr},
	{"pow", Pow},
	{"periodic", Periodic},
	{"match", Match},
	{"regexp", Regexp},
	{"fformat", FFormat},
}

var aggregates = []aggregate{
	{"std", newStd},
	{"stdN", newStdN},
	{"median", newMedian},
	{"array", newArray},
	{"histogram", newHistogram},
	{"distribution", newDistribution},
	{"meanhistogram", funcHistogram(Mean)},
	{"stdhistogram", funcHistogram(binStd)},
	{"minhistogram", funcHistogram(minOf)},
	{"maxhistogram", funcHistogram(maxOf)},
	{"medianhistogram", funcHistogram(Median)},
	{"zscorehistogram", funcHistogram(ZScore)},
}

// Names lists every function Register installs, scalars first.
func Names() []string {
	out := make([]string, 0, len(scalars)+len(aggregates))
	for _, s := range scalars {
		out = append(out, s.name)
	}
	for _, a := range aggregates {
		out = append(out, a.name)
	}
	return out
}

// Register installs all functions on conn. It is meant to be called from
// a sqlite3.SQLiteDriver ConnectHook.
func Register(conn *sqlite3.SQLiteConn) error {
	for _, s := range scalars {
		if err := conn.RegisterFunc(s.name, s.impl, true); err != nil {
			return fmt.Errorf("sqlfunc: register %s: %w", s.name, err)
		}
	}
	for _, a := range aggregates {
		if err := conn.RegisterAggregator(a.name, a.ctor, true); err != nil {
			return fmt.Errorf("sqlfunc: register %s: %w", a.name, err)
		}
	}
	return nil
}
