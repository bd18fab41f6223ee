package tables

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tuannm99/recsql/internal/convert"
)

// tableRe finds a single simple table:
//
//	Table[<NAME>]: <CAPTION>
//	============  ===========
//	<COLNAME 1>   <COLNAME 2>
//	============  ===========
//	<VALUE>       <VALUE>
//	============  ===========
var tableRe = regexp.MustCompile(`(?ms)` +
	`^[ \t]*Table(\[(?P<name>\w*)\])?:\s*(?P<title>[^\n]*)[ \t]*$` +
	`\n+` +
	`^(?P<toprule>[ \t]*==+[ \t=]+)[ \t]*$` +
	`\n+` +
	`^(?P<fields>[\w\t ]+?)$` +
	`\n+` +
	`^(?P<midrule>[ \t]*==+[ \t=]+)[ \t]*$` +
	`\n+` +
	`(?P<data>.*?)` +
	`\n+` +
	`^(?P<botrule>[ \t]*==+[ \t=]+)[ \t]*$`)

// white-space lines and '----' dividers are not data
var emptyRow = regexp.MustCompile(`^[-\s]*$`)

type span struct{ start, end int }

// ParseReST parses the only simple table in text. Rows must fit on one line;
// column extents come from the '=' rules, which must all be identical.
func ParseReST(text string, opts Options) (*Table, error) {
	m := tableRe.FindStringSubmatch(text)
	if m == nil {
		return nil, &ParseError{Msg: "table cannot be parsed"}
	}
	group := func(name string) string { return m[tableRe.SubexpIndex(name)] }

	rule := strings.TrimRight(group("toprule"), " \t")
	if rule != strings.TrimRight(group("midrule"), " \t") ||
		rule != strings.TrimRight(group("botrule"), " \t") {
		return nil, &ParseError{Msg: "table rules differ from each other (check white space)"}
	}

	names := strings.Fields(group("fields"))
	spans := ruleSpans(rule)
	if len(spans) != len(names) {
		return nil, &ParseError{Msg: fmt.Sprintf(
			"number of field names (%d) does not match number of fields (%d)",
			len(names), len(spans))}
	}

	conv, err := cellConverter(opts, convert.ModeFancy, opts.Autoconvert, !opts.NoSplit)
	if err != nil {
		return nil, err
	}
	var records [][]any
	for _, line := range strings.Split(group("data"), "\n") {
		if emptyRow.MatchString(line) {
			continue
		}
		row := make([]any, len(spans))
		for i, sp := range spans {
			row[i] = conv.Convert(cut(line, sp.start, sp.end+1))
		}
		records = append(records, row)
	}

	name := group("name")
	if opts.Name != "" {
		name = opts.Name
	}
	return &Table{
		Name:    name,
		Caption: strings.TrimSpace(group("title")),
		Names:   names,
		Records: records,
	}, nil
}

// ruleSpans returns the [first,last] character columns of each '=' group.
func ruleSpans(rule string) []span {
	var (
		spans   []span
		inField = strings.HasPrefix(rule, "=")
		start   int
	)
	last := len(rule) - 1
	for c := 0; c < len(rule); c++ {
		ch := rule[c]
		if !inField && ch == '=' {
			start = c
			inField = true
		}
		if inField && (ch == ' ' || ch == '\t' || c == last) {
			spans = append(spans, span{start: start, end: c})
			inField = false
		}
	}
	return spans
}

// cut is s[start:end] clamped to the string bounds.
func cut(s string, start, end int) string {
	if start >= len(s) {
		return ""
	}
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

// cellConverter builds the converter for table cells. An inactive one
// only gives plain int/float/string conversion.
func cellConverter(opts Options, def convert.Mode, active, split bool) (*convert.Autoconverter, error) {
	if !active {
		return &convert.Autoconverter{Mode: convert.ModeSimple, Active: true}, nil
	}
	mode := opts.Mode
	if mode == "" {
		mode = def
	}
	a := &convert.Autoconverter{
		Mode:    mode,
		Mapping: opts.Mapping,
		Split:   split,
		Sep:     opts.Sep,
		Active:  true,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
