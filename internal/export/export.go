// Package export writes record arrays as CSV, LaTeX, YAML or text tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/tuannm99/recsql/internal/record"
)

// WriteCSV writes a header line and one line per row; nil becomes "".
func WriteCSV(w io.Writer, ra *record.RecArray) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ra.Names()); err != nil {
		return err
	}
	for _, row := range ra.Rows {
		if err := cw.Write(cells(row, "")); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Rec2CSV writes ra to filename as CSV and returns filename.
func Rec2CSV(ra *record.RecArray, filename string) (string, error) {
	return filename, toFile(filename, func(w io.Writer) error { return WriteCSV(w, ra) })
}

// LaTeX renders ra as a tabular environment with one centered column per
// field; nil becomes empty.
func LaTeX(ra *record.RecArray, empty string) string {
	var b strings.Builder
	names := ra.Names()
	fmt.Fprintf(&b, "\\begin{tabular}{%s}\n", strings.Repeat("c", len(names)))
	b.WriteString("\\hline\n")
	b.WriteString(strings.Join(names, " & ") + "\\\\\n")
	b.WriteString("\\hline\n")
	for _, row := range ra.Rows {
		b.WriteString(strings.Join(cells(row, empty), " & ") + "\\\\\n")
	}
	b.WriteString("\\hline\n")
	b.WriteString("\\end{tabular}\n")
	return b.String()
}

// Rec2LaTeX writes LaTeX(ra, empty) to filename and returns filename.
func Rec2LaTeX(ra *record.RecArray, filename, empty string) (string, error) {
	return filename, toFile(filename, func(w io.Writer) error {
		_, err := io.WriteString(w, LaTeX(ra, empty))
		return err
	})
}

// WriteYAML writes ra as a sequence of mappings that keep column order.
func WriteYAML(w io.Writer, ra *record.RecArray) error {
	names := ra.Names()
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range ra.Rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for c, v := range row {
			var val yaml.Node
			if err := val.Encode(yamlValue(v)); err != nil {
				return fmt.Errorf("export: column %s: %w", names[c], err)
			}
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: names[c]}, &val)
		}
		seq.Content = append(seq.Content, m)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(seq); err != nil {
		return err
	}
	return enc.Close()
}

// Rec2YAML writes ra to filename as YAML.
func Rec2YAML(ra *record.RecArray, filename string) error {
	return toFile(filename, func(w io.Writer) error { return WriteYAML(w, ra) })
}

func yamlValue(v any) any {
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("%x", b)
	}
	return v
}

// WriteTable renders ra as an aligned text table.
func WriteTable(w io.Writer, ra *record.RecArray, null string) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(ra.Names())
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	for _, row := range ra.Rows {
		tw.Append(cells(row, null))
	}
	tw.Render()
}

func cells(row []any, null string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = record.FormatValue(v, null)
	}
	return out
}

func toFile(filename string, write func(io.Writer) error) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	return write(f)
}
