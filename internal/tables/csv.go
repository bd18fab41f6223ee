package tables

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/tuannm99/recsql/internal/convert"
)

// DefaultCSVName is the table name of CSV sources without an override.
const DefaultCSVName = "CSV"

// ReadCSVFile reads a CSV file; see ReadCSV.
func ReadCSVFile(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadCSV(f, opts)
}

// ReadCSV reads a CSV table. Column headers always come from the first row
// and are turned into legal names; empty rows are discarded.
func ReadCSV(r io.Reader, opts Options) (*Table, error) {
	src, err := decodeReader(r, opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ParseError{Msg: "csv: no header row"}
	}
	if err != nil {
		return nil, fmt.Errorf("tables: read csv header: %w", err)
	}

	conv, err := cellConverter(opts, convert.ModeSinglet, !opts.Plain, opts.Sep != "")
	if err != nil {
		return nil, err
	}

	var records [][]any
	for {
		line, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tables: read csv: %w", err)
		}
		if blank(line) {
			continue
		}
		row := make([]any, len(line))
		for i, cell := range line {
			row[i] = conv.Convert(cell)
		}
		records = append(records, row)
	}

	name := DefaultCSVName
	if opts.Name != "" {
		name = opts.Name
	}
	return &Table{
		Name:    name,
		Names:   makeNames(header),
		Records: records,
	}, nil
}

func blank(line []string) bool {
	for _, s := range line {
		if s != "" {
			return false
		}
	}
	return true
}

func decodeReader(r io.Reader, name string) (io.Reader, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return r, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("tables: encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("tables: encoding %q is not supported", name)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
