// Package tables reads text tables (reStructuredText simple tables and
// CSV) into records.
package tables

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tuannm99/recsql/internal/convert"
	"github.com/tuannm99/recsql/internal/record"
)

var ErrUnknownFormat = errors.New("tables: unknown file format")

// ParseError signifies a failure to parse a table.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return "tables: " + e.Msg }

// Table is a parsed text table.
type Table struct {
	Name    string
	Caption string
	Names   []string
	Records [][]any
}

// RecArray converts the parsed records into a record array.
func (t *Table) RecArray() (*record.RecArray, error) {
	return record.NewRecArray(t.Names, t.Records)
}

// Options controls how cells are converted.
type Options struct {
	// Autoconvert turns on the special value mapping and tuple splitting
	// for reST cells. CSV cells always get the mapping unless Plain is set.
	Autoconvert bool
	Mode        convert.Mode
	Mapping     map[string]any
	// Plain limits CSV cells to int/float/string conversion.
	Plain bool
	// NoSplit keeps autoconverted reST fields whole. CSV fields are only
	// split when Sep is given.
	NoSplit bool
	Sep     string
	// Encoding is the IANA name of the CSV source encoding (default utf-8).
	Encoding string
	// Name overrides the table name found in the source.
	Name string
}

// ReadFile dispatches on the file extension: .rst and .txt are reST simple
// tables, .csv is comma separated.
func ReadFile(path string, opts Options) (*Table, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "rst", "txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ParseReST(string(data), opts)
	case "csv":
		return ReadCSVFile(path, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

var nonName = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// MakeName returns a string usable as a SQL identifier: illegal characters
// become '_' and a leading digit gets the "N" prefix. An empty s is
// replaced by def.
func MakeName(s string, def string) string {
	if s == "" {
		s = def
	}
	s = nonName.ReplaceAllString(s, "_")
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "N" + s
	}
	return s
}

func makeNames(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = MakeName(h, strconv.Itoa(i))
	}
	return out
}
