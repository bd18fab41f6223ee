// Package recsql loads record arrays into SQLite tables, queries them with
// SQL and returns the results as record arrays.
//
// The package is a thin facade over internal/engine and internal/record.
package recsql

import (
	"github.com/tuannm99/recsql/internal/engine"
	"github.com/tuannm99/recsql/internal/record"
	"github.com/tuannm99/recsql/internal/sqlfunc"
)

type (
	SQLArray = engine.SQLArray
	RecArray = record.RecArray
	Schema   = record.Schema
	Column   = record.Column

	Option          = engine.Option
	QueryOption     = engine.QueryOption
	SelectionOption = engine.SelectionOption

	Event    = engine.Event
	Observer = engine.Observer

	Hist = sqlfunc.Hist
)

// Record arrays.
var (
	NewRecArray       = record.NewRecArray
	StructsToRecArray = record.FromStructs
)

// Tables.
var (
	FromRecArray = engine.FromRecArray
	FromRecords  = engine.FromRecords
	FromReST     = engine.FromReST
	FromFile     = engine.FromFile
	FromStructs  = engine.FromStructs
	Attach       = engine.Attach
)

// Options.
var (
	WithConnection = engine.WithConnection
	WithDBFile     = engine.WithDBFile
	WithCacheSize  = engine.WithCacheSize
	Temporary      = engine.Temporary
	WithObserver   = engine.WithObserver
	WithConverter  = engine.WithConverter

	AsRecords = engine.AsRecords
	NoCache   = engine.NoCache
	Params    = engine.Params

	SelectionName   = engine.SelectionName
	Force           = engine.Force
	SelectionParams = engine.SelectionParams
)

var (
	ErrInvalidName   = engine.ErrInvalidName
	ErrReservedName  = engine.ErrReservedName
	ErrNoSuchTable   = engine.ErrNoSuchTable
	ErrSelfReference = engine.ErrSelfReference
	ErrClosed        = engine.ErrClosed
	ErrNoColumns     = engine.ErrNoColumns
	ErrMergeMismatch = engine.ErrMergeMismatch
)

// Functions lists the SQL functions available in every query besides the
// SQLite built-ins.
func Functions() []string { return sqlfunc.Names() }

// Histogram decodes the value of a histogram()/distribution() or
// *histogram() aggregate column.
func Histogram(v any) (Hist, error) { return sqlfunc.DecodeHistogram(v) }
