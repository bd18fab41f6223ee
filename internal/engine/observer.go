package engine

import (
	"log/slog"
	"time"
)

// EventType names the SQLArray operation an Event reports on.
type EventType string

const (
	EventLoad      EventType = "load"
	EventAttach    EventType = "attach"
	EventQuery     EventType = "query"
	EventExec      EventType = "exec"
	EventSelection EventType = "selection"
	EventClose     EventType = "close"
)

// Event is emitted after every SQLArray operation that touches the database.
type Event struct {
	Type     EventType
	Table    string
	SQL      string
	Rows     int
	Cached   bool
	Duration time.Duration
	Err      error
}

// Observer receives events synchronously; implementations must be quick
// and safe for concurrent use.
type Observer interface {
	OnEvent(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver logs every event with slog.
type LoggingObserver struct {
	logger *slog.Logger
}

func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

func (lo *LoggingObserver) OnEvent(e Event) {
	attrs := []any{
		"event", e.Type,
		"table", e.Table,
		"rows", e.Rows,
		"cached", e.Cached,
		"duration", e.Duration,
	}
	if e.SQL != "" {
		attrs = append(attrs, "sql", e.SQL)
	}
	if e.Err != nil {
		lo.logger.Warn("sqlarray.event", append(attrs, "err", e.Err)...)
		return
	}
	lo.logger.Debug("sqlarray.event", attrs...)
}
