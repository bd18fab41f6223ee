package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/google/shlex"
	"github.com/mattn/go-runewidth"
)

var (
	errText    = color.New(color.FgRed).SprintFunc()
	promptText = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// ---- History (own file) ----

type History struct {
	path  string
	lines []string
}

func NewHistory(path string) *History {
	return &History{path: path}
}

func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	return sc.Err()
}

func (h *History) Append(stmt string) error {
	stmt = compactOneLine(stmt)
	if stmt == "" {
		return nil
	}
	h.lines = append(h.lines, stmt)
	if h.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = fmt.Fprintln(f, stmt)
	return err
}

func (h *History) Print(w io.Writer, last int) {
	if last <= 0 || last > len(h.lines) {
		last = len(h.lines)
	}
	for i := len(h.lines) - last; i < len(h.lines); i++ {
		fmt.Fprintf(w, "%5d  %s\n", i+1, h.lines[i])
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".recsql_history"
	}
	return filepath.Join(home, ".recsql_history")
}

// compactOneLine collapses newlines, tabs and runs of spaces.
func compactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ---- statement and command parsing ----

// statementComplete checks if we have a terminating ';' outside quotes.
func statementComplete(buf string) bool {
	var quote rune
	for _, r := range buf {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ';':
			return true
		}
	}
	return false
}

type command struct {
	name string
	args []string
	// rest is the unparsed text after the name, for arguments that are SQL.
	rest string
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") || line == "quit" || line == "exit"
}

// parseCommand splits a backslash command with shell quoting rules.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "quit" || line == "exit" {
		return command{name: "q"}, nil
	}
	fields, err := shlex.Split(strings.TrimPrefix(line, "\\"))
	if err != nil {
		return command{}, fmt.Errorf("parse %q: %w", line, err)
	}
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	_, rest := cutWord(strings.TrimPrefix(line, "\\"))
	return command{name: fields[0], args: fields[1:], rest: rest}, nil
}

// cutWord splits s at the first run of whitespace.
func cutWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// ---- result printing ----

// printRows writes an aligned table; widths count terminal cells so wide
// runes line up.
func printRows(w io.Writer, cols []string, rows [][]string) {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = runewidth.StringWidth(c)
	}
	for _, row := range rows {
		for i := range cols {
			if i < len(row) {
				widths[i] = max(widths[i], runewidth.StringWidth(row[i]))
			}
		}
	}

	printRow := func(values []string) {
		for i := range cols {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			v := ""
			if i < len(values) {
				v = values[i]
			}
			fmt.Fprint(w, runewidth.FillRight(v, widths[i]))
		}
		fmt.Fprintln(w)
	}

	printRow(cols)
	for i := range cols {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		printRow(row)
	}
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

// ---- REPL loop ----

type shell struct {
	prompt  string
	history *History
	out     io.Writer

	// exec runs one complete statement.
	exec func(ctx context.Context, stmt string) error
	// command handles everything but \q, \history and \help.
	command func(ctx context.Context, c command) error
	help    string
}

func (sh *shell) run(ctx context.Context, histMax int) error {
	_ = sh.history.Load(histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptText(sh.prompt + "> "),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// preload history into readline so up-arrow works immediately
	for _, line := range sh.history.lines {
		_ = rl.SaveHistory(line)
	}

	var buf strings.Builder
	reset := func() {
		buf.Reset()
		rl.SetPrompt(promptText(sh.prompt + "> "))
	}

	fmt.Fprintln(sh.out, `type \help for help`)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			// Ctrl+C clears current buffer
			if buf.Len() > 0 {
				reset()
			}
			continue
		}
		if err != nil {
			fmt.Fprintln(sh.out)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && isMetaCommand(line) {
			quit, err := sh.meta(ctx, line)
			if err != nil {
				fmt.Fprintln(sh.out, errText("error: ", err))
			}
			if quit {
				return nil
			}
			continue
		}

		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(line)
		if !statementComplete(buf.String()) {
			rl.SetPrompt(promptText(strings.Repeat(".", len(sh.prompt)) + "> "))
			continue
		}

		stmt := strings.TrimSpace(buf.String())
		reset()
		_ = sh.history.Append(stmt)
		_ = rl.SaveHistory(compactOneLine(stmt))

		if err := sh.exec(ctx, stmt); err != nil {
			fmt.Fprintln(sh.out, errText("error: ", err))
		}
	}
}

func (sh *shell) meta(ctx context.Context, line string) (bool, error) {
	c, err := parseCommand(line)
	if err != nil {
		return false, err
	}
	switch c.name {
	case "q":
		return true, nil
	case "help":
		fmt.Fprintln(sh.out, sh.help)
		return false, nil
	case "history":
		sh.history.Print(sh.out, 50)
		return false, nil
	}
	return false, sh.command(ctx, c)
}
