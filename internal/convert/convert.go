// Package convert turns raw text table cells into Go values.
package convert

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrUnknownMode = errors.New("convert: unknown mode")

type Mode string

const (
	// ModeSimple converts with BestType only.
	ModeSimple Mode = "simple"
	// ModeSinglet converts with BestType and then applies the mapping.
	ModeSinglet Mode = "singlet"
	// ModeFancy optionally splits the field into a tuple and converts each
	// element like ModeSinglet.
	ModeFancy Mode = "fancy"
	// ModeUnicode leaves every value as a string.
	ModeUnicode Mode = "unicode"
)

// DefaultMapping returns the special values recognized by ModeSinglet and
// ModeFancy.
func DefaultMapping() map[string]any {
	return map[string]any{
		"---": nil, "None": nil, "none": nil, "": nil,
		"True": true, "x": true, "X": true, "yes": true,
		"False": false, "no": false, "-": false,
	}
}

// Autoconverter converts a text field into a Go value.
type Autoconverter struct {
	Mode    Mode
	Mapping map[string]any
	// Split turns a field into a tuple ([]any) in ModeFancy. Sep is the
	// separator; an empty Sep splits on runs of white space.
	Split  bool
	Sep    string
	Active bool
}

// New returns an active converter with the default mapping.
func New(mode Mode) (*Autoconverter, error) {
	a := &Autoconverter{Mode: mode, Mapping: DefaultMapping(), Active: true}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Autoconverter) Validate() error {
	switch a.Mode {
	case ModeSimple, ModeSinglet, ModeFancy, ModeUnicode:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, a.Mode)
}

// Convert converts s according to the mode. An inactive converter returns
// s unchanged.
func (a *Autoconverter) Convert(s string) any {
	if a == nil || !a.Active {
		return s
	}
	switch a.Mode {
	case ModeSimple:
		return BestType(s)
	case ModeSinglet:
		return a.singlet(s)
	case ModeFancy:
		return a.fancy(s)
	default:
		return s
	}
}

func (a *Autoconverter) singlet(s string) any {
	x := BestType(s)
	str, ok := x.(string)
	if !ok {
		return x
	}
	mapping := a.Mapping
	if mapping == nil {
		mapping = DefaultMapping()
	}
	if v, hit := mapping[str]; hit {
		return v
	}
	return x
}

func (a *Autoconverter) fancy(field string) any {
	if !a.Split {
		return a.singlet(field)
	}
	var parts []string
	if a.Sep == "" {
		parts = strings.Fields(field)
	} else {
		parts = strings.Split(field, a.Sep)
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return a.singlet(parts[0])
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = a.singlet(p)
	}
	return out
}

var quoted = regexp.MustCompile(`^['"](.*)["']$`)

// BestType converts s to the most useful type: int64, float64 or string.
// A value in single or double quotes is returned as the enclosed string,
// so '001' stays "001" while 001 becomes 1.
func BestType(s string) any {
	s = strings.TrimSpace(s)
	if m := quoted.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
