// Package sqlfunc holds the extra SQL functions recsql installs on every
// SQLite connection: numeric scalars, statistics aggregates and
// histogram aggregates.
package sqlfunc

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Arguments arrive from the driver as int64, float64, string or []byte;
// SQL NULL arrives as a nil []byte.

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case []byte:
		if x == nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	}
	return 0, false
}

func toText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		if x == nil {
			return "", false
		}
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	}
	return "", false
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	b, ok := v.([]byte)
	return ok && b == nil
}

// Sqrt is sqrt(x); NULL for NULL or negative x.
func Sqrt(x any) any {
	f, ok := toFloat(x)
	if !ok || f < 0 {
		return nil
	}
	return math.Sqrt(f)
}

// Sqr is x*x, keeping integers integral.
func Sqr(x any) any {
	if n, ok := x.(int64); ok {
		return n * n
	}
	f, ok := toFloat(x)
	if !ok {
		return nil
	}
	return f * f
}

// Pow is x**y.
func Pow(x, y any) any {
	a, ok := toFloat(x)
	if !ok {
		return nil
	}
	b, ok := toFloat(y)
	if !ok {
		return nil
	}
	r := math.Pow(a, b)
	if math.IsNaN(r) {
		return nil
	}
	return r
}

// Periodic wraps an angle in degrees into (-180, 180].
func Periodic(x any) any {
	f, ok := toFloat(x)
	if !ok {
		return nil
	}
	return f - 360*math.Ceil((f-180)/360)
}

var patterns sync.Map // string -> *regexp.Regexp

func compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	patterns.Store(pattern, re)
	return re, nil
}

// Match returns 1 when pattern matches at the start of s.
func Match(pattern, s any) (any, error) {
	p, ok1 := toText(pattern)
	str, ok2 := toText(s)
	if !ok1 || !ok2 {
		return nil, nil
	}
	re, err := compile(`^(?:` + p + `)`)
	if err != nil {
		return nil, fmt.Errorf("match: %w", err)
	}
	return boolInt(re.MatchString(str)), nil
}

// Regexp returns 1 when pattern matches anywhere in s. SQLite calls it for
// `s REGEXP pattern`.
func Regexp(pattern, s any) (any, error) {
	p, ok1 := toText(pattern)
	str, ok2 := toText(s)
	if !ok1 || !ok2 {
		return nil, nil
	}
	re, err := compile(p)
	if err != nil {
		return nil, fmt.Errorf("regexp: %w", err)
	}
	return boolInt(re.MatchString(str)), nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

var verbRe = regexp.MustCompile(`%[-+# 0]*[0-9]*(?:\.[0-9]+)?([a-zA-Z])`)

// FFormat formats x with a printf style format such as "%.2f" or "%5d".
// Integers and floats are converted to suit the verb.
func FFormat(format, x any) any {
	f, ok := toText(format)
	if !ok || isNull(x) {
		return nil
	}
	if b, ok := x.([]byte); ok {
		x = string(b)
	}
	if m := verbRe.FindStringSubmatch(f); m != nil {
		switch m[1] {
		case "d", "x", "X", "o", "c", "b":
			if v, ok := x.(float64); ok {
				x = int64(v)
			}
		case "f", "F", "e", "E", "g", "G":
			if v, ok := x.(int64); ok {
				x = float64(v)
			}
		}
	}
	return fmt.Sprintf(f, x)
}
