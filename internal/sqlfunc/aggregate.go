package sqlfunc

import (
	"fmt"
	"math"

	"github.com/tuannm99/recsql/internal/record"
)

// Aggregates follow the driver's aggregator protocol: a constructor returns
// a fresh value whose Step is called once per row and Done once per group.

type stdAgg struct {
	ddof int
	n    int
	mean float64
	m2   float64
}

func newStd() *stdAgg  { return &stdAgg{ddof: 1} }
func newStdN() *stdAgg { return &stdAgg{ddof: 0} }

// Step uses Welford's update.
func (a *stdAgg) Step(x any) {
	f, ok := toFloat(x)
	if !ok {
		return
	}
	a.n++
	d := f - a.mean
	a.mean += d / float64(a.n)
	a.m2 += d * (f - a.mean)
}

func (a *stdAgg) Done() (any, error) {
	if a.n <= a.ddof {
		return nil, nil
	}
	return math.Sqrt(a.m2 / float64(a.n-a.ddof)), nil
}

type medianAgg struct {
	data []float64
}

func newMedian() *medianAgg { return &medianAgg{} }

func (a *medianAgg) Step(x any) {
	if f, ok := toFloat(x); ok {
		a.data = append(a.data, f)
	}
}

func (a *medianAgg) Done() (any, error) {
	if len(a.data) == 0 {
		return nil, nil
	}
	return Median(a.data), nil
}

// arrayAgg collects a column into an array value.
type arrayAgg struct {
	data []any
}

func newArray() *arrayAgg { return &arrayAgg{} }

func (a *arrayAgg) Step(x any) {
	if b, ok := x.([]byte); ok && b != nil {
		x = string(b)
	}
	if isNull(x) {
		x = nil
	}
	a.data = append(a.data, x)
}

func (a *arrayAgg) Done() ([]byte, error) {
	return record.EncodeArray(collapse(a.data))
}

// collapse picks the tightest homogeneous slice for vals: all integers give
// []int64, all numbers []float64, all strings []string, anything else []any.
func collapse(vals []any) any {
	ints, floats, strs := true, true, true
	for _, v := range vals {
		switch v.(type) {
		case int64:
			strs = false
		case float64:
			ints, strs = false, false
		case string:
			ints, floats = false, false
		default:
			ints, floats, strs = false, false, false
		}
	}
	switch {
	case len(vals) == 0:
		return []float64{}
	case ints:
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i] = v.(int64)
		}
		return out
	case floats:
		out := make([]float64, len(vals))
		for i, v := range vals {
			out[i], _ = toFloat(v)
		}
		return out
	case strs:
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = v.(string)
		}
		return out
	}
	return vals
}

// binSpec captures bins/xmin/xmax from the first row of a group.
type binSpec struct {
	set    bool
	bins   int
	lo, hi float64
}

func (s *binSpec) capture(bins, xmin, xmax any) error {
	if s.set {
		return nil
	}
	nb, ok := toFloat(bins)
	if !ok || nb != math.Trunc(nb) {
		return fmt.Errorf("sqlfunc: bins must be an integer, got %v", bins)
	}
	if nb < 1 {
		return ErrBadBins
	}
	if nb > MaxBins {
		return ErrTooMany
	}
	lo, ok1 := toFloat(xmin)
	hi, ok2 := toFloat(xmax)
	if !ok1 || !ok2 {
		return fmt.Errorf("sqlfunc: range must be numeric, got (%v, %v)", xmin, xmax)
	}
	s.set, s.bins, s.lo, s.hi = true, int(nb), lo, hi
	return nil
}

// histAgg implements histogram(x, bins, xmin, xmax) and
// distribution(x, bins, xmin, xmax).
type histAgg struct {
	spec   binSpec
	normed bool
	data   []float64
}

func newHistogram() *histAgg    { return &histAgg{} }
func newDistribution() *histAgg { return &histAgg{normed: true} }

func (a *histAgg) Step(x, bins, xmin, xmax any) error {
	if err := a.spec.capture(bins, xmin, xmax); err != nil {
		return err
	}
	if f, ok := toFloat(x); ok {
		a.data = append(a.data, f)
	}
	return nil
}

func (a *histAgg) Done() (any, error) {
	if !a.spec.set {
		return nil, nil
	}
	values, edges, err := Histogram(a.data, nil, a.spec.bins, a.spec.lo, a.spec.hi, a.normed)
	if err != nil {
		return nil, err
	}
	return encodeHist(values, edges)
}

// funcHistAgg implements the regularized histograms fnhistogram(x, y, bins,
// xmin, xmax) that apply fn to the y values binned on x.
type funcHistAgg struct {
	spec binSpec
	fn   func([]float64) float64
	x, y []float64
}

func funcHistogram(fn func([]float64) float64) func() *funcHistAgg {
	return func() *funcHistAgg { return &funcHistAgg{fn: fn} }
}

func (a *funcHistAgg) Step(x, y, bins, xmin, xmax any) error {
	if err := a.spec.capture(bins, xmin, xmax); err != nil {
		return err
	}
	xf, ok1 := toFloat(x)
	yf, ok2 := toFloat(y)
	if ok1 && ok2 {
		a.x = append(a.x, xf)
		a.y = append(a.y, yf)
	}
	return nil
}

func (a *funcHistAgg) Done() (any, error) {
	if !a.spec.set {
		return nil, nil
	}
	values, edges, err := RegularizedFunction(a.x, a.y, a.fn, a.spec.bins, a.spec.lo, a.spec.hi)
	if err != nil {
		return nil, err
	}
	return encodeHist(values, edges)
}
