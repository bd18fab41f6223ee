package sqlfunc

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tuannm99/recsql/internal/record"
)

// MaxBins bounds the bin count of every histogram.
const MaxBins = 1 << 20

var (
	ErrBadBins  = errors.New("sqlfunc: number of bins must be positive")
	ErrTooMany  = fmt.Errorf("sqlfunc: number of bins exceeds %d", MaxBins)
	ErrBadRange = errors.New("sqlfunc: max must be larger than min")
	ErrWeights  = errors.New("sqlfunc: weights and data differ in length")
)

// binner maps values to equal width bins over [lo, hi]; the last bin is
// closed on the right.
type binner struct {
	bins   int
	lo, hi float64
}

func newBinner(bins int, lo, hi float64) (binner, error) {
	if bins <= 0 {
		return binner{}, ErrBadBins
	}
	if bins > MaxBins {
		return binner{}, ErrTooMany
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || lo > hi {
		return binner{}, ErrBadRange
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	return binner{bins: bins, lo: lo, hi: hi}, nil
}

func (b binner) index(v float64) int {
	if math.IsNaN(v) || v < b.lo || v > b.hi {
		return -1
	}
	if v == b.hi {
		return b.bins - 1
	}
	i := int((v - b.lo) / (b.hi - b.lo) * float64(b.bins))
	if i >= b.bins {
		i = b.bins - 1
	}
	return i
}

func (b binner) edges() []float64 {
	out := make([]float64, b.bins+1)
	w := (b.hi - b.lo) / float64(b.bins)
	for i := range out {
		out[i] = b.lo + float64(i)*w
	}
	out[b.bins] = b.hi
	return out
}

// Histogram counts data into bins equal width bins over [lo, hi]. Values
// outside the range are ignored. Weights may be nil. With normed the
// result is a probability density that integrates to 1 over the range.
func Histogram(data, weights []float64, bins int, lo, hi float64, normed bool) (values, edges []float64, err error) {
	if weights != nil && len(weights) != len(data) {
		return nil, nil, ErrWeights
	}
	b, err := newBinner(bins, lo, hi)
	if err != nil {
		return nil, nil, err
	}
	values = make([]float64, bins)
	for i, v := range data {
		j := b.index(v)
		if j < 0 {
			continue
		}
		if weights != nil {
			values[j] += weights[i]
		} else {
			values[j]++
		}
	}
	edges = b.edges()
	if normed {
		var total float64
		for _, c := range values {
			total += c
		}
		for i := range values {
			values[i] = values[i] / (total * (edges[i+1] - edges[i]))
		}
	}
	return values, edges, nil
}

// RegularizedFunction bins y by the corresponding x and applies fn to the
// y values of every bin, including empty ones.
func RegularizedFunction(x, y []float64, fn func([]float64) float64, bins int, lo, hi float64) (values, edges []float64, err error) {
	if len(x) != len(y) {
		return nil, nil, fmt.Errorf("sqlfunc: x and y differ in length (%d != %d)", len(x), len(y))
	}
	b, err := newBinner(bins, lo, hi)
	if err != nil {
		return nil, nil, err
	}
	groups := make([][]float64, bins)
	for i, v := range x {
		if j := b.index(v); j >= 0 {
			groups[j] = append(groups[j], y[i])
		}
	}
	values = make([]float64, bins)
	for i, g := range groups {
		values[i] = fn(g)
	}
	return values, b.edges(), nil
}

// Mean of v; NaN when empty.
func Mean(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// StdDev is the standard deviation of v with ddof degrees of freedom
// removed: 0 gives the population value, 1 the sample value. NaN when
// len(v) <= ddof.
func StdDev(v []float64, ddof int) float64 {
	n := len(v)
	if n <= ddof {
		return math.NaN()
	}
	m := Mean(v)
	var ss float64
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(n-ddof))
}

// Median of v; NaN when empty. v is not modified.
func Median(v []float64) float64 {
	n := len(v)
	if n == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

func minOf(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	m := v[0]
	for _, x := range v[1:] {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	m := v[0]
	for _, x := range v[1:] {
		m = math.Max(m, x)
	}
	return m
}

// binStd is the population standard deviation with empty bins as 0.
func binStd(v []float64) float64 {
	return nanToNum(StdDev(v, 0))
}

// ZScore is mean(|v - mean(v)|) / std(v), with NaN mapped to 0.
func ZScore(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	m := Mean(v)
	dev := make([]float64, len(v))
	for i, x := range v {
		dev[i] = math.Abs(x - m)
	}
	return nanToNum(Mean(dev) / StdDev(v, 0))
}

func nanToNum(f float64) float64 {
	switch {
	case math.IsNaN(f):
		return 0
	case math.IsInf(f, 1):
		return math.MaxFloat64
	case math.IsInf(f, -1):
		return -math.MaxFloat64
	}
	return f
}

// Hist is a decoded histogram: len(Edges) == len(Values)+1.
type Hist struct {
	Values []float64
	Edges  []float64
}

// Centers returns the midpoints of the bins.
func (h Hist) Centers() []float64 {
	if len(h.Edges) < 2 {
		return nil
	}
	out := make([]float64, len(h.Edges)-1)
	for i := range out {
		out[i] = (h.Edges[i] + h.Edges[i+1]) / 2
	}
	return out
}

func encodeHist(values, edges []float64) ([]byte, error) {
	return record.EncodeArray([]any{values, edges})
}

// DecodeHistogram decodes the value returned by histogram(),
// distribution() and the *histogram() aggregates. It accepts the raw blob
// or the already decoded tuple.
func DecodeHistogram(v any) (Hist, error) {
	if b, ok := v.([]byte); ok {
		d, err := record.DecodeArray(b)
		if err != nil {
			return Hist{}, err
		}
		v = d
	}
	tup, ok := v.([]any)
	if !ok || len(tup) != 2 {
		return Hist{}, fmt.Errorf("sqlfunc: not a histogram: %T", v)
	}
	values, ok1 := tup[0].([]float64)
	edges, ok2 := tup[1].([]float64)
	if !ok1 || !ok2 || len(edges) != len(values)+1 {
		return Hist{}, fmt.Errorf("sqlfunc: malformed histogram")
	}
	return Hist{Values: values, Edges: edges}, nil
}
