package sinogram

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Axis is a set of equal-width bins over [Lo, Hi]. Every bin is half-open
// except the last, which includes Hi.
type Axis struct {
	Lo, Hi float64
	Bins   int
	edges  []float64
}

// NewAxis creates an axis with n bins spanning [lo, hi].
func NewAxis(lo, hi float64, n int) Axis {
	return Axis{Lo: lo, Hi: hi, Bins: n, edges: floats.Span(make([]float64, n+1), lo, hi)}
}

// AxisFromData spans the min/max of values. A single repeated value widens
// to [v-0.5, v+0.5] and no values at all give [0, 1].
func AxisFromData(n int, values ...[]float64) Axis {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vs := range values {
		for _, v := range vs {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	switch {
	case math.IsInf(lo, 1):
		lo, hi = 0, 1
	case lo == hi:
		lo, hi = lo-0.5, hi+0.5
	}
	return NewAxis(lo, hi, n)
}

// Edges returns the Bins+1 bin edges.
func (a Axis) Edges() []float64 { return a.edges }

// Index returns the bin holding v, or -1 when v is outside the axis.
func (a Axis) Index(v float64) int {
	if math.IsNaN(v) || v < a.Lo || v > a.Hi {
		return -1
	}
	if v == a.Hi {
		return a.Bins - 1
	}
	i := sort.Search(len(a.edges), func(k int) bool { return a.edges[k] > v }) - 1
	if i < 0 || i >= a.Bins {
		return -1
	}
	return i
}

// Histogram2D counts the (radial[i], angle[i]) pairs for the given rows
// into a radial.Bins x angle.Bins matrix. Pairs outside either axis are
// dropped.
func Histogram2D(radialAxis, angleAxis Axis, radial, angle []float64, rows []int) *mat.Dense {
	h := mat.NewDense(radialAxis.Bins, angleAxis.Bins, nil)
	for _, r := range rows {
		i := radialAxis.Index(radial[r])
		j := angleAxis.Index(angle[r])
		if i < 0 || j < 0 {
			continue
		}
		h.Set(i, j, h.At(i, j)+1)
	}
	return h
}
