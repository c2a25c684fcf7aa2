package projector

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// LineIntegralProjector computes ray sums with Joseph's method: each ray is
// stepped one pixel at a time along its dominant axis and the image is
// linearly interpolated across the other axis. The step length is folded
// into the weights so that the result approximates the line integral.
type LineIntegralProjector struct {
	grid
}

// NewLineIntegral returns a Joseph projector for size x size images.
func NewLineIntegral(size, bins int, angles []float64) *LineIntegralProjector {
	return &LineIntegralProjector{grid: newGrid(size, bins, angles)}
}

// ray enumerates the pixels crossed by bin b of view v with their weights.
func (p *LineIntegralProjector) ray(v, b int, fn func(row, col int, w float64)) {
	cos, sin := p.cos[v], p.sin[v]
	t := float64(b) - p.binOffset()
	half := p.centre()
	n := p.size

	if math.Abs(cos) >= math.Abs(sin) {
		step := 1 / math.Abs(cos)
		for row := 0; row < n; row++ {
			y := half - float64(row)
			col := (t-y*sin)/cos + half
			linear(col, n, func(c int, w float64) { fn(row, c, w*step) })
		}
		return
	}

	step := 1 / math.Abs(sin)
	for col := 0; col < n; col++ {
		x := float64(col) - half
		row := half - (t-x*cos)/sin
		linear(row, n, func(r int, w float64) { fn(r, col, w*step) })
	}
}

// linear splits a fractional index over its two neighbours, dropping those
// outside [0, n).
func linear(pos float64, n int, fn func(i int, w float64)) {
	i0 := int(math.Floor(pos))
	f := pos - float64(i0)
	if i0 >= 0 && i0 < n && f < 1 {
		fn(i0, 1-f)
	}
	if i1 := i0 + 1; i1 >= 0 && i1 < n && f > 0 {
		fn(i1, f)
	}
}

func (p *LineIntegralProjector) Project(img *mat.Dense, views []int) *mat.Dense {
	p.checkImage(img)
	out := mat.NewDense(p.bins, len(views), nil)
	for j, v := range views {
		for b := 0; b < p.bins; b++ {
			var sum float64
			p.ray(v, b, func(r, c int, w float64) {
				sum += w * img.At(r, c)
			})
			out.Set(b, j, sum)
		}
	}
	return out
}

func (p *LineIntegralProjector) Backproject(sino *mat.Dense, views []int) *mat.Dense {
	p.checkSinogram(sino, views)
	out := mat.NewDense(p.size, p.size, nil)
	for j, v := range views {
		for b := 0; b < p.bins; b++ {
			value := sino.At(b, j)
			if value == 0 {
				continue
			}
			p.ray(v, b, func(r, c int, w float64) {
				out.Set(r, c, out.At(r, c)+w*value)
			})
		}
	}
	return out
}
