package projector

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// SystemMatrixProjector precomputes the dense system matrix whose entry
// (view*Bins+bin, row*Size+col) is the length of the ray through the pixel,
// following Siddon's plane-crossing method. Projection and backprojection
// are matrix-vector products on the rows of the selected views.
type SystemMatrixProjector struct {
	grid
	matrix *mat.Dense
}

// NewSystemMatrix computes the (views*bins) x (size*size) system matrix.
func NewSystemMatrix(size, bins int, angles []float64) *SystemMatrixProjector {
	p := &SystemMatrixProjector{grid: newGrid(size, bins, angles)}
	p.matrix = mat.NewDense(len(angles)*bins, size*size, nil)
	for v := range angles {
		for b := 0; b < bins; b++ {
			row := v*bins + b
			p.siddon(v, b, func(r, c int, length float64) {
				idx := r*size + c
				p.matrix.Set(row, idx, p.matrix.At(row, idx)+length)
			})
		}
	}
	return p
}

// Matrix returns the system matrix. It must not be modified.
func (p *SystemMatrixProjector) Matrix() mat.Matrix { return p.matrix }

const siddonEps = 1e-12

// siddon walks bin b of view v across the pixel grid, reporting the
// intersection length with every pixel it crosses.
func (p *SystemMatrixProjector) siddon(v, b int, fn func(row, col int, length float64)) {
	cos, sin := p.cos[v], p.sin[v]
	t := float64(b) - p.binOffset()
	half := float64(p.size) / 2

	// Points on the ray are (t*cos - a*sin, t*sin + a*cos).
	x0, y0 := t*cos, t*sin
	dx, dy := -sin, cos

	lo, hi := math.Inf(-1), math.Inf(1)
	clipAxis := func(origin, dir float64) bool {
		if math.Abs(dir) < siddonEps {
			return math.Abs(origin) < half
		}
		a1 := (-half - origin) / dir
		a2 := (half - origin) / dir
		if a1 > a2 {
			a1, a2 = a2, a1
		}
		lo = math.Max(lo, a1)
		hi = math.Min(hi, a2)
		return true
	}
	if !clipAxis(x0, dx) || !clipAxis(y0, dy) || hi-lo <= siddonEps {
		return
	}

	alphas := []float64{lo, hi}
	addPlanes := func(origin, dir float64) {
		if math.Abs(dir) < siddonEps {
			return
		}
		for i := 0; i <= p.size; i++ {
			a := (float64(i) - half - origin) / dir
			if a > lo && a < hi {
				alphas = append(alphas, a)
			}
		}
	}
	addPlanes(x0, dx)
	addPlanes(y0, dy)
	sort.Float64s(alphas)

	for i := 1; i < len(alphas); i++ {
		length := alphas[i] - alphas[i-1]
		if length <= siddonEps {
			continue
		}
		mid := (alphas[i] + alphas[i-1]) / 2
		x := x0 + mid*dx
		y := y0 + mid*dy
		col := clampIndex(int(math.Floor(x+half)), p.size)
		row := clampIndex(int(math.Floor(half-y)), p.size)
		fn(row, col, length)
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// block returns the rows of the system matrix belonging to view v.
func (p *SystemMatrixProjector) block(v int) mat.Matrix {
	return p.matrix.Slice(v*p.bins, (v+1)*p.bins, 0, p.size*p.size)
}

func (p *SystemMatrixProjector) Project(img *mat.Dense, views []int) *mat.Dense {
	p.checkImage(img)
	x := flatten(img)
	out := mat.NewDense(p.bins, len(views), nil)
	var y mat.VecDense
	for j, v := range views {
		y.MulVec(p.block(v), x)
		out.SetCol(j, y.RawVector().Data)
	}
	return out
}

func (p *SystemMatrixProjector) Backproject(sino *mat.Dense, views []int) *mat.Dense {
	p.checkSinogram(sino, views)
	acc := mat.NewVecDense(p.size*p.size, nil)
	var tmp mat.VecDense
	for j, v := range views {
		tmp.MulVec(p.block(v).T(), sino.ColView(j))
		acc.AddVec(acc, &tmp)
	}
	return mat.NewDense(p.size, p.size, acc.RawVector().Data)
}

// flatten copies img into a row-major vector.
func flatten(img *mat.Dense) *mat.VecDense {
	r, c := img.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, img.RawRowView(i)...)
	}
	return mat.NewVecDense(r*c, data)
}
