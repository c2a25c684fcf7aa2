package projector

import (
	"gonum.org/v1/gonum/mat"

	perrors "petsysrecon/pkg/errors"
	"petsysrecon/pkg/interpolation"
)

// RotationProjector rotates the image into each view's detector frame with
// an interpolation kernel and sums along the ray direction. The detector
// frame has the same pixel grid as the image, so Size must equal Bins.
type RotationProjector struct {
	grid
	kernel interpolation.Kernel
}

// NewRotation returns a rotation projector. It fails unless size == bins.
func NewRotation(size, bins int, angles []float64, kernel interpolation.Kernel) (*RotationProjector, error) {
	if size != bins {
		return nil, perrors.NewConfigurationError("projector",
			"rotation geometry needs image size equal to bins, got %d and %d", size, bins)
	}
	return &RotationProjector{grid: newGrid(size, bins, angles), kernel: kernel}, nil
}

// Kernel returns the interpolation kernel in use.
func (p *RotationProjector) Kernel() interpolation.Kernel { return p.kernel }

// source returns the fractional image position that detector-frame pixel
// (r, c) of view v is resampled from. Column c is the radial coordinate and
// row r runs along the ray.
func (p *RotationProjector) source(v, r, c int) (row, col float64) {
	half := p.centre()
	t := float64(c) - half
	s := half - float64(r)
	x := t*p.cos[v] - s*p.sin[v]
	y := t*p.sin[v] + s*p.cos[v]
	return half - y, x + half
}

func (p *RotationProjector) Project(img *mat.Dense, views []int) *mat.Dense {
	p.checkImage(img)
	out := mat.NewDense(p.bins, len(views), nil)
	for j, v := range views {
		for c := 0; c < p.size; c++ {
			var sum float64
			for r := 0; r < p.size; r++ {
				row, col := p.source(v, r, c)
				sum += p.kernel.Sample(img, row, col)
			}
			out.Set(c, j, sum)
		}
	}
	return out
}

func (p *RotationProjector) Backproject(sino *mat.Dense, views []int) *mat.Dense {
	p.checkSinogram(sino, views)
	out := mat.NewDense(p.size, p.size, nil)
	for j, v := range views {
		for c := 0; c < p.size; c++ {
			value := sino.At(c, j)
			if value == 0 {
				continue
			}
			for r := 0; r < p.size; r++ {
				row, col := p.source(v, r, c)
				p.kernel.Spread(out, row, col, value)
			}
		}
	}
	return out
}
