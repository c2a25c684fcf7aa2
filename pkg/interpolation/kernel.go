// Package interpolation provides the resampling kernels used by the
// rotation-based projector.
package interpolation

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	perrors "petsysrecon/pkg/errors"
)

// Kernel selects an interpolation rule
type Kernel int

const (
	Nearest Kernel = iota
	Bilinear
	Bicubic
)

// Default is the kernel used when none is configured
const Default = Bilinear

func (k Kernel) String() string {
	switch k {
	case Nearest:
		return "nearest"
	case Bilinear:
		return "bilinear"
	case Bicubic:
		return "bicubic"
	default:
		return "unknown"
	}
}

// Parse maps a configuration name to a Kernel.
func Parse(name string) (Kernel, error) {
	switch strings.ToLower(name) {
	case "nearest":
		return Nearest, nil
	case "", "bilinear":
		return Bilinear, nil
	case "bicubic", "cubic":
		return Bicubic, nil
	default:
		return 0, perrors.NewConfigurationError("interpolation", "unknown kernel %q", name)
	}
}

// TapFunc receives one source pixel and its weight.
type TapFunc func(row, col int, weight float64)

// Taps enumerates the source pixels of a rows x cols grid that contribute
// to a sample at the fractional position (row, col), with their weights.
// Pixels outside the grid are skipped, which amounts to zero padding.
//
// Sampling (gather) sums weight*pixel over the taps; its transpose
// (scatter) adds weight*value to each tap. Both use the same taps, so a
// projector built on them has an exact adjoint.
func (k Kernel) Taps(row, col float64, rows, cols int, fn TapFunc) {
	switch k {
	case Nearest:
		r := int(math.Floor(row + 0.5))
		c := int(math.Floor(col + 0.5))
		if r >= 0 && r < rows && c >= 0 && c < cols {
			fn(r, c, 1)
		}

	case Bilinear:
		r0 := int(math.Floor(row))
		c0 := int(math.Floor(col))
		fr := row - float64(r0)
		fc := col - float64(c0)
		for dr := 0; dr <= 1; dr++ {
			wr := 1 - fr
			if dr == 1 {
				wr = fr
			}
			r := r0 + dr
			if wr == 0 || r < 0 || r >= rows {
				continue
			}
			for dc := 0; dc <= 1; dc++ {
				wc := 1 - fc
				if dc == 1 {
					wc = fc
				}
				c := c0 + dc
				if wc == 0 || c < 0 || c >= cols {
					continue
				}
				fn(r, c, wr*wc)
			}
		}

	case Bicubic:
		r0 := int(math.Floor(row))
		c0 := int(math.Floor(col))
		for dr := -1; dr <= 2; dr++ {
			r := r0 + dr
			if r < 0 || r >= rows {
				continue
			}
			wr := keys(row - float64(r))
			if wr == 0 {
				continue
			}
			for dc := -1; dc <= 2; dc++ {
				c := c0 + dc
				if c < 0 || c >= cols {
					continue
				}
				wc := keys(col - float64(c))
				if wc == 0 {
					continue
				}
				fn(r, c, wr*wc)
			}
		}
	}
}

// Sample interpolates img at the fractional position (row, col).
func (k Kernel) Sample(img *mat.Dense, row, col float64) float64 {
	rows, cols := img.Dims()
	var v float64
	k.Taps(row, col, rows, cols, func(r, c int, w float64) {
		v += w * img.At(r, c)
	})
	return v
}

// Spread adds value at the fractional position (row, col) into img,
// distributing it over the taps. It is the transpose of Sample.
func (k Kernel) Spread(img *mat.Dense, row, col, value float64) {
	rows, cols := img.Dims()
	k.Taps(row, col, rows, cols, func(r, c int, w float64) {
		img.Set(r, c, img.At(r, c)+w*value)
	})
}

// keys is the Keys cubic convolution kernel with a = -0.5.
func keys(x float64) float64 {
	const a = -0.5
	x = math.Abs(x)
	switch {
	case x < 1:
		return (a+2)*x*x*x - (a+3)*x*x + 1
	case x < 2:
		return a*x*x*x - 5*a*x*x + 8*a*x - 4*a
	default:
		return 0
	}
}
