// Package projector maps between image space and sinogram space.
//
// Every projector works on a square Size x Size image whose pixel (row, col)
// has its centre at
//
//	x = col - (Size-1)/2,  y = (Size-1)/2 - row
//
// and produces Bins x views sinograms. Bin b at angle theta collects the ray
//
//	x cos(theta) + y sin(theta) = b - (Bins-1)/2
//
// so theta = 0 integrates image columns. Views are indices into the
// projector's angle set, which lets ordered subsets and the precomputed
// system matrix share one addressing scheme.
package projector

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	perrors "petsysrecon/pkg/errors"
	"petsysrecon/pkg/interpolation"
)

// Projector is a forward projector together with its exact adjoint.
type Projector interface {
	// Size returns the image edge length in pixels
	Size() int

	// Bins returns the number of radial bins per view
	Bins() int

	// Angles returns the full angle set in degrees
	Angles() []float64

	// Project integrates img along the rays of each view, returning a
	// Bins x len(views) sinogram
	Project(img *mat.Dense, views []int) *mat.Dense

	// Backproject applies the transpose of Project to a Bins x len(views)
	// sinogram, returning a Size x Size image
	Backproject(sino *mat.Dense, views []int) *mat.Dense
}

// Geometry selects a projector model
type Geometry int

const (
	LineIntegral Geometry = iota
	Rotation
	SystemMatrix
)

func (g Geometry) String() string {
	switch g {
	case LineIntegral:
		return "LineIntegral"
	case Rotation:
		return "Rotation"
	case SystemMatrix:
		return "SystemMatrix"
	default:
		return "unknown"
	}
}

// ParseGeometry maps a configuration name to a Geometry.
func ParseGeometry(name string) (Geometry, error) {
	switch strings.ToLower(name) {
	case "lineintegral", "line-integral", "line_integral":
		return LineIntegral, nil
	case "rotation":
		return Rotation, nil
	case "systemmatrix", "system-matrix", "system_matrix":
		return SystemMatrix, nil
	default:
		return 0, perrors.NewConfigurationError("geometry", "unknown geometry %q", name)
	}
}

// New builds the projector of geometry g. The kernel is only used by the
// Rotation geometry.
func New(g Geometry, size, bins int, angles []float64, kernel interpolation.Kernel) (Projector, error) {
	if size < 1 || bins < 1 {
		return nil, perrors.NewConfigurationError("projector", "size and bins must be positive, got %d and %d", size, bins)
	}
	if len(angles) == 0 {
		return nil, perrors.NewConfigurationError("projector", "angle set is empty")
	}
	switch g {
	case LineIntegral:
		return NewLineIntegral(size, bins, angles), nil
	case Rotation:
		return NewRotation(size, bins, angles, kernel)
	case SystemMatrix:
		return NewSystemMatrix(size, bins, angles), nil
	default:
		return nil, perrors.NewConfigurationError("geometry", "unknown geometry %d", int(g))
	}
}

// EvenAngles returns n angles evenly spaced over [0, 180] degrees, both
// ends included.
func EvenAngles(n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{0}
	}
	return floats.Span(make([]float64, n), 0, 180)
}

// AllViews returns the indices of every view of p.
func AllViews(p Projector) []int {
	views := make([]int, len(p.Angles()))
	for i := range views {
		views[i] = i
	}
	return views
}

// Sensitivity backprojects a sinogram of ones over views.
func Sensitivity(p Projector, views []int) *mat.Dense {
	ones := mat.NewDense(p.Bins(), len(views), nil)
	ones.Apply(func(_, _ int, _ float64) float64 { return 1 }, ones)
	return p.Backproject(ones, views)
}

// InFieldOfView reports whether pixel (row, col) lies inside the circle
// inscribed in a size x size image.
func InFieldOfView(size, row, col int) bool {
	half := float64(size-1) / 2
	x := float64(col) - half
	y := half - float64(row)
	return x*x+y*y <= half*half
}

// grid holds the coordinate conventions shared by all projectors.
type grid struct {
	size, bins int
	angles     []float64
	cos, sin   []float64
}

func newGrid(size, bins int, angles []float64) grid {
	g := grid{
		size:   size,
		bins:   bins,
		angles: append([]float64(nil), angles...),
		cos:    make([]float64, len(angles)),
		sin:    make([]float64, len(angles)),
	}
	for i, a := range angles {
		rad := a * math.Pi / 180
		g.cos[i] = math.Cos(rad)
		g.sin[i] = math.Sin(rad)
	}
	return g
}

func (g grid) Size() int          { return g.size }
func (g grid) Bins() int          { return g.bins }
func (g grid) Angles() []float64  { return append([]float64(nil), g.angles...) }
func (g grid) centre() float64    { return float64(g.size-1) / 2 }
func (g grid) binOffset() float64 { return float64(g.bins-1) / 2 }

func (g grid) checkImage(img mat.Matrix) {
	r, c := img.Dims()
	if r != g.size || c != g.size {
		panic("projector: image dimension mismatch")
	}
}

func (g grid) checkSinogram(sino mat.Matrix, views []int) {
	r, c := sino.Dims()
	if r != g.bins || c != len(views) {
		panic("projector: sinogram dimension mismatch")
	}
}
