package reconstruction

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"petsysrecon/pkg/projector"
)

// SliceMetrics holds the quality figures recorded for one reconstructed
// slice.
type SliceMetrics struct {
	// Slice is the axial slice label
	Slice int

	// Residual is the relative data mismatch ||y - P x|| / ||y||. Lower
	// values mean the image explains the measured sinogram better.
	Residual float64

	// PeakRow and PeakCol locate the hottest voxel
	PeakRow, PeakCol int
}

// Quality compares a reconstruction with a known reference image, as when
// reconstructing a phantom.
type Quality struct {
	// RMSE is the root mean square voxel difference after both images are
	// scaled to unit maximum
	RMSE float64

	// Correlation is the Pearson correlation of the voxel values
	Correlation float64

	// PeakDistance is the distance in voxels between the two hottest voxels
	PeakDistance float64
}

// Residual returns ||y - P x|| / ||y|| over all views of p. A zero
// sinogram yields ||P x||.
func Residual(p projector.Projector, sino, img *mat.Dense) float64 {
	est := p.Project(img, projector.AllViews(p))
	var diff mat.Dense
	diff.Sub(sino, est)
	num := mat.Norm(&diff, 2)
	den := mat.Norm(sino, 2)
	if den == 0 {
		return num
	}
	return num / den
}

// Peak returns the position of the largest voxel. Ties resolve to the
// first in row-major order.
func Peak(img *mat.Dense) (row, col int) {
	_, c := img.Dims()
	idx := floats.MaxIdx(flat(img))
	return idx / c, idx % c
}

// Compare computes the quality of img against ref.
func Compare(ref, img *mat.Dense) Quality {
	a := normalised(flat(ref))
	b := normalised(flat(img))

	q := Quality{RMSE: calculateRMSE(a, b)}
	if stat.Variance(a, nil) > 0 && stat.Variance(b, nil) > 0 {
		q.Correlation = stat.Correlation(a, b, nil)
	}
	r0, c0 := Peak(ref)
	r1, c1 := Peak(img)
	q.PeakDistance = math.Hypot(float64(r1-r0), float64(c1-c0))
	return q
}

// calculateRMSE computes the root mean square error
func calculateRMSE(reference, reconstructed []float64) float64 {
	n := len(reference)
	if n != len(reconstructed) || n == 0 {
		return 0
	}
	return floats.Distance(reference, reconstructed, 2) / math.Sqrt(float64(n))
}

func normalised(v []float64) []float64 {
	if m := floats.Max(v); m > 0 {
		floats.Scale(1/m, v)
	}
	return v
}

func flat(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}
