package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sinogram is a stack of 2-D sinograms, one per axial slice.
type Sinogram struct {
	// Slices holds the axial slice labels in ascending order
	Slices []int

	// Data holds one Distances x Angles matrix per slice, in Slices order
	Data []*mat.Dense
}

// NewSinogram allocates a zeroed sinogram for the given slice labels.
func NewSinogram(slices []int, distances, angles int) *Sinogram {
	s := &Sinogram{
		Slices: append([]int(nil), slices...),
		Data:   make([]*mat.Dense, len(slices)),
	}
	for i := range s.Data {
		s.Data[i] = mat.NewDense(distances, angles, nil)
	}
	return s
}

// Shape returns (slices, distances, angles). An empty sinogram reports
// zero for every dimension.
func (s *Sinogram) Shape() (int, int, int) {
	if len(s.Data) == 0 {
		return 0, 0, 0
	}
	r, c := s.Data[0].Dims()
	return len(s.Data), r, c
}

// Validate checks that every slice has the same dimensions.
func (s *Sinogram) Validate() error {
	if len(s.Data) != len(s.Slices) {
		return fmt.Errorf("sinogram has %d slice labels but %d slices", len(s.Slices), len(s.Data))
	}
	_, r0, c0 := s.Shape()
	for i, d := range s.Data {
		r, c := d.Dims()
		if r != r0 || c != c0 {
			return fmt.Errorf("slice %d is %dx%d, expected %dx%d", s.Slices[i], r, c, r0, c0)
		}
	}
	return nil
}

// Volume represents a reconstructed image stack, one 2-D image per
// sinogram slice
type Volume struct {
	// Slices holds the axial slice labels the images were reconstructed from
	Slices []int

	// Images holds one Size x Size image per slice; row 0 is the top of the
	// field of view
	Images []*mat.Dense
}

// Dims returns (depth, height, width) of the volume.
func (v *Volume) Dims() (int, int, int) {
	if len(v.Images) == 0 {
		return 0, 0, 0
	}
	r, c := v.Images[0].Dims()
	return len(v.Images), r, c
}

// Flatten returns the voxel values in row-major (slice, row, col) order.
func (v *Volume) Flatten() []float64 {
	d, h, w := v.Dims()
	out := make([]float64, 0, d*h*w)
	for _, img := range v.Images {
		for r := 0; r < h; r++ {
			out = append(out, img.RawRowView(r)...)
		}
	}
	return out
}
