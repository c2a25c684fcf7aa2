// Package phantom generates synthetic activity distributions, their
// sinograms and simulated coincidence events for testing the pipeline end
// to end.
package phantom

import (
	"gonum.org/v1/gonum/mat"

	"petsysrecon/internal/models"
	"petsysrecon/pkg/projector"
)

// Point returns a size x size image that is zero except for value at
// (row, col).
func Point(size, row, col int, value float64) *mat.Dense {
	img := mat.NewDense(size, size, nil)
	img.Set(row, col, value)
	return img
}

// Disk returns a size x size image with value inside the disk of the given
// radius centred at (x, y), in the projector's centred pixel coordinates.
func Disk(size int, x, y, radius, value float64) *mat.Dense {
	img := mat.NewDense(size, size, nil)
	half := float64(size-1) / 2
	img.Apply(func(r, c int, _ float64) float64 {
		dx := float64(c) - half - x
		dy := half - float64(r) - y
		if dx*dx+dy*dy <= radius*radius {
			return value
		}
		return 0
	}, img)
	return img
}

// Sinogram projects img over every view of p.
func Sinogram(p projector.Projector, img *mat.Dense) *mat.Dense {
	return p.Project(img, projector.AllViews(p))
}

// Stack projects one image per slice label into a sinogram stack.
func Stack(p projector.Projector, slices []int, images []*mat.Dense) *models.Sinogram {
	s := &models.Sinogram{
		Slices: append([]int(nil), slices...),
		Data:   make([]*mat.Dense, len(images)),
	}
	for i, img := range images {
		s.Data[i] = Sinogram(p, img)
	}
	return s
}
