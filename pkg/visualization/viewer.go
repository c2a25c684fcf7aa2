// Package visualization renders reconstructed volumes and sinograms as
// images.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"petsysrecon/internal/models"
)

// Viewer extracts grey-scale sections of a reconstructed volume. The z axis
// runs over slices, y over image rows and x over image columns.
type Viewer struct {
	// volumeData holds the voxels in (slice, row, col) order, scaled so
	// that the hottest voxel is 1
	volumeData []float64

	// dimensions of the volume
	width  int
	height int
	depth  int

	// slices holds the axial labels of the z positions
	slices []int
}

// NewViewer creates a viewer over vol. Negative voxels are shown as black.
func NewViewer(vol *models.Volume) *Viewer {
	depth, height, width := vol.Dims()
	data := vol.Flatten()
	if len(data) > 0 {
		if m := floats.Max(data); m > 0 {
			floats.Scale(1/m, data)
		}
	}
	return &Viewer{
		volumeData: data,
		width:      width,
		height:     height,
		depth:      depth,
		slices:     append([]int(nil), vol.Slices...),
	}
}

func (v *Viewer) gray(idx int) color.Gray16 {
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, v.volumeData[idx]*65535)))}
}

// ExtractSlice extracts a 2D section of the volume along the given axis.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= v.width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.width)
		}
		img = image.NewGray16(image.Rect(0, 0, v.depth, v.height))
		for y := 0; y < v.height; y++ {
			for z := 0; z < v.depth; z++ {
				img.SetGray16(z, y, v.gray(z*v.width*v.height+y*v.width+position))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= v.height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.height)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.depth))
		for z := 0; z < v.depth; z++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, z, v.gray(z*v.width*v.height+position*v.width+x))
			}
		}

	case "z", "Z":
		// XY plane, one reconstructed slice
		if position >= v.depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.depth)
		}
		img = image.NewGray16(image.Rect(0, 0, v.width, v.height))
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				img.SetGray16(x, y, v.gray(position*v.width*v.height+y*v.width+x))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted section as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

// SaveSliceSequence extracts and saves every section along the given axis.
// Sections along z are named after their slice labels.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	var files []string
	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return files, err
		}

		label := pos
		if (axis == "z" || axis == "Z") && pos < len(v.slices) {
			label = v.slices[pos]
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, label))
		if err := v.SaveSlice(img, filename); err != nil {
			return files, err
		}
		files = append(files, filename)
	}

	return files, nil
}
