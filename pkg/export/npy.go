package export

import (
	"fmt"
	"io"
	"reflect"

	"github.com/sbinet/npyio"

	"petsysrecon/internal/models"
)

// WriteNPY writes vol as a .npy array of little-endian float64 with shape
// (slices, rows, cols) in C order.
func WriteNPY(w io.Writer, vol *models.Volume) error {
	depth, height, width, err := checkVolume(vol)
	if err != nil {
		return err
	}

	// npyio derives the array shape from nested Go arrays.
	row := reflect.ArrayOf(width, reflect.TypeOf(float64(0)))
	cube := reflect.New(reflect.ArrayOf(depth, reflect.ArrayOf(height, row)))
	for s, img := range vol.Images {
		for r := 0; r < height; r++ {
			reflect.Copy(cube.Elem().Index(s).Index(r), reflect.ValueOf(img.RawRowView(r)))
		}
	}

	bw, flush := buffered(w)
	if err := npyio.Write(bw, cube.Interface()); err != nil {
		return fmt.Errorf("error encoding npy array: %w", err)
	}
	return flush()
}
