package export

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"petsysrecon/internal/models"
	perrors "petsysrecon/pkg/errors"
)

// MAT-file level 5 data types and array classes
const (
	miINT8   = 1
	miINT32  = 5
	miUINT32 = 6
	miDOUBLE = 9
	miMATRIX = 14

	mxDouble = 6
)

const matHeaderText = 116

// WriteMAT writes vol as a level 5 MAT-file holding one double array named
// name with dimensions slices x rows x cols.
func WriteMAT(w io.Writer, name string, vol *models.Volume) error {
	depth, height, width, err := checkVolume(vol)
	if err != nil {
		return err
	}
	if name == "" || len(name) > 63 {
		return perrors.NewConfigurationError("variable", "name %q must be 1 to 63 characters", name)
	}

	bw, flush := buffered(w)
	le := binary.LittleEndian

	// 128 byte file header
	text := fmt.Sprintf("MATLAB 5.0 MAT-file, Platform: GLNXA64, Created on: %s", time.Now().UTC().Format(time.ANSIC))
	if len(text) > matHeaderText {
		text = text[:matHeaderText]
	}
	text += strings.Repeat(" ", matHeaderText-len(text))
	if _, err := bw.WriteString(text); err != nil {
		return err
	}
	if _, err := bw.Write(make([]byte, 8)); err != nil {
		return err
	}
	if err := binary.Write(bw, le, uint16(0x0100)); err != nil {
		return err
	}
	if _, err := bw.WriteString("IM"); err != nil {
		return err
	}

	dims := []int32{int32(depth), int32(height), int32(width)}
	count := depth * height * width
	nameLen := padded(len(name))
	dimsLen := padded(4 * len(dims))
	size := 16 + (8 + dimsLen) + (8 + nameLen) + (8 + 8*count)

	// miMATRIX element with its four sub-elements
	for _, v := range []uint32{miMATRIX, uint32(size), miUINT32, 8, mxDouble, 0, miINT32, uint32(4 * len(dims))} {
		if err := binary.Write(bw, le, v); err != nil {
			return err
		}
	}
	if err := binary.Write(bw, le, dims); err != nil {
		return err
	}
	if _, err := bw.Write(make([]byte, dimsLen-4*len(dims))); err != nil {
		return err
	}

	if err := binary.Write(bw, le, []uint32{miINT8, uint32(len(name))}); err != nil {
		return err
	}
	if _, err := bw.WriteString(name); err != nil {
		return err
	}
	if _, err := bw.Write(make([]byte, nameLen-len(name))); err != nil {
		return err
	}

	if err := binary.Write(bw, le, []uint32{miDOUBLE, uint32(8 * count)}); err != nil {
		return err
	}
	// Column-major: the slice index varies fastest.
	var buf [8]byte
	for c := 0; c < width; c++ {
		for r := 0; r < height; r++ {
			for s := 0; s < depth; s++ {
				le.PutUint64(buf[:], math.Float64bits(vol.Images[s].At(r, c)))
				if _, err := bw.Write(buf[:]); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// padded rounds n up to a multiple of 8.
func padded(n int) int {
	return (n + 7) &^ 7
}
