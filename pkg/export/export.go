// Package export writes reconstructed volumes in formats read by the
// analysis tools downstream: NumPy .npy and MATLAB level 5 .mat.
package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"petsysrecon/internal/models"
	perrors "petsysrecon/pkg/errors"
)

// MATVariable is the variable name of the volume in .mat files
const MATVariable = "reconstructed_image"

// Format is an output file format
type Format string

const (
	NPY Format = "npy"
	MAT Format = "mat"
)

// ParseFormat maps a configuration name to a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(name, "."))); f {
	case NPY, MAT:
		return f, nil
	default:
		return "", perrors.NewConfigurationError("output.formats", "unknown format %q", name)
	}
}

// Save writes vol to prefix.<format> for every format and returns the paths
// written.
func Save(prefix string, formats []string, vol *models.Volume) ([]string, error) {
	parsed := make([]Format, 0, len(formats))
	for _, name := range formats {
		f, err := ParseFormat(name)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, f)
	}

	var written []string
	for _, f := range parsed {
		path := prefix + "." + string(f)
		if err := SaveFile(path, f, vol); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// SaveFile writes vol to path in format f, creating parent directories.
func SaveFile(path string, f Format, vol *models.Volume) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer file.Close()

	switch f {
	case NPY:
		err = WriteNPY(file, vol)
	case MAT:
		err = WriteMAT(file, MATVariable, vol)
	default:
		err = perrors.NewConfigurationError("output.formats", "unknown format %q", f)
	}
	if err != nil {
		return fmt.Errorf("error writing %s: %w", path, err)
	}
	return file.Close()
}

func checkVolume(vol *models.Volume) (depth, height, width int, err error) {
	if vol == nil || len(vol.Images) == 0 {
		return 0, 0, 0, perrors.NewDataError("volume", "no images to export")
	}
	depth, height, width = vol.Dims()
	for i, img := range vol.Images {
		if r, c := img.Dims(); r != height || c != width {
			return 0, 0, 0, perrors.NewDataError("volume", "image %d is %dx%d, expected %dx%d", i, r, c, height, width)
		}
	}
	return depth, height, width, nil
}

// buffered wraps w in a buffered writer and returns it with its flush
// function.
func buffered(w io.Writer) (*bufio.Writer, func() error) {
	bw := bufio.NewWriter(w)
	return bw, bw.Flush
}
