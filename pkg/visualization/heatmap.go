package visualization

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"petsysrecon/internal/models"
)

// grid adapts a matrix to plotter.GridXYZ. Matrix row 0 is drawn at the
// top.
type grid struct {
	m      mat.Matrix
	x0, dx float64
	y0, dy float64
}

func (g grid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g grid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}

func (g grid) X(c int) float64 { return g.x0 + float64(c)*g.dx }
func (g grid) Y(r int) float64 { return g.y0 + float64(r)*g.dy }

// sinogramGrid lays out a Distances x Angles sinogram with angle on x and
// radial bin on y.
type sinogramGrid struct {
	m      mat.Matrix
	angles []float64
}

func (g sinogramGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g sinogramGrid) Z(c, r int) float64 { return g.m.At(r, c) }
func (g sinogramGrid) X(c int) float64    { return g.angles[c] }
func (g sinogramGrid) Y(r int) float64 {
	rows, _ := g.m.Dims()
	return float64(r) - float64(rows-1)/2
}

func heatMap(g plotter.GridXYZ) *plotter.HeatMap {
	hm := plotter.NewHeatMap(g, palette.Heat(64, 1))
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}
	return hm
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := p.Save(5*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// PlotSinogram draws one sinogram slice as a heat map of radial bin
// against angle. angles must hold one value per column.
func PlotSinogram(sino *mat.Dense, angles []float64, title, path string) error {
	if _, c := sino.Dims(); c != len(angles) {
		return fmt.Errorf("sinogram has %d angle bins but %d angles were given", c, len(angles))
	}
	if len(angles) < 2 {
		return fmt.Errorf("need at least two angles to plot a sinogram")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Angle (deg)"
	p.Y.Label.Text = "Radial bin"
	p.Add(heatMap(sinogramGrid{m: sino, angles: angles}))
	return save(p, path)
}

// PlotImage draws one reconstructed image as a heat map in centred pixel
// coordinates.
func PlotImage(img *mat.Dense, title, path string) error {
	r, c := img.Dims()
	if r < 2 || c < 2 {
		return fmt.Errorf("image %dx%d is too small to plot", r, c)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (pixels)"
	p.Y.Label.Text = "y (pixels)"
	p.Add(heatMap(grid{
		m:  img,
		x0: -float64(c-1) / 2, dx: 1,
		y0: -float64(r-1) / 2, dy: 1,
	}))
	return save(p, path)
}

// PlotAll writes a sinogram and an image heat map for every slice into dir
// and returns the file names.
func PlotAll(sino *models.Sinogram, vol *models.Volume, angles []float64, dir string) ([]string, error) {
	var files []string
	for i, s := range sino.Slices {
		name := filepath.Join(dir, fmt.Sprintf("sinogram_%03d.png", s))
		if err := PlotSinogram(sino.Data[i], angles, fmt.Sprintf("Sinogram, slice %d", s), name); err != nil {
			return files, err
		}
		files = append(files, name)
	}
	if vol == nil {
		return files, nil
	}
	for i, s := range vol.Slices {
		name := filepath.Join(dir, fmt.Sprintf("image_%03d.png", s))
		if err := PlotImage(vol.Images[i], fmt.Sprintf("Reconstruction, slice %d", s), name); err != nil {
			return files, err
		}
		files = append(files, name)
	}
	return files, nil
}
