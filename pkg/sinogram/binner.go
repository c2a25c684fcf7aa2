// Package sinogram turns coincidence event tables into background
// subtracted sinograms.
package sinogram

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"petsysrecon/internal/models"
	perrors "petsysrecon/pkg/errors"
	"petsysrecon/pkg/events"
)

// Options configures a Binner.
type Options struct {
	// Pixels is the number of crystal positions per panel axis (P)
	Pixels int

	// Rotations is the number of gantry positions (R)
	Rotations int

	Window      Window
	Coordinates Coordinates

	// ClipNegative clamps background-subtracted bins at zero. When false
	// the signed difference is kept.
	ClipNegative bool

	// RadialRange and AngleRange fix the histogram edges as [lo, hi]. When
	// nil the edges span the accepted rows of both acquisitions.
	RadialRange []float64
	AngleRange  []float64

	// Workers bounds the number of slices histogrammed concurrently
	Workers int
}

// Binner builds sinograms from foreground and background event tables.
type Binner struct {
	opts Options
}

// NewBinner validates the options and creates a Binner.
func NewBinner(opts Options) (*Binner, error) {
	if opts.Pixels < 1 {
		return nil, perrors.NewConfigurationError("detector.pixels", "must be positive, got %d", opts.Pixels)
	}
	if opts.Rotations < 1 {
		return nil, perrors.NewConfigurationError("detector.rotations", "must be positive, got %d", opts.Rotations)
	}
	if err := opts.Window.Validate(); err != nil {
		return nil, err
	}
	for name, r := range map[string][]float64{"binning.radialRange": opts.RadialRange, "binning.angleRange": opts.AngleRange} {
		if len(r) == 0 {
			continue
		}
		if len(r) != 2 || !(r[0] < r[1]) {
			return nil, perrors.NewConfigurationError(name, "want [lo, hi] with lo < hi, got %v", r)
		}
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	return &Binner{opts: opts}, nil
}

// Distances returns the number of radial bins, 2P-1.
func (b *Binner) Distances() int { return 2*b.opts.Pixels - 1 }

// Angles returns the number of angle bins, (2P-1)*R.
func (b *Binner) Angles() int { return b.Distances() * b.opts.Rotations }

func (b *Binner) coordinateFields() (string, string) {
	if b.opts.Coordinates == Anger {
		return models.FieldRSinoAnger, models.FieldAngleSinoAnger
	}
	return models.FieldRSino, models.FieldAngleSino
}

// acquisition is a table reduced to the rows accepted by the window,
// grouped by slice label.
type acquisition struct {
	radial, angle []float64
	bySlice       map[int][]int
}

func (b *Binner) prepare(t *events.Table) (*acquisition, error) {
	rField, aField := b.coordinateFields()
	if err := t.Require(models.FieldEnergy1, models.FieldEnergy2, models.FieldSlice, rField, aField); err != nil {
		return nil, err
	}
	e1, _ := t.Column(models.FieldEnergy1)
	e2, _ := t.Column(models.FieldEnergy2)
	sl, _ := t.Column(models.FieldSlice)
	acq := &acquisition{bySlice: make(map[int][]int)}
	acq.radial, _ = t.Column(rField)
	acq.angle, _ = t.Column(aField)

	for i, label := range sl {
		s, err := sliceLabel(label)
		if err != nil {
			return nil, perrors.NewDataError(models.FieldSlice, "row %d: %v", i, err)
		}
		if _, ok := acq.bySlice[s]; !ok {
			acq.bySlice[s] = nil
		}
		if b.opts.Window.Accept(e1[i], e2[i]) {
			acq.bySlice[s] = append(acq.bySlice[s], i)
		}
	}
	return acq, nil
}

func sliceLabel(v float64) (int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, perrors.NewDataError(models.FieldSlice, "label %v is not finite", v)
	}
	if v != math.Trunc(v) {
		return 0, perrors.NewDataError(models.FieldSlice, "label %v is not integral", v)
	}
	return int(v), nil
}

// Build filters both tables by energy window, histograms each foreground
// slice and subtracts the background histogram of the same slice. A
// foreground slice absent from the background gets a zero background.
func (b *Binner) Build(ctx context.Context, foreground, background *events.Table) (*models.Sinogram, error) {
	fg, err := b.prepare(foreground)
	if err != nil {
		return nil, err
	}
	bg, err := b.prepare(background)
	if err != nil {
		return nil, err
	}

	slices := make([]int, 0, len(fg.bySlice))
	for s := range fg.bySlice {
		slices = append(slices, s)
	}
	sort.Ints(slices)

	radialAxis, angleAxis := b.axes(fg, bg, slices)
	sino := models.NewSinogram(slices, b.Distances(), b.Angles())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)
	for i, s := range slices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hist := Histogram2D(radialAxis, angleAxis, fg.radial, fg.angle, fg.bySlice[s])
			if rows := bg.bySlice[s]; len(rows) > 0 {
				hist.Sub(hist, Histogram2D(radialAxis, angleAxis, bg.radial, bg.angle, rows))
			}
			if b.opts.ClipNegative {
				clip(hist)
			}
			sino.Data[i] = hist
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sino, nil
}

// axes returns the shared histogram axes. Data-derived edges cover every
// accepted row of both acquisitions that falls in a foreground slice.
func (b *Binner) axes(fg, bg *acquisition, slices []int) (Axis, Axis) {
	var radial, angle []float64
	if len(b.opts.RadialRange) == 0 || len(b.opts.AngleRange) == 0 {
		for _, s := range slices {
			for _, acq := range []*acquisition{fg, bg} {
				for _, r := range acq.bySlice[s] {
					radial = append(radial, acq.radial[r])
					angle = append(angle, acq.angle[r])
				}
			}
		}
	}

	var radialAxis, angleAxis Axis
	if len(b.opts.RadialRange) > 0 {
		radialAxis = NewAxis(b.opts.RadialRange[0], b.opts.RadialRange[1], b.Distances())
	} else {
		radialAxis = AxisFromData(b.Distances(), radial)
	}
	if len(b.opts.AngleRange) > 0 {
		angleAxis = NewAxis(b.opts.AngleRange[0], b.opts.AngleRange[1], b.Angles())
	} else {
		angleAxis = AxisFromData(b.Angles(), angle)
	}
	return radialAxis, angleAxis
}

func clip(m *mat.Dense) {
	m.Apply(func(_, _ int, v float64) float64 {
		return math.Max(v, 0)
	}, m)
}
