// Package reconstruction turns sinograms into images with MLEM, OSEM or
// filtered backprojection over a selectable projector geometry.
package reconstruction

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"petsysrecon/internal/models"
	"petsysrecon/pkg/config"
	perrors "petsysrecon/pkg/errors"
	"petsysrecon/pkg/filters"
	"petsysrecon/pkg/interpolation"
	"petsysrecon/pkg/projector"
)

// Algorithm selects the reconstruction method
type Algorithm int

const (
	MLEM Algorithm = iota
	OSEM
	FBP
)

func (a Algorithm) String() string {
	switch a {
	case MLEM:
		return "mlem"
	case OSEM:
		return "osem"
	case FBP:
		return "fbp"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a configuration name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(name) {
	case "mlem":
		return MLEM, nil
	case "osem":
		return OSEM, nil
	case "fbp":
		return FBP, nil
	default:
		return 0, perrors.NewConfigurationError("algorithm", "unknown algorithm %q", name)
	}
}

type projectorFactory func(size, bins int, angles []float64, kernel interpolation.Kernel) (projector.Projector, error)

// geometries maps every geometry to its constructor.
var geometries = map[projector.Geometry]projectorFactory{
	projector.LineIntegral: func(size, bins int, angles []float64, _ interpolation.Kernel) (projector.Projector, error) {
		return projector.NewLineIntegral(size, bins, angles), nil
	},
	projector.Rotation: func(size, bins int, angles []float64, k interpolation.Kernel) (projector.Projector, error) {
		return projector.NewRotation(size, bins, angles, k)
	},
	projector.SystemMatrix: func(size, bins int, angles []float64, _ interpolation.Kernel) (projector.Projector, error) {
		return projector.NewSystemMatrix(size, bins, angles), nil
	},
}

type combination struct {
	geometry  projector.Geometry
	algorithm Algorithm
}

// supported lists the geometry/algorithm pairs that can be run. The
// system matrix has no filtered backprojection path.
var supported = map[combination]bool{
	{projector.LineIntegral, MLEM}: true,
	{projector.LineIntegral, OSEM}: true,
	{projector.LineIntegral, FBP}:  true,
	{projector.Rotation, MLEM}:     true,
	{projector.Rotation, OSEM}:     true,
	{projector.Rotation, FBP}:      true,
	{projector.SystemMatrix, MLEM}: true,
	{projector.SystemMatrix, OSEM}: true,
}

// Params holds the reconstruction parameters
type Params struct {
	// Geometry selects the projector model
	Geometry projector.Geometry

	// Algorithm selects the reconstruction method
	Algorithm Algorithm

	// Iterations is the number of EM passes. MLEM runs Iterations*Subsets
	// full updates; OSEM runs Iterations passes over Subsets subsets.
	// Ignored by FBP.
	Iterations int

	// Subsets is the number of ordered subsets. For OSEM it must divide
	// the number of angle bins.
	Subsets int

	// Kernel is the interpolation kernel of the Rotation geometry
	Kernel interpolation.Kernel

	// Filter is the FBP window
	Filter filters.Filter

	// Workers bounds the number of slices reconstructed concurrently
	Workers int

	// Logger receives per-slice progress when non-nil
	Logger *log.Logger

	// Hook, when set, is called after every EM update of every slice.
	// It may be called from several goroutines at once.
	Hook func(slice int, update int, estimate *mat.Dense)
}

// DefaultParams returns MLEM over the line-integral projector with two
// iterations of three subsets.
func DefaultParams() *Params {
	return &Params{
		Geometry:   projector.LineIntegral,
		Algorithm:  MLEM,
		Iterations: 2,
		Subsets:    3,
		Kernel:     interpolation.Default,
		Filter:     filters.RamLak,
		Workers:    1,
	}
}

// ParamsFromConfig resolves the named settings of cfg.
func ParamsFromConfig(cfg *config.Config) (*Params, error) {
	rc := cfg.Reconstruction
	g, err := projector.ParseGeometry(rc.Geometry)
	if err != nil {
		return nil, err
	}
	a, err := ParseAlgorithm(rc.Algorithm)
	if err != nil {
		return nil, err
	}
	k, err := interpolation.Parse(rc.Interpolation)
	if err != nil {
		return nil, err
	}
	f, err := filters.Parse(rc.Filter)
	if err != nil {
		return nil, err
	}
	return &Params{
		Geometry:   g,
		Algorithm:  a,
		Iterations: rc.Iterations,
		Subsets:    rc.Subsets,
		Kernel:     k,
		Filter:     f,
		Workers:    cfg.Processing.NumCores,
	}, nil
}

// ProgressCallback reports the number of reconstructed slices
type ProgressCallback func(completed, total int)

// Reconstructor reconstructs every slice of a sinogram with one shared
// projector.
type Reconstructor struct {
	params   *Params
	progress ProgressCallback

	// proj is the projector of the last run
	proj projector.Projector

	// metrics holds one entry per slice of the last run
	metrics []SliceMetrics
}

// NewReconstructor creates a reconstructor. A nil params uses
// DefaultParams.
func NewReconstructor(params *Params) *Reconstructor {
	if params == nil {
		params = DefaultParams()
	}
	return &Reconstructor{params: params}
}

// SetProgressCallback sets a function called after each slice completes.
// Calls are serialised.
func (r *Reconstructor) SetProgressCallback(cb ProgressCallback) {
	r.progress = cb
}

// Validate checks the parameters against a sinogram with the given number
// of angle bins.
func (r *Reconstructor) Validate(angles int) error {
	p := r.params
	if _, ok := geometries[p.Geometry]; !ok {
		return perrors.NewConfigurationError("geometry", "unknown geometry %d", int(p.Geometry))
	}
	if p.Algorithm < MLEM || p.Algorithm > FBP {
		return perrors.NewConfigurationError("algorithm", "unknown algorithm %d", int(p.Algorithm))
	}
	if !supported[combination{p.Geometry, p.Algorithm}] {
		return perrors.NewUnsupportedCombinationError(p.Geometry.String(), p.Algorithm.String())
	}
	if p.Algorithm == FBP {
		return nil
	}
	if p.Iterations < 1 {
		return perrors.NewConfigurationError("iterations", "must be positive, got %d", p.Iterations)
	}
	if p.Subsets < 1 {
		return perrors.NewConfigurationError("subsets", "must be positive, got %d", p.Subsets)
	}
	if p.Algorithm == OSEM && angles%p.Subsets != 0 {
		return perrors.NewConfigurationError("subsets", "%d subsets do not divide %d angle bins", p.Subsets, angles)
	}
	return nil
}

// Reconstruct produces one Size x Size image per sinogram slice, with Size
// equal to the number of distance bins.
func (r *Reconstructor) Reconstruct(ctx context.Context, sino *models.Sinogram) (*models.Volume, error) {
	if err := sino.Validate(); err != nil {
		return nil, perrors.NewDataError("sinogram", "%v", err)
	}
	n, bins, angles := sino.Shape()
	if n == 0 {
		return nil, perrors.NewDataError("sinogram", "no slices to reconstruct")
	}
	if err := r.Validate(angles); err != nil {
		return nil, err
	}

	p := r.params
	start := time.Now()
	proj, err := geometries[p.Geometry](bins, bins, projector.EvenAngles(angles), p.Kernel)
	if err != nil {
		return nil, err
	}
	r.logf("%s projector ready for %dx%d images and %d views (%v)", p.Geometry, bins, bins, angles, time.Since(start))

	run, err := r.method(proj)
	if err != nil {
		return nil, err
	}

	vol := &models.Volume{
		Slices: append([]int(nil), sino.Slices...),
		Images: make([]*mat.Dense, n),
	}
	metrics := make([]SliceMetrics, n)

	var mu sync.Mutex
	completed := 0

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.Workers))
	for i := range sino.Data {
		g.Go(func() error {
			img, err := run(ctx, sino.Slices[i], sino.Data[i])
			if err != nil {
				return fmt.Errorf("slice %d: %w", sino.Slices[i], err)
			}
			vol.Images[i] = img
			row, col := Peak(img)
			metrics[i] = SliceMetrics{
				Slice:    sino.Slices[i],
				Residual: Residual(proj, sino.Data[i], img),
				PeakRow:  row,
				PeakCol:  col,
			}

			mu.Lock()
			completed++
			r.logf("slice %d reconstructed, residual %.4f", sino.Slices[i], metrics[i].Residual)
			if r.progress != nil {
				r.progress(completed, n)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.proj = proj
	r.metrics = metrics
	r.logf("%s reconstructed %d slices in %v", p.Algorithm, n, time.Since(start))
	return vol, nil
}

type sliceRunner func(ctx context.Context, slice int, sino *mat.Dense) (*mat.Dense, error)

// method builds the per-slice reconstruction function for the configured
// algorithm. Sensitivity images are computed here, once for all slices.
func (r *Reconstructor) method(proj projector.Projector) (sliceRunner, error) {
	p := r.params
	switch p.Algorithm {
	case FBP:
		fbp := NewFilteredBackprojection(proj, p.Filter)
		return func(ctx context.Context, _ int, sino *mat.Dense) (*mat.Dense, error) {
			return fbp.Run(ctx, sino)
		}, nil

	default:
		subsets, passes := 1, p.Iterations*p.Subsets
		if p.Algorithm == OSEM {
			subsets, passes = p.Subsets, p.Iterations
		}
		em, err := NewEM(proj, subsets)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, slice int, sino *mat.Dense) (*mat.Dense, error) {
			var hook IterationHook
			if p.Hook != nil {
				hook = func(update int, x *mat.Dense) { p.Hook(slice, update, x) }
			}
			return em.Run(ctx, sino, passes, hook)
		}, nil
	}
}

// Projector returns the projector built by the last successful run.
func (r *Reconstructor) Projector() projector.Projector {
	return r.proj
}

// GetMetrics returns the per-slice metrics of the last successful run.
func (r *Reconstructor) GetMetrics() []SliceMetrics {
	return append([]SliceMetrics(nil), r.metrics...)
}

func (r *Reconstructor) logf(format string, args ...any) {
	if r.params.Logger != nil {
		r.params.Logger.Printf(format, args...)
	}
}
