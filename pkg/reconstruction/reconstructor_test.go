package reconstruction

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"petsysrecon/internal/models"
	"petsysrecon/pkg/config"
	perrors "petsysrecon/pkg/errors"
	"petsysrecon/pkg/filters"
	"petsysrecon/pkg/interpolation"
	"petsysrecon/pkg/phantom"
	"petsysrecon/pkg/projector"
	"petsysrecon/pkg/sinogram"
)

// pointSinogram returns a one-slice sinogram of a unit point at (row, col)
// for the default scanner: 15 distance bins and 180 angle bins.
func pointSinogram(t *testing.T, row, col int) (*models.Sinogram, projector.Projector) {
	t.Helper()
	p := projector.NewLineIntegral(15, 15, projector.EvenAngles(180))
	return phantom.Stack(p, []int{0}, []*mat.Dense{phantom.Point(15, row, col, 100)}), p
}

func params(g projector.Geometry, a Algorithm, iterations, subsets int) *Params {
	p := DefaultParams()
	p.Geometry = g
	p.Algorithm = a
	p.Iterations = iterations
	p.Subsets = subsets
	p.Workers = 2
	return p
}

func TestSubsetViews(t *testing.T) {
	t.Parallel()

	assert.Equal(t, [][]int{{0, 3, 6}, {1, 4, 7}, {2, 5, 8}}, SubsetViews(9, 3))
	assert.Equal(t, [][]int{{0, 1, 2, 3}}, SubsetViews(4, 1))
}

func TestOSEMWithOneSubsetEqualsMLEM(t *testing.T) {
	t.Parallel()

	sino, _ := pointSinogram(t, 5, 9)
	for _, g := range []projector.Geometry{projector.LineIntegral, projector.Rotation, projector.SystemMatrix} {
		mlem, err := NewReconstructor(params(g, MLEM, 4, 1)).Reconstruct(context.Background(), sino)
		require.NoError(t, err, g.String())
		osem, err := NewReconstructor(params(g, OSEM, 4, 1)).Reconstruct(context.Background(), sino)
		require.NoError(t, err, g.String())
		assert.Equal(t, mlem.Images[0].RawMatrix().Data, osem.Images[0].RawMatrix().Data, g.String())
	}
}

func TestMLEMRunsIterationsTimesSubsetsUpdates(t *testing.T) {
	t.Parallel()

	sino, _ := pointSinogram(t, 7, 7)
	var mu sync.Mutex
	updates := map[string]int{}
	for _, a := range []Algorithm{MLEM, OSEM} {
		p := params(projector.LineIntegral, a, 2, 3)
		p.Hook = func(_, update int, _ *mat.Dense) {
			mu.Lock()
			updates[a.String()] = update
			mu.Unlock()
		}
		_, err := NewReconstructor(p).Reconstruct(context.Background(), sino)
		require.NoError(t, err)
	}
	assert.Equal(t, 6, updates["mlem"])
	assert.Equal(t, 6, updates["osem"])
}

func TestFilteredBackprojectionRecoversDiskLevel(t *testing.T) {
	t.Parallel()

	for _, n := range []int{15, 31} {
		p := projector.NewLineIntegral(n, n, projector.EvenAngles(180))
		sino := phantom.Sinogram(p, phantom.Disk(n, 0, 0, float64(n)/4, 1))

		img, err := NewFilteredBackprojection(p, filters.RamLak).Run(context.Background(), sino)
		require.NoError(t, err)
		centre := (n - 1) / 2
		assert.InDelta(t, 1.0, img.At(centre, centre), 0.25, "size %d", n)
		assert.InDelta(t, 0.0, img.At(centre, centre+n/4+3), 0.25, "size %d", n)
	}
}

func TestFBPPointSourcePeak(t *testing.T) {
	t.Parallel()

	sino, _ := pointSinogram(t, 4, 10)
	for _, g := range []projector.Geometry{projector.LineIntegral, projector.Rotation} {
		for _, f := range []filters.Filter{filters.RamLak, filters.Hann} {
			p := params(g, FBP, 0, 0)
			p.Filter = f
			vol, err := NewReconstructor(p).Reconstruct(context.Background(), sino)
			require.NoError(t, err)
			row, col := Peak(vol.Images[0])
			assert.LessOrEqual(t, math.Hypot(float64(row-4), float64(col-10)), 1.0, "%s/%s", g, f)
		}
	}
}

func TestEMPointSourceConverges(t *testing.T) {
	t.Parallel()

	sino, proj := pointSinogram(t, 10, 3)
	for _, a := range []Algorithm{MLEM, OSEM} {
		rec := NewReconstructor(params(projector.LineIntegral, a, 3, 3))
		vol, err := rec.Reconstruct(context.Background(), sino)
		require.NoError(t, err)

		row, col := Peak(vol.Images[0])
		assert.LessOrEqual(t, math.Hypot(float64(row-10), float64(col-3)), 1.0, a.String())

		metrics := rec.GetMetrics()
		require.Len(t, metrics, 1)
		assert.Equal(t, Residual(proj, sino.Data[0], vol.Images[0]), metrics[0].Residual)
		assert.Equal(t, row, metrics[0].PeakRow)
	}
}

func TestResidualDecreasesAcrossIterations(t *testing.T) {
	t.Parallel()

	sino, proj := pointSinogram(t, 6, 8)
	y := sino.Data[0]
	em, err := NewEM(proj, 1)
	require.NoError(t, err)

	var residuals, loglik []float64
	_, err = em.Run(context.Background(), y, 10, func(_ int, x *mat.Dense) {
		residuals = append(residuals, Residual(proj, y, x))
		loglik = append(loglik, poissonLogLikelihood(proj, y, x))
	})
	require.NoError(t, err)
	require.Len(t, residuals, 10)

	assert.Less(t, residuals[len(residuals)-1], residuals[0])
	for i := 1; i < len(loglik); i++ {
		assert.GreaterOrEqual(t, loglik[i], loglik[i-1]-1e-9*math.Abs(loglik[i-1]), "update %d", i+1)
	}
}

func poissonLogLikelihood(p projector.Projector, y, x *mat.Dense) float64 {
	yhat := p.Project(x, projector.AllViews(p))
	r, c := y.Dims()
	var l float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := yhat.At(i, j); v > 0 {
				l += y.At(i, j)*math.Log(v) - v
			}
		}
	}
	return l
}

func TestZeroSinogramStaysFinite(t *testing.T) {
	t.Parallel()

	sino := models.NewSinogram([]int{1}, 15, 180)
	for _, a := range []Algorithm{MLEM, OSEM, FBP} {
		vol, err := NewReconstructor(params(projector.LineIntegral, a, 2, 3)).Reconstruct(context.Background(), sino)
		require.NoError(t, err)
		for _, v := range vol.Images[0].RawMatrix().Data {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			assert.Equal(t, 0.0, v)
		}
	}
}

func TestVolumeShapeAndProgress(t *testing.T) {
	t.Parallel()

	p := projector.NewLineIntegral(15, 15, projector.EvenAngles(180))
	slices := []int{2, 3, 7, 9}
	images := make([]*mat.Dense, len(slices))
	for i := range images {
		images[i] = phantom.Disk(15, float64(i)-1, 0, 2, 1)
	}
	sino := phantom.Stack(p, slices, images)

	rec := NewReconstructor(params(projector.LineIntegral, OSEM, 1, 3))
	var calls []int
	var total int
	rec.SetProgressCallback(func(completed, n int) {
		calls = append(calls, completed)
		total = n
	})

	vol, err := rec.Reconstruct(context.Background(), sino)
	require.NoError(t, err)
	d, h, w := vol.Dims()
	assert.Equal(t, []int{4, 15, 15}, []int{d, h, w})
	assert.Equal(t, slices, vol.Slices)
	assert.Equal(t, []int{1, 2, 3, 4}, calls)
	assert.Equal(t, 4, total)
	assert.Len(t, rec.GetMetrics(), 4)
	assert.Equal(t, 15, rec.Projector().Size())
}

func TestConfigurationErrors(t *testing.T) {
	t.Parallel()

	sino, _ := pointSinogram(t, 7, 7)
	cases := map[string]*Params{
		"zero iterations":       params(projector.LineIntegral, MLEM, 0, 3),
		"zero subsets":          params(projector.LineIntegral, MLEM, 2, 0),
		"subsets not dividing":  params(projector.LineIntegral, OSEM, 2, 7),
		"unknown geometry":      params(projector.Geometry(9), MLEM, 2, 3),
		"unknown algorithm":     params(projector.LineIntegral, Algorithm(9), 2, 3),
		"osem negative subsets": params(projector.Rotation, OSEM, 2, -1),
	}
	for name, p := range cases {
		_, err := NewReconstructor(p).Reconstruct(context.Background(), sino)
		assert.ErrorIs(t, err, perrors.ErrConfiguration, name)
	}

	// FBP ignores iterations and subsets.
	_, err := NewReconstructor(params(projector.LineIntegral, FBP, 0, 7)).Reconstruct(context.Background(), sino)
	assert.NoError(t, err)
}

func TestSystemMatrixFBPIsUnsupported(t *testing.T) {
	t.Parallel()

	sino, _ := pointSinogram(t, 7, 7)
	_, err := NewReconstructor(params(projector.SystemMatrix, FBP, 2, 3)).Reconstruct(context.Background(), sino)
	require.ErrorIs(t, err, perrors.ErrUnsupportedCombination)

	var uc *perrors.UnsupportedCombinationError
	require.ErrorAs(t, err, &uc)
	assert.Equal(t, "SystemMatrix", uc.Geometry)
	assert.Equal(t, "fbp", uc.Algorithm)
}

func TestDataErrors(t *testing.T) {
	t.Parallel()

	rec := NewReconstructor(nil)
	_, err := rec.Reconstruct(context.Background(), &models.Sinogram{})
	assert.ErrorIs(t, err, perrors.ErrData)

	bad := models.NewSinogram([]int{0, 1}, 15, 180)
	bad.Data[1] = mat.NewDense(15, 179, nil)
	_, err = rec.Reconstruct(context.Background(), bad)
	assert.ErrorIs(t, err, perrors.ErrData)

	em, err := NewEM(projector.NewLineIntegral(5, 5, projector.EvenAngles(4)), 2)
	require.NoError(t, err)
	_, err = em.Run(context.Background(), mat.NewDense(5, 3, nil), 1, nil)
	assert.ErrorIs(t, err, perrors.ErrData)

	_, err = NewEM(projector.NewLineIntegral(5, 5, projector.EvenAngles(4)), 5)
	assert.ErrorIs(t, err, perrors.ErrConfiguration)
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	sino, _ := pointSinogram(t, 7, 7)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReconstructor(params(projector.LineIntegral, MLEM, 2, 3)).Reconstruct(ctx, sino)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEventsToImage(t *testing.T) {
	t.Parallel()

	// P=4, R=4: 7 distance bins and 28 angle bins.
	sim := phantom.NewSimulator(4, 3)
	fg := sim.Events([]phantom.Source{
		{X: 0, Y: 0, Slice: 0, Events: 4000},
		{X: 2, Y: -1, Slice: 1, Events: 4000},
	})
	bg := sim.Background([]int{0, 1}, 50, 3.5)

	binner, err := sinogram.NewBinner(sinogram.Options{
		Pixels:       4,
		Rotations:    4,
		Window:       sinogram.Window{E1Min: 490, E1Max: 530, E2Min: 490, E2Max: 530},
		ClipNegative: true,
		RadialRange:  []float64{-3.5, 3.5},
		AngleRange:   []float64{0, 180},
		Workers:      2,
	})
	require.NoError(t, err)
	sino, err := binner.Build(context.Background(), fg, bg)
	require.NoError(t, err)

	p := params(projector.LineIntegral, FBP, 0, 0)
	vol, err := NewReconstructor(p).Reconstruct(context.Background(), sino)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, vol.Slices)

	want := [][2]int{{3, 3}, {4, 5}}
	for i, img := range vol.Images {
		row, col := Peak(img)
		assert.LessOrEqual(t, math.Hypot(float64(row-want[i][0]), float64(col-want[i][1])), 1.0, "slice %d", i)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	ref := phantom.Disk(11, 1, 1, 2, 4)
	q := Compare(ref, ref)
	assert.InDelta(t, 0, q.RMSE, 1e-12)
	assert.InDelta(t, 1, q.Correlation, 1e-12)
	assert.Equal(t, 0.0, q.PeakDistance)

	other := phantom.Point(11, 9, 9, 1)
	q = Compare(ref, other)
	assert.Greater(t, q.RMSE, 0.0)
	assert.Less(t, q.Correlation, 0.5)
	assert.Greater(t, q.PeakDistance, 1.0)
}

func TestParamsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	p, err := ParamsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, projector.LineIntegral, p.Geometry)
	assert.Equal(t, MLEM, p.Algorithm)
	assert.Equal(t, 2, p.Iterations)
	assert.Equal(t, 3, p.Subsets)
	assert.Equal(t, interpolation.Bilinear, p.Kernel)
	assert.Equal(t, filters.RamLak, p.Filter)

	cfg.Reconstruction.Algorithm = "art"
	_, err = ParamsFromConfig(cfg)
	assert.ErrorIs(t, err, perrors.ErrConfiguration)

	cfg = config.DefaultConfig()
	cfg.Reconstruction.Geometry = "helical"
	_, err = ParamsFromConfig(cfg)
	assert.ErrorIs(t, err, perrors.ErrConfiguration)
}

func TestParseAlgorithm(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"mlem", "OSEM", "fbp"} {
		a, err := ParseAlgorithm(name)
		require.NoError(t, err)
		assert.NotEqual(t, "unknown", a.String())
	}
	_, err := ParseAlgorithm("sart")
	assert.ErrorIs(t, err, perrors.ErrConfiguration)
}
