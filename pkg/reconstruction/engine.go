package reconstruction

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	perrors "petsysrecon/pkg/errors"
	"petsysrecon/pkg/filters"
	"petsysrecon/pkg/projector"
)

// IterationHook observes the estimate after every update. The estimate must
// not be modified or retained.
type IterationHook func(update int, estimate *mat.Dense)

// SubsetViews splits views 0..views-1 round robin into n subsets: subset k
// holds views k, k+n, k+2n, ...
func SubsetViews(views, n int) [][]int {
	out := make([][]int, n)
	for v := 0; v < views; v++ {
		out[v%n] = append(out[v%n], v)
	}
	return out
}

// EM runs ordered-subset expectation maximisation. With a single subset it
// is plain MLEM. The subset sensitivity images are computed once, so one EM
// can serve any number of slices concurrently.
type EM struct {
	proj    projector.Projector
	subsets [][]int
	sens    []*mat.Dense
}

// NewEM prepares EM with n ordered subsets over the views of p.
func NewEM(p projector.Projector, n int) (*EM, error) {
	views := len(p.Angles())
	if n < 1 || n > views {
		return nil, perrors.NewConfigurationError("subsets", "must be between 1 and %d, got %d", views, n)
	}
	e := &EM{proj: p, subsets: SubsetViews(views, n)}
	e.sens = make([]*mat.Dense, n)
	for k, views := range e.subsets {
		e.sens[k] = projector.Sensitivity(p, views)
	}
	return e, nil
}

// Subsets returns the number of ordered subsets.
func (e *EM) Subsets() int { return len(e.subsets) }

// Run performs iterations full passes over the subsets starting from a
// uniform image. Context cancellation is checked before every sub-update.
func (e *EM) Run(ctx context.Context, sino *mat.Dense, iterations int, hook IterationHook) (*mat.Dense, error) {
	if err := checkSinogram(e.proj, sino); err != nil {
		return nil, err
	}
	n := e.proj.Size()
	x := mat.NewDense(n, n, nil)
	x.Apply(func(_, _ int, _ float64) float64 { return 1 }, x)

	measured := make([]*mat.Dense, len(e.subsets))
	for k, views := range e.subsets {
		measured[k] = columns(sino, views)
	}

	update := 0
	for it := 0; it < iterations; it++ {
		for k, views := range e.subsets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			e.step(x, measured[k], views, e.sens[k])
			update++
			if hook != nil {
				hook(update, x)
			}
		}
	}
	return x, nil
}

// step applies one multiplicative update x <- x * P^T(y / Px) / s.
func (e *EM) step(x, y *mat.Dense, views []int, sens *mat.Dense) {
	yhat := e.proj.Project(x, views)
	ratio := mat.NewDense(e.proj.Bins(), len(views), nil)
	ratio.Apply(func(i, j int, _ float64) float64 {
		p := yhat.At(i, j)
		if p <= 0 {
			return 0
		}
		return y.At(i, j) / p
	}, ratio)

	corr := e.proj.Backproject(ratio, views)
	x.Apply(func(i, j int, v float64) float64 {
		s := sens.At(i, j)
		if s <= 0 {
			return v
		}
		return v * corr.At(i, j) / s
	}, x)
}

// FilteredBackprojection runs filtered backprojection.
type FilteredBackprojection struct {
	proj   projector.Projector
	filter filters.Filter
}

// NewFilteredBackprojection prepares filtered backprojection through p.
func NewFilteredBackprojection(p projector.Projector, f filters.Filter) *FilteredBackprojection {
	return &FilteredBackprojection{proj: p, filter: f}
}

// Run filters every view and backprojects them, scaled by pi/(2A).
func (f *FilteredBackprojection) Run(ctx context.Context, sino *mat.Dense) (*mat.Dense, error) {
	if err := checkSinogram(f.proj, sino); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bins, views := sino.Dims()
	bank := filters.NewBank(f.filter, bins)

	filtered := mat.NewDense(bins, views, nil)
	profile := make([]float64, bins)
	out := make([]float64, bins)
	for v := 0; v < views; v++ {
		mat.Col(profile, v, sino)
		bank.Apply(out, profile)
		filtered.SetCol(v, out)
	}

	img := f.proj.Backproject(filtered, projector.AllViews(f.proj))
	img.Scale(math.Pi/(2*float64(views)), img)
	return img, nil
}

// columns copies the given columns of m into a new matrix.
func columns(m *mat.Dense, idx []int) *mat.Dense {
	r, _ := m.Dims()
	out := mat.NewDense(r, len(idx), nil)
	col := make([]float64, r)
	for j, c := range idx {
		out.SetCol(j, mat.Col(col, c, m))
	}
	return out
}

func checkSinogram(p projector.Projector, sino *mat.Dense) error {
	r, c := sino.Dims()
	if r != p.Bins() || c != len(p.Angles()) {
		return perrors.NewDataError("sinogram", "expected %dx%d, got %dx%d", p.Bins(), len(p.Angles()), r, c)
	}
	return nil
}
