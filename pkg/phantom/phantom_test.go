package phantom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"petsysrecon/internal/models"
	"petsysrecon/pkg/projector"
)

func TestPoint(t *testing.T) {
	t.Parallel()

	img := Point(5, 1, 3, 2.5)
	assert.Equal(t, 2.5, img.At(1, 3))
	assert.Equal(t, 2.5, mat.Sum(img))
}

func TestDiskIsCentredAndSymmetric(t *testing.T) {
	t.Parallel()

	img := Disk(9, 0, 0, 2, 1)
	assert.Equal(t, 1.0, img.At(4, 4))
	assert.Equal(t, 1.0, img.At(2, 4))
	assert.Equal(t, 0.0, img.At(1, 4))
	assert.Equal(t, 0.0, img.At(0, 0))
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			assert.Equal(t, img.At(r, c), img.At(8-r, 8-c))
			assert.Equal(t, img.At(r, c), img.At(c, r))
		}
	}

	// Positive y moves the disk towards row 0.
	shifted := Disk(9, 0, 3, 0.5, 1)
	assert.Equal(t, 1.0, shifted.At(1, 4))
	assert.Equal(t, 1.0, mat.Sum(shifted))
}

func TestStack(t *testing.T) {
	t.Parallel()

	p := projector.NewLineIntegral(7, 7, projector.EvenAngles(14))
	s := Stack(p, []int{2, 5}, []*mat.Dense{Point(7, 3, 3, 1), Disk(7, 1, 0, 1.5, 1)})
	require.NoError(t, s.Validate())
	n, d, a := s.Shape()
	assert.Equal(t, []int{2, 7, 14}, []int{n, d, a})
	assert.Equal(t, []int{2, 5}, s.Slices)

	// A centred point projects onto the central bin of every view.
	for v := 0; v < a; v++ {
		assert.Greater(t, s.Data[0].At(3, v), 0.99)
	}
}

func TestSimulatorEvents(t *testing.T) {
	t.Parallel()

	sim := NewSimulator(4, 11)
	table := sim.Events([]Source{{X: 1.5, Y: -0.5, Slice: 3, Events: 400}, {Slice: 4, Events: 100}})
	require.Equal(t, 500, table.Len())

	evts, err := table.Events()
	require.NoError(t, err)

	inPeak := 0
	for i, e := range evts {
		wantSlice := 3.0
		if i >= 400 {
			wantSlice = 4
		}
		assert.Equal(t, wantSlice, e.Slice)
		assert.GreaterOrEqual(t, e.AngleSino, 0.0)
		assert.Less(t, e.AngleSino, 180.0)
		assert.Equal(t, e.RSino, e.RSinoAnger)
		assert.Less(t, e.SiPMPosX1, 4.0)

		// The radial offset follows the sinusoid of the source.
		rad := e.AngleSino * math.Pi / 180
		want := 1.5*math.Cos(rad) - 0.5*math.Sin(rad)
		if i >= 400 {
			want = 0
		}
		assert.InDelta(t, want, e.RSino, 1.0)

		if math.Abs(e.Energy1-511) < 30 {
			inPeak++
		}
	}
	// About 80% of the hits are photopeak events.
	assert.InDelta(t, 0.8, float64(inPeak)/500, 0.08)
}

func TestSimulatorIsDeterministic(t *testing.T) {
	t.Parallel()

	a, err := NewSimulator(8, 5).Events([]Source{{Events: 20}}).Events()
	require.NoError(t, err)
	b, err := NewSimulator(8, 5).Events([]Source{{Events: 20}}).Events()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBackground(t *testing.T) {
	t.Parallel()

	table := NewSimulator(8, 1).Background([]int{0, 1, 2}, 50, 7.5)
	require.Equal(t, 150, table.Len())
	r, ok := table.Column(models.FieldRSino)
	require.True(t, ok)
	for _, v := range r {
		assert.LessOrEqual(t, math.Abs(v), 7.5)
	}
}
