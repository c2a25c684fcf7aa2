package filters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	perrors "petsysrecon/pkg/errors"
)

func TestPaddedSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 64, PaddedSize(15))
	assert.Equal(t, 64, PaddedSize(32))
	assert.Equal(t, 128, PaddedSize(33))
	assert.Equal(t, 512, PaddedSize(256))
}

func TestRampResponseShape(t *testing.T) {
	t.Parallel()

	b := NewBank(RamLak, 15)
	resp := b.Response()
	require.Len(t, resp, 64/2+1)

	// Near-zero DC, rising to roughly unit gain at Nyquist.
	assert.InDelta(t, 0, resp[0], 0.01)
	assert.InDelta(t, 1, resp[len(resp)-1], 0.05)
	for k := 1; k < len(resp); k++ {
		assert.GreaterOrEqual(t, resp[k], resp[k-1]-1e-12, "ramp must not decrease at bin %d", k)
	}
}

func TestWindowsAttenuateHighFrequencies(t *testing.T) {
	t.Parallel()

	ramp := NewBank(RamLak, 15).Response()
	nyq := len(ramp) - 1
	for _, f := range []Filter{SheppLogan, Cosine, Hamming, Hann} {
		resp := NewBank(f, 15).Response()
		assert.InDelta(t, ramp[1], resp[1], 0.01, f.String())
		assert.Less(t, resp[nyq], ramp[nyq], f.String())
		for k := range resp {
			assert.LessOrEqual(t, resp[k], ramp[k]+1e-12, "%s bin %d", f, k)
		}
	}
	assert.InDelta(t, 0, NewBank(Hann, 15).Response()[nyq], 1e-12)
}

func TestApplyImpulse(t *testing.T) {
	t.Parallel()

	b := NewBank(RamLak, 15)
	profile := make([]float64, 15)
	profile[7] = 1

	out := b.Apply(nil, profile)
	require.Len(t, out, 15)

	// The response is the transform of twice the ramp kernel, so an
	// impulse comes back as 0.5 at the centre and -2/pi^2 beside it.
	assert.InDelta(t, 0.5, out[7], 1e-9)
	assert.InDelta(t, -2/(math.Pi*math.Pi), out[6], 1e-9)
	assert.Less(t, out[6], 0.0)
	assert.Less(t, out[8], 0.0)
	assert.InDelta(t, out[6], out[8], 1e-12)
	assert.Equal(t, floats.MaxIdx(out), 7)
}

func TestApplyIsLinearAndReusable(t *testing.T) {
	t.Parallel()

	b := NewBank(SheppLogan, 9)
	p1 := []float64{0, 1, 2, 3, 4, 3, 2, 1, 0}
	p2 := []float64{1, 0, 0, 0, 5, 0, 0, 0, 1}

	o1 := b.Apply(nil, p1)
	o2 := b.Apply(nil, p2)
	sum := make([]float64, 9)
	floats.AddTo(sum, p1, p2)
	o12 := b.Apply(nil, sum)

	want := make([]float64, 9)
	floats.AddTo(want, o1, o2)
	assert.InDeltaSlice(t, want, o12, 1e-12)

	// A second call with the same input gives the same output.
	assert.InDeltaSlice(t, o1, b.Apply(nil, p1), 1e-15)
}

func TestApplyPanicsOnLengthMismatch(t *testing.T) {
	t.Parallel()

	b := NewBank(RamLak, 5)
	assert.Panics(t, func() { b.Apply(nil, make([]float64, 4)) })
}

func TestParse(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]Filter{
		"":            RamLak,
		"ramLak":      RamLak,
		"shepp_logan": SheppLogan,
		"Cosine":      Cosine,
		"hamming":     Hamming,
		"hanning":     Hann,
	} {
		f, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, f, name)
	}
	_, err := Parse("butterworth")
	assert.ErrorIs(t, err, perrors.ErrConfiguration)
}
