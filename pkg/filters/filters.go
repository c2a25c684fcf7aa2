// Package filters implements the frequency-domain ramp filters applied to
// sinogram profiles before filtered backprojection.
package filters

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/fourier"

	perrors "petsysrecon/pkg/errors"
)

// Filter selects the apodising window applied on top of the ramp
type Filter int

const (
	RamLak Filter = iota
	SheppLogan
	Cosine
	Hamming
	Hann
)

func (f Filter) String() string {
	switch f {
	case RamLak:
		return "ramlak"
	case SheppLogan:
		return "shepp-logan"
	case Cosine:
		return "cosine"
	case Hamming:
		return "hamming"
	case Hann:
		return "hann"
	default:
		return "unknown"
	}
}

// Parse maps a configuration name to a Filter.
func Parse(name string) (Filter, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "ramlak", "ram-lak", "ramp":
		return RamLak, nil
	case "shepp-logan", "shepplogan":
		return SheppLogan, nil
	case "cosine":
		return Cosine, nil
	case "hamming":
		return Hamming, nil
	case "hann", "hanning":
		return Hann, nil
	default:
		return 0, perrors.NewConfigurationError("filter", "unknown filter %q", name)
	}
}

// PaddedSize returns the FFT length used for profiles of n bins: the next
// power of two of 2n, and never less than 64.
func PaddedSize(n int) int {
	size := 64
	for size < 2*n {
		size *= 2
	}
	return size
}

// Bank filters profiles of a fixed length. A Bank reuses FFT work space and
// is not safe for concurrent use.
type Bank struct {
	filter   Filter
	bins     int
	fft      *fourier.FFT
	response []float64
	padded   []float64
	coeff    []complex128
}

// NewBank prepares the frequency response of f for profiles of bins values.
func NewBank(f Filter, bins int) *Bank {
	size := PaddedSize(bins)
	b := &Bank{
		filter: f,
		bins:   bins,
		fft:    fourier.NewFFT(size),
		padded: make([]float64, size),
	}
	b.response = b.buildResponse(size)
	return b
}

// buildResponse returns the size/2+1 non-negative frequency gains. The ramp
// is taken from the Fourier transform of its band-limited spatial kernel,
// which avoids the zero DC gain of a sampled |f|.
func (b *Bank) buildResponse(size int) []float64 {
	kernel := make([]float64, size)
	kernel[0] = 0.25
	for i := 1; i <= size/2; i += 2 {
		v := -1 / (math.Pi * math.Pi * float64(i) * float64(i))
		kernel[i] = v
		kernel[size-i] = v
	}
	coeff := b.fft.Coefficients(nil, kernel)

	resp := make([]float64, len(coeff))
	for k, c := range coeff {
		f := float64(k) / float64(size)
		resp[k] = 2 * real(c) * window(b.filter, f)
	}
	return resp
}

// window returns the apodisation gain at normalised frequency f in [0, 0.5].
func window(filter Filter, f float64) float64 {
	switch filter {
	case SheppLogan:
		if f == 0 {
			return 1
		}
		w := math.Pi * f
		return math.Sin(w) / w
	case Cosine:
		return math.Cos(math.Pi * f)
	case Hamming:
		return 0.54 + 0.46*math.Cos(2*math.Pi*f)
	case Hann:
		return 0.5 + 0.5*math.Cos(2*math.Pi*f)
	default:
		return 1
	}
}

// Response returns the frequency gains for bins 0..size/2.
func (b *Bank) Response() []float64 {
	return append([]float64(nil), b.response...)
}

// Apply filters one profile, zero padding it to the FFT length. dst
// receives the filtered values and is allocated when nil.
func (b *Bank) Apply(dst, profile []float64) []float64 {
	if len(profile) != b.bins {
		panic("filters: profile length mismatch")
	}
	if dst == nil {
		dst = make([]float64, b.bins)
	}
	for i := range b.padded {
		b.padded[i] = 0
	}
	copy(b.padded, profile)

	b.coeff = b.fft.Coefficients(b.coeff, b.padded)
	for k := range b.coeff {
		b.coeff[k] *= complex(b.response[k], 0)
	}
	b.fft.Sequence(b.padded, b.coeff)

	scale := 1 / float64(len(b.padded))
	for i := range dst[:b.bins] {
		dst[i] = b.padded[i] * scale
	}
	return dst
}
