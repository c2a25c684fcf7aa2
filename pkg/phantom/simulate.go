package phantom

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"petsysrecon/internal/models"
	"petsysrecon/pkg/events"
)

// Source is a point emitter. X and Y are in radial bin units around the
// centre of the field of view.
type Source struct {
	X, Y  float64
	Slice int

	// Events is the number of coincidences emitted
	Events int
}

// Simulator draws coincidence events for point sources. Radial offsets are
// exact line-of-response distances plus Gaussian blur, angles are uniform
// over [0, 180) degrees.
type Simulator struct {
	// Pixels is the crystal count per panel axis; positions and chip IDs
	// are drawn from it
	Pixels int

	// Photopeak and EnergySigma describe the detected energy in keV
	Photopeak   float64
	EnergySigma float64

	// ScatterFraction of the events get an energy drawn uniformly from
	// [ScatterLow, Photopeak)
	ScatterFraction float64
	ScatterLow      float64

	// RadialBlur is the standard deviation of the radial offset
	RadialBlur float64

	src rand.Source
}

// NewSimulator returns a simulator with a 511 keV photopeak and a fixed
// seed.
func NewSimulator(pixels int, seed int64) *Simulator {
	return &Simulator{
		Pixels:          pixels,
		Photopeak:       511,
		EnergySigma:     6,
		ScatterFraction: 0.2,
		ScatterLow:      250,
		RadialBlur:      0.15,
		src:             rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15),
	}
}

// Events simulates every source into one event table.
func (s *Simulator) Events(sources []Source) *events.Table {
	var evts []models.Event
	for _, src := range sources {
		for i := 0; i < src.Events; i++ {
			evts = append(evts, s.event(src.X, src.Y, src.Slice))
		}
	}
	return events.FromEvents(evts)
}

// Background simulates n events per slice spread uniformly over radial
// offsets in [-extent, extent].
func (s *Simulator) Background(slices []int, n int, extent float64) *events.Table {
	radial := distuv.Uniform{Min: -extent, Max: extent, Src: s.src}
	var evts []models.Event
	for _, slice := range slices {
		for i := 0; i < n; i++ {
			e := s.event(0, 0, slice)
			e.RSino = radial.Rand()
			e.RSinoAnger = e.RSino
			evts = append(evts, e)
		}
	}
	return events.FromEvents(evts)
}

func (s *Simulator) event(x, y float64, slice int) models.Event {
	theta := distuv.Uniform{Min: 0, Max: 180, Src: s.src}.Rand()
	rad := theta * math.Pi / 180
	r := x*math.Cos(rad) + y*math.Sin(rad) + s.normal(s.RadialBlur)

	return models.Event{
		SiPMPosX1:      s.index(s.Pixels),
		SiPMPosY1:      s.index(s.Pixels),
		SiPMPosX2:      s.index(s.Pixels),
		SiPMPosY2:      s.index(s.Pixels),
		RSino:          r,
		AngleSino:      theta,
		Energy1:        s.energy(),
		Energy2:        s.energy(),
		Slice:          float64(slice),
		ChipID1:        s.index(4),
		ChipID2:        4 + s.index(4),
		RSinoAnger:     r,
		AngleSinoAnger: theta,
	}
}

func (s *Simulator) energy() float64 {
	if (distuv.Uniform{Min: 0, Max: 1, Src: s.src}).Rand() < s.ScatterFraction {
		return distuv.Uniform{Min: s.ScatterLow, Max: s.Photopeak, Src: s.src}.Rand()
	}
	return s.Photopeak + s.normal(s.EnergySigma)
}

// normal draws from N(0, sigma^2); sigma 0 yields 0.
func (s *Simulator) normal(sigma float64) float64 {
	if sigma <= 0 {
		return 0
	}
	return distuv.Normal{Mu: 0, Sigma: sigma, Src: s.src}.Rand()
}

// index draws a crystal or chip index in [0, n).
func (s *Simulator) index(n int) float64 {
	return math.Floor(distuv.Uniform{Min: 0, Max: float64(n), Src: s.src}.Rand())
}
