package sinogram

import (
	"fmt"
	"math"
	"strings"

	perrors "petsysrecon/pkg/errors"
)

// Window is a pair of inclusive energy acceptance windows in keV, one per
// hit of the coincidence.
type Window struct {
	E1Min, E1Max float64
	E2Min, E2Max float64
}

// Accept reports whether both energies fall inside their windows.
func (w Window) Accept(e1, e2 float64) bool {
	return e1 >= w.E1Min && e1 <= w.E1Max && e2 >= w.E2Min && e2 <= w.E2Max
}

// Validate rejects non-finite or inverted bounds.
func (w Window) Validate() error {
	bounds := []float64{w.E1Min, w.E1Max, w.E2Min, w.E2Max}
	for _, v := range bounds {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return perrors.NewConfigurationError("energy window", "bounds must be finite, got %v", bounds)
		}
	}
	if w.E1Min > w.E1Max {
		return perrors.NewConfigurationError("energy window 1", "min %g exceeds max %g", w.E1Min, w.E1Max)
	}
	if w.E2Min > w.E2Max {
		return perrors.NewConfigurationError("energy window 2", "min %g exceeds max %g", w.E2Min, w.E2Max)
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("E1 [%g, %g], E2 [%g, %g]", w.E1Min, w.E1Max, w.E2Min, w.E2Max)
}

// Coordinates selects which sinogram coordinate pair of an event is binned.
type Coordinates int

const (
	// Simple bins (rSino_1, angleSino_1)
	Simple Coordinates = iota
	// Anger bins the rotation-corrected (rSinoAnger_1, angleSinoAnger_1)
	Anger
)

func (c Coordinates) String() string {
	switch c {
	case Simple:
		return "simple"
	case Anger:
		return "anger"
	default:
		return "unknown"
	}
}

// ParseCoordinates maps a configuration name to a Coordinates value.
func ParseCoordinates(name string) (Coordinates, error) {
	switch strings.ToLower(name) {
	case "", "simple":
		return Simple, nil
	case "anger":
		return Anger, nil
	default:
		return 0, perrors.NewConfigurationError("binning.coordinates", "unknown convention %q", name)
	}
}
