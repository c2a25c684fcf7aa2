package models

// Event is one detected coincidence as recorded by the acquisition
// software. Positions are SiPM coordinates of the two hits; the sinogram
// coordinates come in two conventions, the simple one and the
// rotation-corrected (Anger) one.
type Event struct {
	SiPMPosX1 float64
	SiPMPosY1 float64
	SiPMPosX2 float64
	SiPMPosY2 float64

	// RSino and AngleSino are the radial offset and projection angle
	// computed with the simple convention.
	RSino     float64
	AngleSino float64

	// Energy1 and Energy2 are the corrected energies of the two hits in keV.
	Energy1 float64
	Energy2 float64

	// Slice is the axial slice label of the coincidence.
	Slice float64

	ChipID1 float64
	ChipID2 float64

	// RSinoAnger and AngleSinoAnger use the rotation-corrected convention.
	RSinoAnger     float64
	AngleSinoAnger float64
}

// Branch names of the event fields, as written by the acquisition software
// into the tomographicCoincidences tree.
const (
	FieldSiPMPosX1      = "SiPMPosX_1"
	FieldSiPMPosY1      = "SiPMPosY_1"
	FieldSiPMPosX2      = "SiPMPosX_2"
	FieldSiPMPosY2      = "SiPMPosY_2"
	FieldRSino          = "rSino_1"
	FieldAngleSino      = "angleSino_1"
	FieldEnergy1        = "energyCorrected_1"
	FieldEnergy2        = "energyCorrected_2"
	FieldSlice          = "slice_1"
	FieldChipID1        = "chipID_1"
	FieldChipID2        = "chipID_2"
	FieldRSinoAnger     = "rSinoAnger_1"
	FieldAngleSinoAnger = "angleSinoAnger_1"
)

// EventFields lists every field of an Event in branch order.
var EventFields = []string{
	FieldSiPMPosX1, FieldSiPMPosY1, FieldSiPMPosX2, FieldSiPMPosY2,
	FieldRSino, FieldAngleSino, FieldEnergy1, FieldEnergy2,
	FieldSlice, FieldChipID1, FieldChipID2, FieldRSinoAnger, FieldAngleSinoAnger,
}

// Values returns the event fields in EventFields order.
func (e Event) Values() []float64 {
	return []float64{
		e.SiPMPosX1, e.SiPMPosY1, e.SiPMPosX2, e.SiPMPosY2,
		e.RSino, e.AngleSino, e.Energy1, e.Energy2,
		e.Slice, e.ChipID1, e.ChipID2, e.RSinoAnger, e.AngleSinoAnger,
	}
}
