package goreflcore

import (
	"fmt"
)

// Measurement is one reflectivity curve. DR, DQ and Wavelength are optional
// and nil when absent. The core treats Measurements as read-only.
type Measurement struct {
	Name       string
	Q          []float64
	R          []float64
	DR         []float64
	DQ         []float64
	Wavelength []float64
}

// NewMeasurement checks that the arrays line up.
func NewMeasurement(q, r, dr []float64) (Measurement, error) {
	m := Measurement{Q: q, R: r, DR: dr}
	return m, m.Validate()
}

// MeasurementFromColumns interprets column data the way reduced reflectivity
// files are laid out:
//
//	2 columns: Q R
//	3 columns: Q R dR
//	4 columns: Q dQ R dR
//	5+ columns: Q dQ R dR L (extra columns ignored)
func MeasurementFromColumns(cols [][]float64) (Measurement, error) {
	var m Measurement
	switch n := len(cols); {
	case n < 2:
		return m, fmt.Errorf("measurement with %d columns: %w", n, ErrColumns)
	case n == 2:
		m.Q, m.R = cols[0], cols[1]
	case n == 3:
		m.Q, m.R, m.DR = cols[0], cols[1], cols[2]
	case n == 4:
		m.Q, m.DQ, m.R, m.DR = cols[0], cols[1], cols[2], cols[3]
	default:
		m.Q, m.DQ, m.R, m.DR, m.Wavelength = cols[0], cols[1], cols[2], cols[3], cols[4]
	}
	return m, m.Validate()
}

func (m Measurement) Len() int {
	return len(m.Q)
}

// HasUncertainty reports whether per-point dR is present.
func (m Measurement) HasUncertainty() bool {
	return m.DR != nil
}

// Validate reports malformed measurements.
func (m Measurement) Validate() error {
	if len(m.Q) == 0 {
		return fmt.Errorf("measurement %q: %w", m.Name, ErrEmptyData)
	}
	columns := []struct {
		name string
		v    []float64
	}{{"R", m.R}, {"dR", m.DR}, {"dQ", m.DQ}, {"L", m.Wavelength}}
	for _, c := range columns {
		if c.v != nil && len(c.v) != len(m.Q) {
			return fmt.Errorf("measurement %q: %s has %d points, Q has %d: %w", m.Name, c.name, len(c.v), len(m.Q), ErrLengthMismatch)
		}
	}
	if m.R == nil {
		return fmt.Errorf("measurement %q: no R values: %w", m.Name, ErrEmptyData)
	}
	return nil
}

// sameGrid reports whether two Q grids are identical point by point.
func sameGrid(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Amplitude is a complex reflection amplitude on a Q grid. DRealR and
// DImagR are nil when no uncertainty estimate exists.
type Amplitude struct {
	Q      []float64
	RealR  []float64
	ImagR  []float64
	DRealR []float64
	DImagR []float64
}

func (a *Amplitude) Len() int {
	return len(a.Q)
}

// HasUncertainty reports whether DRealR and DImagR are set.
func (a *Amplitude) HasUncertainty() bool {
	return a.DRealR != nil && a.DImagR != nil
}

// Complex returns RealR + i ImagR.
func (a *Amplitude) Complex() []complex128 {
	out := make([]complex128, len(a.Q))
	for i := range out {
		out[i] = complex(a.RealR[i], a.ImagR[i])
	}
	return out
}

// Clean drops every Q index where the amplitude, or its uncertainty when
// present, is not finite. The arrays stay aligned.
func (a *Amplitude) Clean() {
	keep := func(i int) bool {
		if !isFinite(a.RealR[i]) || !isFinite(a.ImagR[i]) {
			return false
		}
		if a.HasUncertainty() && (!isFinite(a.DRealR[i]) || !isFinite(a.DImagR[i])) {
			return false
		}
		return true
	}
	var idx []int
	for i := range a.Q {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	a.Q = pick(a.Q, idx)
	a.RealR = pick(a.RealR, idx)
	a.ImagR = pick(a.ImagR, idx)
	if a.HasUncertainty() {
		a.DRealR = pick(a.DRealR, idx)
		a.DImagR = pick(a.DImagR, idx)
	}
}

// RealPart returns the (Q, RealR, dRealR) input of an inversion.
func (a *Amplitude) RealPart() InversionData {
	return InversionData{Q: a.Q, RealR: a.RealR, DRealR: a.DRealR}
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

func squaredModulus(r []complex128) []float64 {
	out := make([]float64, len(r))
	for i, v := range r {
		out[i] = real(v)*real(v) + imag(v)*imag(v)
	}
	return out
}
