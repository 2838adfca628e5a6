// Package dataio reads and writes the whitespace separated column files used
// for reflectivity data, amplitudes and profiles.
package dataio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kacperjurak/goreflcore"
)

// ReadTable parses rows of floats and returns them column wise. Blank lines
// and lines starting with # are skipped; every row must have as many fields
// as the first.
func ReadTable(r io.Reader) ([][]float64, error) {
	var cols [][]float64
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if cols == nil {
			cols = make([][]float64, len(fields))
		}
		if len(fields) != len(cols) {
			return nil, fmt.Errorf("line %d: %d fields, expected %d: %w", lineNo, len(fields), len(cols), goreflcore.ErrLengthMismatch)
		}
		for i, f := range fields {
			val, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			cols[i] = append(cols[i], val)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, goreflcore.ErrEmptyData
	}
	return cols, nil
}

// ReadMeasurement reads a reflectivity curve with 2 to 5 columns.
func ReadMeasurement(r io.Reader) (goreflcore.Measurement, error) {
	cols, err := ReadTable(r)
	if err != nil {
		return goreflcore.Measurement{}, err
	}
	return goreflcore.MeasurementFromColumns(cols)
}

// ReadRealAmplitude reads Q, Re r and optionally dRe r.
func ReadRealAmplitude(r io.Reader) (goreflcore.InversionData, error) {
	cols, err := ReadTable(r)
	if err != nil {
		return goreflcore.InversionData{}, err
	}
	switch len(cols) {
	case 2:
		return goreflcore.InversionData{Q: cols[0], RealR: cols[1]}, nil
	case 3:
		return goreflcore.InversionData{Q: cols[0], RealR: cols[1], DRealR: cols[2]}, nil
	}
	return goreflcore.InversionData{}, fmt.Errorf("real amplitude with %d columns: %w", len(cols), goreflcore.ErrColumns)
}

// LoadMeasurement opens path and reads it with ReadMeasurement.
func LoadMeasurement(path string) (goreflcore.Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return goreflcore.Measurement{}, err
	}
	defer f.Close()
	m, err := ReadMeasurement(f)
	if err != nil {
		return m, fmt.Errorf("%s: %w", path, err)
	}
	m.Name = path
	return m, nil
}

// LoadRealAmplitude opens path and reads it with ReadRealAmplitude.
func LoadRealAmplitude(path string) (goreflcore.InversionData, error) {
	f, err := os.Open(path)
	if err != nil {
		return goreflcore.InversionData{}, err
	}
	defer f.Close()
	d, err := ReadRealAmplitude(f)
	if err != nil {
		return d, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// WriteTable writes the columns row by row under a header line.
func WriteTable(w io.Writer, header string, cols ...[]float64) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintln(bw, header); err != nil {
		return err
	}
	n := 0
	if len(cols) > 0 {
		n = len(cols[0])
	}
	for _, c := range cols {
		if len(c) != n {
			return fmt.Errorf("column of %d rows, expected %d: %w", len(c), n, goreflcore.ErrLengthMismatch)
		}
	}
	row := make([]string, len(cols))
	for i := 0; i < n; i++ {
		for j, c := range cols {
			row[j] = strconv.FormatFloat(c[i], 'e', 18, 64)
		}
		if _, err := fmt.Fprintln(bw, strings.Join(row, " ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteProfile writes z, rho and drho.
func WriteProfile(w io.Writer, p goreflcore.DepthProfile) error {
	return WriteTable(w, "#  Z  Rho  dRho", p.Z, p.Rho, p.DRho)
}

// WriteAmplitude writes the reconstructed amplitude, with uncertainties when
// they are present.
func WriteAmplitude(w io.Writer, a *goreflcore.Amplitude) error {
	if a.HasUncertainty() {
		return WriteTable(w, "#  Q  RealR  ImagR  dRealR  dImagR", a.Q, a.RealR, a.ImagR, a.DRealR, a.DImagR)
	}
	return WriteTable(w, "#  Q  RealR  ImagR", a.Q, a.RealR, a.ImagR)
}

// WriteInverted writes the measured Q, the reflectivities R1 and R2 predicted
// for the inverted profile and its free film amplitude.
func WriteInverted(w io.Writer, q, r1, r2, re, im []float64) error {
	return WriteTable(w, "#  Q  R1  R2  RealR  ImagR", q, r1, r2, re, im)
}
