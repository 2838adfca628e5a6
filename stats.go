package goreflcore

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// columnStats returns the pointwise mean and population standard deviation
// over trials. With masked set, non-finite samples are excluded; a column
// with no finite samples yields NaN.
func columnStats(trials [][]float64, masked bool) (mean, std []float64) {
	if len(trials) == 0 {
		return nil, nil
	}
	n := len(trials[0])
	mean, std = make([]float64, n), make([]float64, n)
	col := make([]float64, 0, len(trials))
	for j := 0; j < n; j++ {
		col = col[:0]
		for _, t := range trials {
			if masked && !isFinite(t[j]) {
				continue
			}
			col = append(col, t[j])
		}
		switch len(col) {
		case 0:
			mean[j], std[j] = math.NaN(), math.NaN()
			continue
		case 1:
			mean[j] = col[0]
			continue
		}
		m, v := stat.PopMeanVariance(col, nil)
		mean[j], std[j] = m, math.Sqrt(math.Max(v, 0))
	}
	return mean, std
}
