package goreflcore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnStats(t *testing.T) {
	trials := [][]float64{
		{1, 2, math.NaN()},
		{3, 2, math.NaN()},
		{5, math.Inf(1), math.NaN()},
	}

	mean, std := columnStats(trials, true)
	assert.Equal(t, 3.0, mean[0])
	assert.InDelta(t, math.Sqrt(8.0/3), std[0], 1e-12)
	assert.Equal(t, 2.0, mean[1])
	assert.Equal(t, 0.0, std[1])
	assert.True(t, math.IsNaN(mean[2]))
	assert.True(t, math.IsNaN(std[2]))

	mean, _ = columnStats(trials, false)
	assert.True(t, math.IsInf(mean[1], 1))

	mean, std = columnStats([][]float64{{7}}, false)
	assert.Equal(t, []float64{7}, mean)
	assert.Equal(t, []float64{0}, std)
}
