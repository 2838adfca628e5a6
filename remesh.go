package goreflcore

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Linspace returns n evenly spaced values over [lo, hi].
func Linspace(lo, hi float64, n int) []float64 {
	switch {
	case n <= 0:
		return []float64{}
	case n == 1:
		return []float64{lo}
	}
	return floats.Span(make([]float64, n), lo, hi)
}

// Interp evaluates the piecewise linear interpolant through (xp, fp) at x.
// xp must be increasing. Points left of xp[0] take left, points right of the
// last knot take right.
func Interp(x, xp, fp []float64, left, right float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = interpAt(v, xp, fp, left, right)
	}
	return out
}

// InterpClamped is Interp with the end values held outside the knots.
func InterpClamped(x, xp, fp []float64) []float64 {
	if len(fp) == 0 {
		return make([]float64, len(x))
	}
	return Interp(x, xp, fp, fp[0], fp[len(fp)-1])
}

func interpAt(v float64, xp, fp []float64, left, right float64) float64 {
	n := len(xp)
	switch {
	case n == 0:
		return math.NaN()
	case v < xp[0]:
		return left
	case v > xp[n-1]:
		return right
	case v == xp[n-1]:
		return fp[n-1]
	}
	j := sort.SearchFloat64s(xp, v)
	if xp[j] == v {
		return fp[j]
	}
	x0, x1 := xp[j-1], xp[j]
	t := (v - x0) / (x1 - x0)
	return fp[j-1] + t*(fp[j]-fp[j-1])
}

// Remesh resamples (x, y) onto npts even points over [xmin, xmax], filling
// with left and right outside the data. Non-finite pairs are dropped and npts
// is capped at the number of remaining points.
func Remesh(x, y []float64, xmin, xmax float64, npts int, left, right float64) (newX, newY []float64) {
	fx, fy := finitePairs(x, y)
	if npts > len(fx) {
		npts = len(fx)
	}
	newX = Linspace(xmin, xmax, npts)
	return newX, Interp(newX, fx, fy, left, right)
}

// RemeshClamped is Remesh holding the end values outside the data.
func RemeshClamped(x, y []float64, xmin, xmax float64, npts int) (newX, newY []float64) {
	fx, fy := finitePairs(x, y)
	if npts > len(fx) {
		npts = len(fx)
	}
	newX = Linspace(xmin, xmax, npts)
	return newX, InterpClamped(newX, fx, fy)
}

func finitePairs(x, y []float64) (fx, fy []float64) {
	n := min(len(x), len(y))
	fx, fy = make([]float64, 0, n), make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if isFinite(x[i]) && isFinite(y[i]) {
			fx = append(fx, x[i])
			fy = append(fy, y[i])
		}
	}
	return fx, fy
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !isFinite(x) {
			return false
		}
	}
	return true
}

// diff returns v[i+1]-v[i].
func diff(v []float64) []float64 {
	if len(v) < 2 {
		return []float64{}
	}
	out := make([]float64, len(v)-1)
	floats.SubTo(out, v[1:], v[:len(v)-1])
	return out
}
