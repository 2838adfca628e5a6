package goreflcore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/cmplx"
	"reflect"

	"gonum.org/v1/gonum/mat"
)

// Geometry builds one row of the constraint system A [alpha, beta, gamma] = c
// from a reference profile's transfer matrix, the fronting and backing
// indices f and b, and the measured reflectivity (Majkrzak and Berk 2003).
type Geometry interface {
	Constraint(m Matrix, f, b, refl float64) (lhs [3]float64, rhs float64)
	String() string
}

// BottomReference places the known reference between the film and the backing.
type BottomReference struct{}

func (BottomReference) Constraint(m Matrix, f, b, refl float64) ([3]float64, float64) {
	w, x, y, z := m.W, m.X, m.Y, m.Z
	alpha := w*w + y*y/(b*b)
	beta := b*b*x*x + z*z
	gamma := b*w*x + y*z/b
	return [3]float64{f * f * beta, b * b * alpha, 2 * f * b * gamma}, 2 * f * b * (1 + refl) / (1 - refl)
}

func (BottomReference) String() string { return "bottom" }

// TopReference places the known reference between the fronting and the film.
type TopReference struct{}

func (TopReference) Constraint(m Matrix, f, b, refl float64) ([3]float64, float64) {
	w, x, y, z := m.W, m.X, m.Y, m.Z
	alpha := y*y/(f*f) + z*z
	beta := f*f*x*x + w*w
	gamma := w*y/f + f*x*z
	return [3]float64{b * b * beta, f * f * alpha, 2 * f * b * gamma}, 2 * f * b * (1 + refl) / (1 - refl)
}

func (TopReference) String() string { return "top" }

// ReferenceConfig holds the shared media and numeric tolerances.
type ReferenceConfig struct {
	Fronting float64
	Backing  float64

	// UnityTol drops measurements with |R-1| below it.
	UnityTol float64
	// ZeroTol drops Q points near zero and decides a double root.
	ZeroTol float64
	// IllConditioned is the largest accepted condition number of a 3x3 system.
	IllConditioned float64
}

func DefaultReferenceConfig(fronting, backing float64) ReferenceConfig {
	return ReferenceConfig{
		Fronting:       fronting,
		Backing:        backing,
		UnityTol:       1e-10,
		ZeroTol:        1e-10,
		IllConditioned: 1e10,
	}
}

type referenceMeasurement struct {
	Measurement
	profile Profile
}

// ReferenceVariation reconstructs the reflection of an unknown film from
// N >= 2 measurements, each taken with a different known reference profile.
type ReferenceVariation struct {
	geometry     Geometry
	cfg          ReferenceConfig
	measurements []referenceMeasurement
	logger       *log.Logger
}

func NewReferenceVariation(g Geometry, cfg ReferenceConfig) *ReferenceVariation {
	return &ReferenceVariation{geometry: g, cfg: cfg, logger: log.Default()}
}

// SetLogger redirects the skipped point messages; nil silences them.
func (v *ReferenceVariation) SetLogger(l *log.Logger) {
	v.logger = l
}

// Add registers a measurement with the reference profile it was taken with.
func (v *ReferenceVariation) Add(m Measurement, p Profile) error {
	if p == nil {
		return fmt.Errorf("reference variation: nil profile: %w", ErrInvalidConfig)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Name == "" {
		m.Name = fmt.Sprintf("SimData%d", len(v.measurements)+1)
	}
	v.measurements = append(v.measurements, referenceMeasurement{Measurement: m, profile: p})
	return nil
}

func (v *ReferenceVariation) Len() int {
	return len(v.measurements)
}

// Remesh resamples every measurement onto the common overlap of the Q
// ranges, using the smallest point count and zero fill. The uncertainty and
// wavelength columns follow R.
func (v *ReferenceVariation) Remesh() {
	if len(v.measurements) == 0 {
		return
	}
	qmin, qmax, npts := math.Inf(-1), math.Inf(1), math.MaxInt
	for _, m := range v.measurements {
		qmin = math.Max(qmin, m.Q[0])
		qmax = math.Min(qmax, m.Q[len(m.Q)-1])
		npts = min(npts, len(m.Q))
	}
	for i, m := range v.measurements {
		orig := m.Measurement
		q, r := Remesh(orig.Q, orig.R, qmin, qmax, npts, 0, 0)
		m.Measurement = Measurement{Name: orig.Name, Q: q, R: r}
		for _, col := range []struct{ src, dst *[]float64 }{
			{&orig.DR, &m.DR},
			{&orig.DQ, &m.DQ},
			{&orig.Wavelength, &m.Wavelength},
		} {
			if *col.src != nil {
				_, *col.dst = Remesh(orig.Q, *col.src, qmin, qmax, npts, 0, 0)
			}
		}
		v.measurements[i] = m
	}
}

func (v *ReferenceVariation) check() error {
	if len(v.measurements) <= 1 {
		return nil
	}
	q0 := v.measurements[0].Q
	for _, m := range v.measurements[1:] {
		if !sameGrid(q0, m.Q) {
			return fmt.Errorf("reference variation: %s: %w", m.Name, ErrQMismatch)
		}
	}
	for i, a := range v.measurements {
		for _, b := range v.measurements[i+1:] {
			if reflect.DeepEqual(a.profile, b.profile) {
				return fmt.Errorf("reference variation: %s and %s: %w", a.Name, b.Name, ErrDuplicateProfile)
			}
		}
	}
	return nil
}

// ConstraintSolution is the solve at one Q point. Rows is the number of
// constraints used; with two rows there may be two branches.
type ConstraintSolution struct {
	Rows         int
	Coefficients [][3]float64
	Reflection   []complex128
}

// ReferenceResult holds the reconstructed branches on the shifted Q grid
// q' = sqrt(q^2 + 16 pi f). R defaults to the R+ branch.
type ReferenceResult struct {
	Q       []float64
	Rall    []ConstraintSolution
	Rp, Rm  []complex128
	R       []complex128
	Skipped []*PointError
}

// Amplitude returns the default branch as an amplitude.
func (r *ReferenceResult) Amplitude() *Amplitude {
	a := &Amplitude{
		Q:     append([]float64(nil), r.Q...),
		RealR: make([]float64, len(r.R)),
		ImagR: make([]float64, len(r.R)),
	}
	for i, v := range r.R {
		a.RealR[i], a.ImagR[i] = real(v), imag(v)
	}
	return a
}

// Run solves the constraint system at every Q point. Points that cannot be
// solved are logged and left out.
func (v *ReferenceVariation) Run(ctx context.Context) (*ReferenceResult, error) {
	if err := v.check(); err != nil {
		return nil, err
	}
	res := &ReferenceResult{}
	if len(v.measurements) == 0 {
		return res, nil
	}

	fr, bk := v.cfg.Fronting*1e-6, v.cfg.Backing*1e-6
	for idx, q0 := range v.measurements[0].Q {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reference variation: %w", err)
		}
		q := real(cmplx.Sqrt(complex(q0*q0+16*math.Pi*fr, 0)))
		if math.Abs(q) < v.cfg.ZeroTol {
			continue
		}

		sol, err := v.solveAt(idx, q, fr, bk)
		if err != nil {
			perr := &PointError{Q: q, Err: err}
			res.Skipped = append(res.Skipped, perr)
			if v.logger != nil {
				v.logger.Printf("⚠️  %v", perr)
			}
			continue
		}
		res.Q = append(res.Q, q)
		res.Rall = append(res.Rall, sol)
	}

	n := len(res.Rall)
	res.Rp, res.Rm = make([]complex128, n), make([]complex128, n)
	for i, s := range res.Rall {
		res.Rp[i], res.Rm[i] = s.Reflection[0], s.Reflection[len(s.Reflection)-1]
	}
	res.R = res.Rp
	return res, nil
}

func (v *ReferenceVariation) solveAt(idx int, q, fr, bk float64) (ConstraintSolution, error) {
	fsq := 1 - 16*math.Pi*fr/(q*q)
	bsq := 1 - 16*math.Pi*bk/(q*q)
	if fsq <= 0 || bsq <= 0 {
		return ConstraintSolution{}, ErrDegenerateIndex
	}
	f, b := math.Sqrt(fsq), math.Sqrt(bsq)

	var (
		rows [][3]float64
		rhs  []float64
	)
	for _, m := range v.measurements {
		refl := m.R[idx]
		if math.Abs(refl-1) < v.cfg.UnityTol {
			continue
		}
		lhs, c := v.geometry.Constraint(m.profile.TransferMatrix(q), f, b, refl)
		rows = append(rows, lhs)
		rhs = append(rhs, c)
	}
	return SolveConstraints(rows, rhs, v.cfg)
}

// SolveConstraints solves A [alpha, beta, gamma] = c under alpha*beta -
// gamma^2 = 1:
//
//	N <= 1: ErrNotEnoughMeasurements
//	N == 2: quadratic in gamma, one or two branches
//	N == 3: linear solve, rejected above the condition threshold
//	N > 3:  least squares
func SolveConstraints(a [][3]float64, c []float64, tol ReferenceConfig) (ConstraintSolution, error) {
	n := len(a)
	switch {
	case n <= 1:
		return ConstraintSolution{}, ErrNotEnoughMeasurements
	case n == 2:
		return solveTwo(a, c, tol.ZeroTol)
	}

	A := mat.NewDense(n, 3, nil)
	for i, row := range a {
		A.SetRow(i, row[:])
	}
	if n == 3 {
		if cond := mat.Cond(A, 2); cond > tol.IllConditioned {
			return ConstraintSolution{}, fmt.Errorf("condition number %g: %w", cond, ErrIllConditioned)
		}
	}
	x, err := solveVec(A, mat.NewVecDense(n, append([]float64(nil), c...)))
	if err != nil {
		return ConstraintSolution{}, err
	}
	coef := [3]float64{x.AtVec(0), x.AtVec(1), x.AtVec(2)}
	return ConstraintSolution{
		Rows:         n,
		Coefficients: [][3]float64{coef},
		Reflection:   []complex128{reflectionFrom(coef)},
	}, nil
}

func solveTwo(a [][3]float64, c []float64, zeroTol float64) (ConstraintSolution, error) {
	B := mat.NewDense(2, 2, []float64{a[0][0], a[0][1], a[1][0], a[1][1]})
	u, err := solveVec(B, mat.NewVecDense(2, []float64{c[0], c[1]}))
	if err != nil {
		return ConstraintSolution{}, err
	}
	w, err := solveVec(B, mat.NewVecDense(2, []float64{a[0][2], a[1][2]}))
	if err != nil {
		return ConstraintSolution{}, err
	}
	u0, u1, w0, w1 := u.AtVec(0), u.AtVec(1), w.AtVec(0), w.AtVec(1)

	// alpha = u0 - w0 gamma and beta = u1 - w1 gamma substituted into
	// gamma^2 = alpha beta - 1.
	qa := w0*w1 - 1
	qb := -(u0*w1 + u1*w0)
	qc := u0*u1 - 1
	det := qb*qb - 4*qa*qc

	sol := ConstraintSolution{Rows: 2}
	add := func(gamma float64) {
		coef := [3]float64{u0 - w0*gamma, u1 - w1*gamma, gamma}
		sol.Coefficients = append(sol.Coefficients, coef)
		sol.Reflection = append(sol.Reflection, reflectionFrom(coef))
	}
	switch {
	case math.Abs(det) < zeroTol:
		add(-qb / (2 * qa))
	case det > 0:
		for _, sign := range []float64{1, -1} {
			add((-qb + sign*math.Sqrt(det)) / (2 * qa))
		}
	default:
		return ConstraintSolution{}, fmt.Errorf("discriminant %g: %w", det, ErrNoRealSolution)
	}
	return sol, nil
}

// solveVec solves a x = b, least squares when a is tall. Near singular
// systems are accepted as long as the solution is finite.
func solveVec(a *mat.Dense, b *mat.VecDense) (*mat.VecDense, error) {
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%v: %w", err, ErrIllConditioned)
		}
	}
	if !allFinite(x.RawVector().Data) {
		return nil, ErrIllConditioned
	}
	return &x, nil
}

// reflectionFrom maps (alpha, beta, gamma) to r = -(alpha - beta + 2i gamma) / (alpha + beta + 2).
func reflectionFrom(c [3]float64) complex128 {
	alpha, beta, gamma := c[0], c[1], c[2]
	return -complex(alpha-beta, 2*gamma) / complex(alpha+beta+2, 0)
}

// Choose joins the R+ and R- branches into one curve, starting on branch pm
// (0 for R+, 1 for R-). From the third point on it switches branch when the
// alternative continues the derivative better; such switches are reported
// in jump if the value continuity test agrees and in djump otherwise. This is
// a plausibility heuristic, not a proof of the physical branch.
func (r *ReferenceResult) Choose(pm int) (joined []complex128, jump, djump []int) {
	n := len(r.R)
	start := ((pm % 2) + 2) % 2
	re := [2][]float64{realParts(r.Rp), realParts(r.Rm)}
	im := [2][]float64{imagParts(r.Rp), imagParts(r.Rm)}
	if n < 2 {
		joined = make([]complex128, n)
		for i := range joined {
			joined[i] = complex(re[start][i], im[start][i])
		}
		return joined, nil, nil
	}

	p := start
	result := []float64{re[p%2][0], re[p%2][1]}
	for idx := 2; idx < n; idx++ {
		cur, alt := re[p%2][idx], re[(p+1)%2][idx]
		prev := result[idx-1]

		cNext := prev - cur
		cNextJ := prev - alt
		dmPrev := (prev - result[idx-2]) / (r.Q[idx-1] - r.Q[idx-2])
		dmNext := (cur - prev) / (r.Q[idx] - r.Q[idx-1])
		dmNextJ := (alt - prev) / (r.Q[idx] - r.Q[idx-1])

		continuity := math.Abs(cNext) > math.Abs(cNextJ)
		derivative := math.Abs(dmPrev-dmNext) > math.Abs(dmPrev-dmNextJ)
		switch {
		case continuity && derivative:
			jump = append(jump, idx)
			p++
		case derivative:
			djump = append(djump, idx)
			p++
		}
		result = append(result, re[p%2][idx])
	}

	switched := make(map[int]bool, len(jump)+len(djump))
	for _, j := range jump {
		switched[j] = true
	}
	for _, j := range djump {
		switched[j] = true
	}
	p = start
	joined = make([]complex128, n)
	joined[0] = complex(result[0], im[p][0])
	joined[1] = complex(result[1], im[p][1])
	for idx := 2; idx < n; idx++ {
		if switched[idx] {
			p++
		}
		joined[idx] = complex(result[idx], im[p%2][idx])
	}
	return joined, jump, djump
}

func realParts(v []complex128) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = real(x)
	}
	return out
}

func imagParts(v []complex128) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = imag(x)
	}
	return out
}
