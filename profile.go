package goreflcore

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// Matrix holds the coefficients of the transfer matrix [[W, X], [Y, Z]].
type Matrix struct {
	W, X, Y, Z float64
}

// Identity is the transfer matrix of an empty profile.
var Identity = Matrix{W: 1, Z: 1}

// Det returns W*Z - X*Y; it is 1 for every profile.
func (m Matrix) Det() float64 {
	return m.W*m.Z - m.X*m.Y
}

func (m Matrix) dense() *mat.Dense {
	return mat.NewDense(2, 2, []float64{m.W, m.X, m.Y, m.Z})
}

// Profile is a known SLD profile evaluated through its transfer matrix.
// The set of implementations is closed: Constant, Function, Concat and Slabs.
type Profile interface {
	TransferMatrix(q float64) Matrix
	profile()
}

// RefractiveIndex returns sqrt(1 - 16 pi sld / q^2) for sld in 10^-6 inv A^2.
// It is imaginary below the critical edge.
func RefractiveIndex(q, sld float64) complex128 {
	return cmplx.Sqrt(complex(1-16*math.Pi*sld*1e-6/(q*q), 0))
}

// slabMatrix is the transfer matrix of a uniform slab. Written in terms of
// k = q*n it stays real on both sides of the critical edge.
func slabMatrix(q, sld, thickness float64) Matrix {
	kSq := q*q - 16*math.Pi*sld*1e-6
	switch {
	case kSq > 0:
		k := math.Sqrt(kSq)
		s, c := math.Sincos(0.5 * k * thickness)
		return Matrix{W: c, X: q * s / k, Y: -k / q * s, Z: c}
	case kSq < 0:
		kappa := math.Sqrt(-kSq)
		phi := 0.5 * kappa * thickness
		sh, ch := math.Sinh(phi), math.Cosh(phi)
		return Matrix{W: ch, X: q * sh / kappa, Y: kappa / q * sh, Z: ch}
	default:
		return Matrix{W: 1, X: 0.5 * q * thickness, Y: 0, Z: 1}
	}
}

// product multiplies the matrices left to right.
func product(ms []Matrix) Matrix {
	if len(ms) == 0 {
		return Identity
	}
	acc := ms[0].dense()
	var tmp mat.Dense
	for _, m := range ms[1:] {
		tmp.Mul(acc, m.dense())
		acc.Copy(&tmp)
	}
	return Matrix{W: acc.At(0, 0), X: acc.At(0, 1), Y: acc.At(1, 0), Z: acc.At(1, 1)}
}

// Constant is a uniform slab.
type Constant struct {
	SLD       float64
	Thickness float64
}

// NewConstant builds a uniform slab. Rough slabs are not supported.
func NewConstant(sld, thickness, sigma float64) (Constant, error) {
	if sigma > 0 {
		return Constant{}, fmt.Errorf("constant profile with sigma %g: %w", sigma, ErrRoughness)
	}
	return Constant{SLD: sld, Thickness: thickness}, nil
}

func (c Constant) TransferMatrix(q float64) Matrix {
	return slabMatrix(q, c.SLD, c.Thickness)
}

func (Constant) profile() {}

// Concat composes sub-profiles. The first element is closest to the
// substrate; Reverse flips the multiplication order.
type Concat struct {
	Profiles []Profile
	Reverse  bool
}

func NewConcat(profiles []Profile, reverse bool) Concat {
	return Concat{Profiles: append([]Profile(nil), profiles...), Reverse: reverse}
}

func (c Concat) TransferMatrix(q float64) Matrix {
	ms := make([]Matrix, len(c.Profiles))
	for i, p := range c.Profiles {
		if c.Reverse {
			ms[len(ms)-1-i] = p.TransferMatrix(q)
		} else {
			ms[i] = p.TransferMatrix(q)
		}
	}
	return product(ms)
}

func (Concat) profile() {}

// Function approximates a continuous SLD function on [Lo, Hi] by slabs of
// width Dx sampled on an even grid.
type Function struct {
	Lo, Hi, Dx float64

	samples []float64
	slabs   Concat
}

// NewFunction samples f at ceil((hi-lo)/dx) points spanning the support.
func NewFunction(f func(z float64) float64, lo, hi, dx float64) (*Function, error) {
	if f == nil {
		return nil, fmt.Errorf("function profile: nil function: %w", ErrInvalidConfig)
	}
	if dx <= 0 || hi <= lo {
		return nil, fmt.Errorf("function profile: support [%g, %g] with dx %g: %w", lo, hi, dx, ErrInvalidConfig)
	}
	n := int(math.Ceil((hi - lo) / dx))
	xs := Linspace(lo, hi, n)
	fn := &Function{Lo: lo, Hi: hi, Dx: dx, samples: make([]float64, n)}
	slabs := make([]Profile, n)
	for i, x := range xs {
		fn.samples[i] = f(x)
		slabs[i] = Constant{SLD: fn.samples[i], Thickness: dx}
	}
	fn.slabs = NewConcat(slabs, false)
	return fn, nil
}

// Samples returns the SLD of each slab.
func (f *Function) Samples() []float64 {
	return append([]float64(nil), f.samples...)
}

func (f *Function) TransferMatrix(q float64) Matrix {
	return f.slabs.TransferMatrix(q)
}

func (*Function) profile() {}

// Slabs is a discretized profile: slab i spans z[i]..z[i+1] with SLD rho[i].
type Slabs struct {
	z, rho []float64
}

func NewSlabs(z, rho []float64) (Slabs, error) {
	if len(z) < 2 {
		return Slabs{}, fmt.Errorf("slabs profile: %w", ErrEmptyData)
	}
	if len(rho) < len(z)-1 {
		return Slabs{}, fmt.Errorf("slabs profile: %d sld values for %d slabs: %w", len(rho), len(z)-1, ErrLengthMismatch)
	}
	return Slabs{z: append([]float64(nil), z...), rho: append([]float64(nil), rho...)}, nil
}

// Thickness returns the extent of the profile.
func (s Slabs) Thickness() float64 {
	lo, hi := s.z[0], s.z[0]
	for _, v := range s.z {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return hi - lo
}

func (s Slabs) TransferMatrix(q float64) Matrix {
	ms := make([]Matrix, len(s.z)-1)
	for i := range ms {
		ms[i] = slabMatrix(q, s.rho[i], s.z[i+1]-s.z[i])
	}
	return product(ms)
}

func (Slabs) profile() {}

// Reflection evaluates the reflection amplitude of a profile between a
// fronting and a backing medium (Majkrzak and Berk 2003, eq. 17). Points with
// |q| < 1e-10 return 1.
func Reflection(p Profile, fronting, backing float64, q []float64) ([]complex128, error) {
	if math.Abs(fronting) >= 1e5 || math.Abs(backing) >= 1e5 {
		return nil, fmt.Errorf("reflection: fronting %g backing %g: %w", fronting, backing, ErrSurroundTooHigh)
	}
	r := make([]complex128, len(q))
	for i, qi := range q {
		if math.Abs(qi) < 1e-10 {
			r[i] = 1
			continue
		}
		f, h := RefractiveIndex(qi, fronting), RefractiveIndex(qi, backing)
		m := p.TransferMatrix(qi)
		a, b, c, d := complex(m.W, 0), complex(m.X, 0), complex(m.Y, 0), complex(m.Z, 0)
		r[i] = (f*h*b + c + 1i*(f*d-h*a)) / (f*h*b - c + 1i*(f*d+h*a))
	}
	return r, nil
}
