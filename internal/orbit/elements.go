// Package orbit converts between inertial states and classical or equinoctial
// orbital elements for closed (elliptical) orbits.
//
// Lengths are in km and gravitational parameters in km³/s², matching the
// states SGP4 produces. Angles are radians in [0, 2π).
package orbit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/transform"
)

var (
	// ErrUnbound is returned for parabolic or hyperbolic states.
	ErrUnbound = errors.New("orbit is not bound (e >= 1)")
	// ErrDegenerate is returned for states with no defined orbital plane
	// or non-finite components.
	ErrDegenerate = errors.New("degenerate orbital state")
	// ErrNoConvergence is returned when Kepler's equation does not converge.
	ErrNoConvergence = errors.New("kepler equation did not converge")
)

// Tolerance under which eccentricity or inclination are treated as zero when
// choosing the reference direction for undefined angles.
const angularEps = 1e-11

// Keplerian holds classical orbital elements. A is in km.
type Keplerian struct {
	A           float64 // semi-major axis
	E           float64 // eccentricity
	I           float64 // inclination
	Pom         float64 // argument of perigee
	RAAN        float64 // right ascension of the ascending node
	TrueAnomaly float64
}

// FromState computes osculating Keplerian elements from an inertial state,
// following Vallado's RV2COE. For circular orbits the argument of perigee is
// zero and the true anomaly measures from the node; for equatorial orbits the
// node is taken on the X axis.
func FromState(s transform.State, mu float64) (Keplerian, error) {
	if !s.Valid() || mu <= 0 {
		return Keplerian{}, ErrDegenerate
	}
	r := r3.Norm(s.Position)
	v := r3.Norm(s.Velocity)
	h := r3.Cross(s.Position, s.Velocity)
	hn := r3.Norm(h)
	if r == 0 || hn == 0 {
		return Keplerian{}, ErrDegenerate
	}

	energy := v*v/2 - mu/r
	if energy >= 0 {
		return Keplerian{}, fmt.Errorf("%w: specific energy %.6g km²/s²", ErrUnbound, energy)
	}
	a := -mu / (2 * energy)

	rv := r3.Dot(s.Position, s.Velocity)
	eVec := r3.Scale(1/mu, r3.Sub(
		r3.Scale(v*v-mu/r, s.Position),
		r3.Scale(rv, s.Velocity),
	))
	e := r3.Norm(eVec)
	if e >= 1 {
		return Keplerian{}, fmt.Errorf("%w: e = %.6g", ErrUnbound, e)
	}

	hxy := math.Hypot(h.X, h.Y)
	inc := math.Atan2(hxy, h.Z)

	var raan float64
	if hxy > angularEps*hn {
		raan = math.Atan2(h.X, -h.Y)
	}

	// Node direction and its in-plane normal.
	node := r3.Vec{X: math.Cos(raan), Y: math.Sin(raan)}
	hHat := r3.Scale(1/hn, h)
	q := r3.Cross(hHat, node)

	argLat := math.Atan2(r3.Dot(s.Position, q), r3.Dot(s.Position, node))
	var pom float64
	if e > angularEps {
		pom = math.Atan2(r3.Dot(eVec, q), r3.Dot(eVec, node))
	}

	return Keplerian{
		A:           a,
		E:           e,
		I:           inc,
		Pom:         wrap(pom),
		RAAN:        wrap(raan),
		TrueAnomaly: wrap(argLat - pom),
	}, nil
}

// MeanAnomaly returns the mean anomaly corresponding to the true anomaly.
func (k Keplerian) MeanAnomaly() float64 {
	sinV, cosV := math.Sincos(k.TrueAnomaly)
	ecc := math.Atan2(math.Sqrt(1-k.E*k.E)*sinV, k.E+cosV)
	return wrap(ecc - k.E*math.Sin(ecc))
}

// State returns the inertial position and velocity of k.
func (k Keplerian) State(mu float64) (transform.State, error) {
	if k.E < 0 || k.E >= 1 || k.A <= 0 {
		return transform.State{}, ErrUnbound
	}
	p := k.A * (1 - k.E*k.E)
	sinV, cosV := math.Sincos(k.TrueAnomaly)
	r := p / (1 + k.E*cosV)
	sqrtMuP := math.Sqrt(mu / p)

	posPQW := r3.Vec{X: r * cosV, Y: r * sinV}
	velPQW := r3.Vec{X: -sqrtMuP * sinV, Y: sqrtMuP * (k.E + cosV)}

	// PQW -> inertial (Vallado Eq 2-82).
	rot := transform.Compose(
		transform.ROT3(-k.RAAN),
		transform.ROT1(-k.I),
		transform.ROT3(-k.Pom),
	)
	s := transform.State{
		Position: transform.Apply(rot, posPQW),
		Velocity: transform.Apply(rot, velPQW),
	}
	if !s.Valid() {
		return transform.State{}, ErrDegenerate
	}
	return s, nil
}

// MeanMotion returns the Keplerian mean motion in rad/s for a semi-major axis in km.
func MeanMotion(a, mu float64) float64 {
	return math.Sqrt(mu / (a * a * a))
}

// SemiMajorAxis returns the semi-major axis in km for a mean motion in rad/s.
func SemiMajorAxis(n, mu float64) float64 {
	return math.Cbrt(mu / (n * n))
}

// solveKepler returns the eccentric anomaly for mean anomaly m.
func solveKepler(m, e float64) (float64, error) {
	ecc := m
	if e > 0.8 {
		ecc = math.Pi
	}
	for i := 0; i < 50; i++ {
		f := ecc - e*math.Sin(ecc) - m
		step := f / (1 - e*math.Cos(ecc))
		ecc -= step
		if math.Abs(step) < 1e-14 {
			return ecc, nil
		}
	}
	return 0, fmt.Errorf("%w: M = %.6g, e = %.6g", ErrNoConvergence, m, e)
}

// wrap normalizes an angle to [0, 2π).
func wrap(x float64) float64 {
	x = math.Mod(x, 2*math.Pi)
	if x < 0 {
		x += 2 * math.Pi
	}
	return x
}

// wrapPi normalizes an angle to [-π, π).
func wrapPi(x float64) float64 {
	return wrap(x+math.Pi) - math.Pi
}
