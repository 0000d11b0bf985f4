package orbit

import (
	"math"

	"github.com/jyannick/OrbitPlot/internal/transform"
)

// Equinoctial holds equinoctial elements, non-singular for circular and
// equatorial orbits:
//
//	ex = e·cos(ω+Ω)       ey = e·sin(ω+Ω)
//	hx = tan(i/2)·cos(Ω)  hy = tan(i/2)·sin(Ω)
//	λM = M + ω + Ω
//
// A is in km. The set is singular only for retrograde equatorial orbits.
type Equinoctial struct {
	A       float64
	Ex, Ey  float64
	Hx, Hy  float64
	LambdaM float64
}

// Equinoctial converts k to equinoctial elements.
func (k Keplerian) Equinoctial() Equinoctial {
	lonPerigee := k.Pom + k.RAAN
	t := math.Tan(k.I / 2)
	return Equinoctial{
		A:       k.A,
		Ex:      k.E * math.Cos(lonPerigee),
		Ey:      k.E * math.Sin(lonPerigee),
		Hx:      t * math.Cos(k.RAAN),
		Hy:      t * math.Sin(k.RAAN),
		LambdaM: wrap(k.MeanAnomaly() + lonPerigee),
	}
}

// EquinoctialFromState computes osculating equinoctial elements of s.
func EquinoctialFromState(s transform.State, mu float64) (Equinoctial, error) {
	k, err := FromState(s, mu)
	if err != nil {
		return Equinoctial{}, err
	}
	return k.Equinoctial(), nil
}

// Keplerian converts q back to classical elements.
func (q Equinoctial) Keplerian() (Keplerian, error) {
	e := math.Hypot(q.Ex, q.Ey)
	if e >= 1 || q.A <= 0 {
		return Keplerian{}, ErrUnbound
	}
	t := math.Hypot(q.Hx, q.Hy)
	inc := 2 * math.Atan(t)

	var raan, lonPerigee float64
	if t > 0 {
		raan = math.Atan2(q.Hy, q.Hx)
	}
	if e > 0 {
		lonPerigee = math.Atan2(q.Ey, q.Ex)
	}
	m := wrap(q.LambdaM - lonPerigee)
	ecc, err := solveKepler(m, e)
	if err != nil {
		return Keplerian{}, err
	}
	sinE, cosE := math.Sincos(ecc)
	nu := math.Atan2(math.Sqrt(1-e*e)*sinE, cosE-e)

	return Keplerian{
		A:           q.A,
		E:           e,
		I:           inc,
		Pom:         wrap(lonPerigee - raan),
		RAAN:        wrap(raan),
		TrueAnomaly: wrap(nu),
	}, nil
}

// State returns the inertial state described by q.
func (q Equinoctial) State(mu float64) (transform.State, error) {
	k, err := q.Keplerian()
	if err != nil {
		return transform.State{}, err
	}
	return k.State(mu)
}

// Sub returns the element-wise difference q - o, with the mean longitude
// difference wrapped to [-π, π).
func (q Equinoctial) Sub(o Equinoctial) Equinoctial {
	return Equinoctial{
		A:       q.A - o.A,
		Ex:      q.Ex - o.Ex,
		Ey:      q.Ey - o.Ey,
		Hx:      q.Hx - o.Hx,
		Hy:      q.Hy - o.Hy,
		LambdaM: wrapPi(q.LambdaM - o.LambdaM),
	}
}

// Add returns q + d with the mean longitude wrapped to [0, 2π).
func (q Equinoctial) Add(d Equinoctial) Equinoctial {
	return Equinoctial{
		A:       q.A + d.A,
		Ex:      q.Ex + d.Ex,
		Ey:      q.Ey + d.Ey,
		Hx:      q.Hx + d.Hx,
		Hy:      q.Hy + d.Hy,
		LambdaM: wrap(q.LambdaM + d.LambdaM),
	}
}
