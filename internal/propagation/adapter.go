package propagation

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/maneuver"
	"github.com/jyannick/OrbitPlot/internal/orbit"
	"github.com/jyannick/OrbitPlot/internal/transform"
)

// AppliedManeuver is a maneuver as the adapter applies it.
type AppliedManeuver struct {
	Maneuver           maneuver.Maneuver
	DeltaV             r3.Vec  // TEME, m/s
	PropellantFraction float64 // mass fraction consumed

	delta orbit.Equinoctial // element jump at the maneuver date
	dn    float64           // mean motion change, rad/s
}

// Adapter layers the analytical effect of impulsive maneuvers on top of a
// base propagator.
//
// Each maneuver is modeled as a jump in equinoctial elements, evaluated from
// the state the adapter itself predicts at the maneuver date, plus the mean
// longitude drift caused by the change in mean motion. Effects are additive,
// so the model is only valid for maneuvers small enough that the jump does
// not depend on where along the orbit it is applied later. Maneuvers must be
// added in chronological order.
type Adapter struct {
	base    Propagator
	mu      float64
	effects []AppliedManeuver
}

// NewAdapter wraps base. mu is the gravitational parameter in km³/s².
func NewAdapter(base Propagator, mu float64) *Adapter {
	return &Adapter{base: base, mu: mu}
}

// Epoch returns the base propagator epoch.
func (a *Adapter) Epoch() time.Time {
	return a.base.Epoch()
}

// Maneuvers returns the maneuvers added so far, in order.
func (a *Adapter) Maneuvers() []AppliedManeuver {
	out := make([]AppliedManeuver, len(a.effects))
	copy(out, a.effects)
	return out
}

// AddManeuver registers m. Its effect is computed from the current adapter
// state at m.Date, so every earlier maneuver is taken into account. Not safe
// to call concurrently with StateAt.
func (a *Adapter) AddManeuver(m maneuver.Maneuver) (AppliedManeuver, error) {
	if n := len(a.effects); n > 0 && m.Date.Before(a.effects[n-1].Maneuver.Date) {
		return AppliedManeuver{}, fmt.Errorf("maneuver at %s added after one at %s",
			m.Date.UTC().Format(time.RFC3339), a.effects[n-1].Maneuver.Date.UTC().Format(time.RFC3339))
	}

	pre, err := a.StateAt(m.Date)
	if err != nil {
		return AppliedManeuver{}, fmt.Errorf("state before maneuver: %w", err)
	}

	rot, err := inertialRotation(m.Frame, pre, m.Date)
	if err != nil {
		return AppliedManeuver{}, err
	}
	dv := transform.Apply(rot, m.DeltaV)

	post := pre
	post.Velocity = r3.Add(pre.Velocity, r3.Scale(1e-3, dv))

	before, err := orbit.EquinoctialFromState(pre, a.mu)
	if err != nil {
		return AppliedManeuver{}, fmt.Errorf("%w: elements before maneuver: %v", ErrPropagation, err)
	}
	after, err := orbit.EquinoctialFromState(post, a.mu)
	if err != nil {
		return AppliedManeuver{}, fmt.Errorf("%w: elements after maneuver: %v", ErrPropagation, err)
	}

	applied := AppliedManeuver{
		Maneuver:           m,
		DeltaV:             dv,
		PropellantFraction: m.PropellantFraction(),
		delta:              after.Sub(before),
		dn:                 orbit.MeanMotion(after.A, a.mu) - orbit.MeanMotion(before.A, a.mu),
	}
	a.effects = append(a.effects, applied)
	return applied, nil
}

// StateAt returns the base state at t with the effect of every maneuver
// dated at or before t. The state at a maneuver date is the post-burn state.
func (a *Adapter) StateAt(t time.Time) (transform.State, error) {
	s, err := a.base.StateAt(t)
	if err != nil {
		return transform.State{}, err
	}

	var active []AppliedManeuver
	for _, e := range a.effects {
		if e.Maneuver.Date.After(t) {
			break
		}
		active = append(active, e)
	}
	if len(active) == 0 {
		return s, nil
	}

	q, err := orbit.EquinoctialFromState(s, a.mu)
	if err != nil {
		return transform.State{}, fmt.Errorf("%w: %v", ErrPropagation, err)
	}
	for _, e := range active {
		d := e.delta
		d.LambdaM += e.dn * t.Sub(e.Maneuver.Date).Seconds()
		q = q.Add(d)
	}
	out, err := q.State(a.mu)
	if err != nil {
		return transform.State{}, fmt.Errorf("%w: maneuvered state: %v", ErrPropagation, err)
	}
	return out, nil
}

// inertialRotation returns the rotation taking delta-V components in frame
// f into TEME at t.
func inertialRotation(f maneuver.Frame, s transform.State, t time.Time) (*mat.Dense, error) {
	switch f {
	case maneuver.FrameTEME:
		return transform.Compose(), nil
	case maneuver.FrameEME2000:
		return transform.EME2000ToTEME(t), nil
	case maneuver.FrameQSW:
		m, err := transform.QSW(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPropagation, err)
		}
		return m, nil
	case maneuver.FrameTNW:
		m, err := transform.TNW(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPropagation, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFrame, f)
	}
}
