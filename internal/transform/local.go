package transform

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var errDegenerateState = errors.New("degenerate state: position and velocity are parallel or zero")

// QSW returns the rotation from the QSW local orbital frame (Q radial out,
// S along-track in the orbital plane, W along the angular momentum) into the
// inertial frame of s.
func QSW(s State) (*mat.Dense, error) {
	h := r3.Cross(s.Position, s.Velocity)
	if r3.Norm(h) == 0 || r3.Norm(s.Position) == 0 {
		return nil, errDegenerateState
	}
	q := r3.Unit(s.Position)
	w := r3.Unit(h)
	return Columns(q, r3.Cross(w, q), w), nil
}

// TNW returns the rotation from the TNW local orbital frame (T along the
// velocity, W along the angular momentum, N = W × T) into the inertial frame of s.
func TNW(s State) (*mat.Dense, error) {
	h := r3.Cross(s.Position, s.Velocity)
	if r3.Norm(h) == 0 || r3.Norm(s.Velocity) == 0 {
		return nil, errDegenerateState
	}
	tv := r3.Unit(s.Velocity)
	w := r3.Unit(h)
	return Columns(tv, r3.Cross(w, tv), w), nil
}
