package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

const arcsec = math.Pi / (180 * 3600)

// EME2000ToTEME returns the rotation taking EME2000 (J2000 mean equator and
// equinox) vectors into TEME at t.
//
// Only IAU-76 precession is applied, i.e. TEME is approximated by the mean of
// date frame. The neglected nutation and equation of the equinoxes stay under
// 20 arcseconds, which is far below the accuracy of a TLE-based state.
func EME2000ToTEME(t time.Time) *mat.Dense {
	T := JulianCenturies(t)
	zeta := (2306.2181*T + 0.30188*T*T + 0.017998*T*T*T) * arcsec
	theta := (2004.3109*T - 0.42665*T*T - 0.041833*T*T*T) * arcsec
	z := (2306.2181*T + 1.09468*T*T + 0.018203*T*T*T) * arcsec

	// r_MOD = ROT3(-z) ROT2(θ) ROT3(-ζ) r_J2000 (Vallado Eq 3-88).
	return Compose(ROT3(-z), ROT2(theta), ROT3(-zeta))
}
