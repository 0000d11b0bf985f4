package transform

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// OmegaEarth is Earth's rotation rate in rad/s (IAU value).
const OmegaEarth = 7.292115146706979e-5

// JulianDate converts a time.Time to a Julian Date in the UTC scale.
func JulianDate(t time.Time) float64 {
	return julian.TimeToJD(t.UTC())
}

// JulianCenturies returns Julian centuries elapsed since J2000.0.
// UTC stands in for both UT1 and TT; the difference is far below what
// ground-track plotting can resolve.
func JulianCenturies(t time.Time) float64 {
	return (JulianDate(t) - j2000) / 36525.0
}

// GMST calculates Greenwich Mean Sidereal Time in radians for a given UTC time.
// Uses the IAU-82 model as described in Vallado "Fundamentals of Astrodynamics".
//
// Formula (Vallado Eq 3-47):
//
//	θ_GMST = 67310.54841 + (876600h + 8640184.812866)*T + 0.093104*T² - 6.2e-6*T³
//
// where T is Julian centuries of UT1 from J2000.0, result is in seconds of time.
func GMST(t time.Time) float64 {
	tUT1 := JulianCenturies(t)

	gmstSec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	gmstSec = math.Mod(gmstSec, 86400.0)
	if gmstSec < 0 {
		gmstSec += 86400.0
	}
	return gmstSec / 86400.0 * 2.0 * math.Pi
}
