package transform

import (
	"math"

	"github.com/soniakeys/meeus/v3/globe"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/astro"
)

// WGS84 is the reference ellipsoid for ground tracks. Er is in meters.
var WGS84 = globe.Ellipsoid{
	Er: astro.EarthEquatorialRadius,
	Fl: astro.EarthFlattening,
}

// GeodeticPoint holds a geodetic position (latitude/longitude in degrees, altitude in meters).
type GeodeticPoint struct {
	LatDeg, LonDeg, AltM float64
}

// Projector converts Earth-fixed positions to geodetic coordinates on one
// ellipsoid. The zero value is not usable; call NewProjector.
type Projector struct {
	a  float64 // equatorial radius, meters
	e2 float64 // first eccentricity squared
}

// NewProjector returns a projector for the ellipsoid e (Er in meters).
func NewProjector(e globe.Ellipsoid) Projector {
	return Projector{a: e.Er, e2: e.Fl * (2 - e.Fl)}
}

// ToGeodetic converts an ECEF position (meters) to geodetic coordinates using
// Bowring's iteration, which converges in a few steps for orbital altitudes.
// Longitude is in (-180, 180].
func (p Projector) ToGeodetic(pos r3.Vec) GeodeticPoint {
	lon := math.Atan2(pos.Y, pos.X)
	rho := math.Hypot(pos.X, pos.Y)

	lat := math.Atan2(pos.Z, rho*(1-p.e2))
	for i := 0; i < 10; i++ {
		sinLat := math.Sin(lat)
		n := p.a / math.Sqrt(1-p.e2*sinLat*sinLat)
		next := math.Atan2(pos.Z+p.e2*n*sinLat, rho)
		if math.Abs(next-lat) < 1e-12 {
			lat = next
			break
		}
		lat = next
	}

	sinLat, cosLat := math.Sincos(lat)
	n := p.a / math.Sqrt(1-p.e2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = rho/cosLat - n
	} else {
		alt = math.Abs(pos.Z)/math.Abs(sinLat) - n*(1-p.e2)
	}

	return GeodeticPoint{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: lon * 180.0 / math.Pi,
		AltM:   alt,
	}
}

// ToECEF converts geodetic coordinates (degrees, meters) to an ECEF position in meters.
func (p Projector) ToECEF(g GeodeticPoint) r3.Vec {
	lat := g.LatDeg * math.Pi / 180.0
	lon := g.LonDeg * math.Pi / 180.0
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	// Radius of curvature in the prime vertical.
	n := p.a / math.Sqrt(1-p.e2*sinLat*sinLat)

	return r3.Vec{
		X: (n + g.AltM) * cosLat * cosLon,
		Y: (n + g.AltM) * cosLat * sinLon,
		Z: (n*(1-p.e2) + g.AltM) * sinLat,
	}
}
