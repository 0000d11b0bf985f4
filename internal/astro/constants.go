package astro

import (
	"fmt"
	"strings"

	satellite "github.com/joshuaferrara/go-satellite"
)

// Gravity names a set of SGP4 gravity constants.
type Gravity string

const (
	GravityWGS72Old Gravity = "wgs72old"
	GravityWGS72    Gravity = "wgs72"
	GravityWGS84    Gravity = "wgs84"
)

// StandardGravity is g0 in m/s², used to relate delta-V to propellant mass.
const StandardGravity = 9.80665

// WGS-84 ellipsoid used for geodetic projection.
const (
	EarthEquatorialRadius = 6378137.0           // meters
	EarthFlattening       = 1.0 / 298.257223563 // dimensionless
)

// ParseGravity parses a gravity model name, case-insensitively.
func ParseGravity(s string) (Gravity, error) {
	switch g := Gravity(strings.ToLower(strings.TrimSpace(s))); g {
	case GravityWGS72Old, GravityWGS72, GravityWGS84:
		return g, nil
	default:
		return "", fmt.Errorf("unknown gravity model %q (want wgs72old, wgs72 or wgs84)", s)
	}
}

// Mu returns the Earth gravitational parameter of the model in km³/s².
func (g Gravity) Mu() float64 {
	switch g {
	case GravityWGS84:
		return 398600.5
	case GravityWGS72Old:
		return 398600.79964
	default:
		return 398600.8
	}
}

// Satellite returns the go-satellite identifier of the model.
func (g Gravity) Satellite() satellite.Gravity {
	switch g {
	case GravityWGS84:
		return satellite.GravityWGS84
	case GravityWGS72Old:
		return satellite.GravityWGS72Old
	default:
		return satellite.GravityWGS72
	}
}
