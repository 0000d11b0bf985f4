package tle

import "time"

// TLE is a parsed two-line element set. Angles are in degrees and mean
// motion in revolutions per day, as encoded in the text.
type TLE struct {
	CatalogNumber  int
	Classification byte
	IntlDesignator string
	Epoch          time.Time

	MeanMotionDot  float64 // first derivative / 2, rev/day²
	MeanMotionDDot float64 // second derivative / 6, rev/day³
	BStar          float64 // drag term, 1/earth radii
	EphemerisType  int
	ElementNumber  int

	Inclination      float64
	RAAN             float64
	Eccentricity     float64
	ArgPerigee       float64
	MeanAnomaly      float64
	MeanMotion       float64
	RevolutionNumber int

	Line1 string
	Line2 string
}

// Entry is a TLE with the satellite name from a three-line listing.
type Entry struct {
	Name string
	TLE  *TLE
}
