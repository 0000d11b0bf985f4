package transform

import (
	"math"
	"testing"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestJulianDate(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected float64
	}{
		{
			name:     "J2000.0 epoch",
			time:     time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
			expected: 2451545.0,
		},
		{
			name:     "Unix epoch",
			time:     time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: 2440587.5,
		},
		{
			// Vallado Example 3-15: April 6, 2004, 07:51:28.386 UTC
			name:     "Vallado example date",
			time:     time.Date(2004, 4, 6, 7, 51, 28, 386009000, time.UTC),
			expected: 2453101.827411875,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JulianDate(tt.time)
			if !scalar.EqualWithinAbs(got, tt.expected, 1e-6) {
				t.Errorf("JulianDate(%v) = %.10f, want %.10f", tt.time, got, tt.expected)
			}
		})
	}
}

// go-satellite's GSTimeFromDate implements the same IAU-82 expression.
func TestGMSTMatchesGoSatellite(t *testing.T) {
	for _, tm := range []time.Time{
		time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		time.Date(2018, 10, 31, 22, 19, 14, 0, time.UTC),
	} {
		t.Run(tm.Format(time.RFC3339), func(t *testing.T) {
			ours := GMST(tm)
			ref := satellite.GSTimeFromDate(
				tm.Year(), int(tm.Month()), tm.Day(),
				tm.Hour(), tm.Minute(), tm.Second(),
			)
			if !scalar.EqualWithinAbs(ours, ref, 1e-7) {
				t.Errorf("GMST = %.12f rad, go-satellite = %.12f rad", ours, ref)
			}
		})
	}
}

func TestTEMEToECEFMatchesGoSatellite(t *testing.T) {
	tests := []struct {
		name string
		s    State
		time time.Time
	}{
		{
			name: "Vallado example 3-15",
			s: State{
				Position: r3.Vec{X: 5094.18016, Y: 6127.64465, Z: 6380.34453},
				Velocity: r3.Vec{X: -4.746131487, Y: 0.786598499, Z: 5.531931288},
			},
			time: time.Date(2004, 4, 6, 7, 51, 28, 0, time.UTC),
		},
		{
			name: "polar",
			s: State{
				Position: r3.Vec{Z: 6978},
				Velocity: r3.Vec{X: 7.4},
			},
			time: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gmst := satellite.GSTimeFromDate(
				tt.time.Year(), int(tt.time.Month()), tt.time.Day(),
				tt.time.Hour(), tt.time.Minute(), tt.time.Second(),
			)
			got := TEMEToECEFWithGMST(tt.s, gmst)
			ref := satellite.ECIToECEF(satellite.Vector3{
				X: tt.s.Position.X, Y: tt.s.Position.Y, Z: tt.s.Position.Z,
			}, gmst)

			want := r3.Vec{X: ref.X * 1000, Y: ref.Y * 1000, Z: ref.Z * 1000}
			if d := r3.Norm(r3.Sub(got.Position, want)); d > 1.0 {
				t.Errorf("position differs from go-satellite by %.3f m", d)
			}
			if !ValidateECEF(got) {
				t.Errorf("ECEF position failed validation: %v", got.Position)
			}
		})
	}
}

func TestTEMEToECEFVelocity(t *testing.T) {
	s := State{
		Position: r3.Vec{X: 6778},
		Velocity: r3.Vec{Y: 7.5},
	}
	ecef := TEMEToECEFWithGMST(s, 0)

	if !scalar.EqualWithinAbs(ecef.Position.X, 6778000, 0.1) {
		t.Errorf("X = %.1f, want 6778000", ecef.Position.X)
	}
	wantVY := (7.5 - OmegaEarth*6778.0) * 1000.0
	if !scalar.EqualWithinAbs(ecef.Velocity.Y, wantVY, 0.1) {
		t.Errorf("VY = %.1f m/s, want %.1f m/s", ecef.Velocity.Y, wantVY)
	}
}

func TestValidateECEF(t *testing.T) {
	tests := []struct {
		name  string
		pos   r3.Vec
		valid bool
	}{
		{"LEO", r3.Vec{X: 6778000}, true},
		{"GEO", r3.Vec{X: 42164000}, true},
		{"below surface", r3.Vec{X: 5000000}, false},
		{"beyond lunar distance", r3.Vec{X: 400e6}, false},
		{"NaN", r3.Vec{X: math.NaN()}, false},
		{"Inf", r3.Vec{X: math.Inf(1)}, false},
		{"zero", r3.Vec{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateECEF(ECEF{Position: tt.pos}); got != tt.valid {
				t.Errorf("ValidateECEF(%v) = %v, want %v", tt.pos, got, tt.valid)
			}
		})
	}
}

func TestStateValid(t *testing.T) {
	if !(State{Position: r3.Vec{X: 7000}, Velocity: r3.Vec{Y: 7.5}}).Valid() {
		t.Error("finite state reported invalid")
	}
	if (State{Velocity: r3.Vec{Z: math.NaN()}}).Valid() {
		t.Error("NaN velocity reported valid")
	}
}
