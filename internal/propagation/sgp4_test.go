package propagation

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/astro"
	"github.com/jyannick/OrbitPlot/internal/orbit"
	"github.com/jyannick/OrbitPlot/internal/tle"
	"github.com/jyannick/OrbitPlot/internal/transform"
)

const (
	spot5Line1 = "1 27421U 02021A   02124.48976499 -.00021470  00000-0 -89879-2 0    20"
	spot5Line2 = "2 27421  98.7490 199.5121 0001333 133.9522 226.1918 14.26113993    62"

	telstarLine1 = "1 41036U 15068A   18304.93002776 -.00000131  00000-0  00000-0 0  9990"
	telstarLine2 = "2 41036   0.0170 254.0407 0001996 337.8139 128.1274  1.00270199 10707"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func mustPropagator(t *testing.T, line1, line2 string) *SGP4Propagator {
	t.Helper()
	parsed, err := tle.ParseLines(line1, line2)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	p, err := NewSGP4Propagator(parsed, astro.GravityWGS72)
	if err != nil {
		t.Fatalf("NewSGP4Propagator: %v", err)
	}
	return p
}

// At zero elapsed time the osculating state must reproduce the TLE's own
// mean elements up to short-period terms.
func TestSGP4EpochMatchesElements(t *testing.T) {
	p := mustPropagator(t, spot5Line1, spot5Line2)
	s, err := p.StateAt(p.Epoch())
	if err != nil {
		t.Fatalf("StateAt: %v", err)
	}
	k, err := orbit.FromState(s, astro.GravityWGS72.Mu())
	if err != nil {
		t.Fatal(err)
	}

	deg := func(x float64) float64 { return x * 180 / math.Pi }
	if d := math.Abs(deg(k.I) - 98.7490); d > 0.2 {
		t.Errorf("inclination = %.4f°, TLE 98.7490°", deg(k.I))
	}
	if d := math.Abs(deg(k.RAAN) - 199.5121); d > 0.2 {
		t.Errorf("RAAN = %.4f°, TLE 199.5121°", deg(k.RAAN))
	}
	if k.A < 7100 || k.A > 7300 {
		t.Errorf("a = %.1f km, want in [7100, 7300]", k.A)
	}
}

func TestLibraryEpochTruncatesSeconds(t *testing.T) {
	got, err := libraryEpoch(telstarLine1)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2018, 10, 31, 22, 19, 14, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("libraryEpoch = %v, want %v", got, want)
	}

	p := mustPropagator(t, telstarLine1, telstarLine2)
	if p.Epoch().Sub(want) <= 0 || p.Epoch().Sub(want) >= time.Second {
		t.Errorf("exact epoch %v should be within the second after %v", p.Epoch(), want)
	}
}

func TestSGP4SubSecondContinuity(t *testing.T) {
	p := mustPropagator(t, spot5Line1, spot5Line2)
	at := func(d time.Duration) transform.State {
		s, err := p.StateAt(p.Epoch().Add(d))
		if err != nil {
			t.Fatalf("StateAt(%v): %v", d, err)
		}
		return s
	}

	s10 := at(10 * time.Second)
	s11 := at(11 * time.Second)
	almost11 := at(11*time.Second - time.Microsecond)
	if d := r3.Norm(r3.Sub(almost11.Position, s11.Position)); d > 1e-4 {
		t.Errorf("position jumps by %.6f km approaching a whole second", d)
	}

	// Halfway, the chord midpoint differs from the arc by about a·h²/8 ≈ 1 m.
	mid := at(10*time.Second + 500*time.Millisecond)
	chord := r3.Scale(0.5, r3.Add(s10.Position, s11.Position))
	if d := r3.Norm(r3.Sub(mid.Position, chord)); d > 2e-3 {
		t.Errorf("midpoint is %.6f km from the chord midpoint", d)
	}

	// Before the epoch the propagator borrows the previous whole second.
	before := at(-250 * time.Millisecond)
	epoch := at(0)
	if d := r3.Norm(r3.Sub(before.Position, epoch.Position)); d < 1 || d > 2.5 {
		t.Errorf("moved %.3f km in 0.25 s, want about 1.9 km", d)
	}
}

func TestHermiteCircularMotion(t *testing.T) {
	const (
		r = 7000.0
		w = 1e-3 // rad/s
	)
	state := func(tm float64) transform.State {
		s, c := math.Sincos(w * tm)
		return transform.State{
			Position: r3.Vec{X: r * c, Y: r * s},
			Velocity: r3.Vec{X: -r * w * s, Y: r * w * c},
		}
	}
	for _, f := range []float64{0, 0.25, 0.5, 0.9} {
		got := hermite(state(100), state(101), f)
		want := state(100 + f)
		if d := r3.Norm(r3.Sub(got.Position, want.Position)); d > 1e-8 {
			t.Errorf("f=%v: position error %.3g km", f, d)
		}
		if d := r3.Norm(r3.Sub(got.Velocity, want.Velocity)); d > 1e-8 {
			t.Errorf("f=%v: velocity error %.3g km/s", f, d)
		}
	}
}

func TestSGP4GeostationaryRadius(t *testing.T) {
	p := mustPropagator(t, telstarLine1, telstarLine2)
	s, err := p.StateAt(p.Epoch().Add(36 * time.Hour))
	if err != nil {
		t.Fatalf("StateAt: %v", err)
	}
	if r := r3.Norm(s.Position); math.Abs(r-42164) > 100 {
		t.Errorf("GEO radius = %.1f km, want ~42164 km", r)
	}
}

func TestSGP4RejectsBadLines(t *testing.T) {
	bad := &tle.TLE{CatalogNumber: 1, Line1: "1 00001U", Line2: "2 00001"}
	if _, err := NewSGP4Propagator(bad, astro.GravityWGS72); err == nil {
		t.Fatal("expected error for truncated TLE lines")
	}
}
