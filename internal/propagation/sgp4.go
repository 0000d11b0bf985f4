package propagation

import (
	"fmt"
	"math"
	"strconv"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/astro"
	"github.com/jyannick/OrbitPlot/internal/tle"
	"github.com/jyannick/OrbitPlot/internal/transform"
)

// SGP4 library: github.com/joshuaferrara/go-satellite.
//
// The library only accepts whole-second calendar times and truncates the TLE
// epoch to a whole second. SGP4Propagator keeps the exact epoch, queries the
// library at whole-second offsets from the truncated epoch and interpolates
// in between with a cubic Hermite spline over one second, whose error is
// orders of magnitude below the model's own accuracy.
//
// Propagate() takes Satellite by value so SGP4 error codes are not visible
// to the caller. Failures are detected by checking output for NaN/Inf and
// unreasonable position magnitudes.

// Plausible geocentric distance range for SGP4 output, km.
const (
	minRadiusKm = 6200.0
	maxRadiusKm = 400000.0
)

// SGP4Propagator wraps the go-satellite library for a single TLE.
type SGP4Propagator struct {
	sat      satellite.Satellite
	catalog  int
	epoch    time.Time // exact TLE epoch
	libEpoch time.Time // epoch as truncated by the library
}

// NewSGP4Propagator initializes SGP4 for a parsed TLE. The TLE must come from
// tle.ParseLines, which validates every field the library reads; go-satellite
// panics or calls log.Fatal on malformed input.
func NewSGP4Propagator(t *tle.TLE, gravity astro.Gravity) (p *SGP4Propagator, err error) {
	libEpoch, err := libraryEpoch(t.Line1)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("%w: sgp4 init for catalog %d: %v", ErrPropagation, t.CatalogNumber, r)
		}
	}()

	sat := satellite.TLEToSat(t.Line1, t.Line2, gravity.Satellite())
	if sat.Error != 0 {
		return nil, fmt.Errorf("%w: sgp4 init failed for catalog %d: code=%d %s",
			ErrPropagation, t.CatalogNumber, sat.Error, sat.ErrorStr)
	}
	return &SGP4Propagator{
		sat:      sat,
		catalog:  t.CatalogNumber,
		epoch:    t.Epoch,
		libEpoch: libEpoch,
	}, nil
}

// Epoch returns the exact TLE epoch.
func (p *SGP4Propagator) Epoch() time.Time {
	return p.epoch
}

// StateAt returns the TEME state at t.
func (p *SGP4Propagator) StateAt(t time.Time) (transform.State, error) {
	elapsed := t.Sub(p.epoch).Seconds()
	whole := math.Floor(elapsed)
	frac := elapsed - whole

	s0, err := p.at(int64(whole))
	if err != nil {
		return transform.State{}, err
	}
	if frac < 1e-9 {
		return s0, nil
	}
	s1, err := p.at(int64(whole) + 1)
	if err != nil {
		return transform.State{}, err
	}
	return hermite(s0, s1, frac), nil
}

// at propagates to a whole number of seconds after the library epoch.
func (p *SGP4Propagator) at(sec int64) (transform.State, error) {
	q := p.libEpoch.Add(time.Duration(sec) * time.Second)
	pos, vel := satellite.Propagate(p.sat,
		q.Year(), int(q.Month()), q.Day(), q.Hour(), q.Minute(), q.Second())

	s := transform.State{
		Position: r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z},
	}
	if !s.Valid() {
		return transform.State{}, fmt.Errorf("%w for catalog %d at %+ds: output is NaN/Inf", ErrPropagation, p.catalog, sec)
	}
	if mag := r3.Norm(s.Position); mag < minRadiusKm || mag > maxRadiusKm {
		return transform.State{}, fmt.Errorf("%w for catalog %d at %+ds: unreasonable position magnitude %.1f km",
			ErrPropagation, p.catalog, sec, mag)
	}
	return s, nil
}

// hermite interpolates between states one second apart at fraction f in [0, 1).
func hermite(s0, s1 transform.State, f float64) transform.State {
	f2, f3 := f*f, f*f*f
	h00 := 2*f3 - 3*f2 + 1
	h10 := f3 - 2*f2 + f
	h01 := -2*f3 + 3*f2
	h11 := f3 - f2

	d00 := 6*f2 - 6*f
	d10 := 3*f2 - 4*f + 1
	d01 := -6*f2 + 6*f
	d11 := 3*f2 - 2*f

	sum := func(a, b, c, d float64, p0, v0, p1, v1 r3.Vec) r3.Vec {
		return r3.Add(r3.Add(r3.Scale(a, p0), r3.Scale(b, v0)), r3.Add(r3.Scale(c, p1), r3.Scale(d, v1)))
	}
	return transform.State{
		Position: sum(h00, h10, h01, h11, s0.Position, s0.Velocity, s1.Position, s1.Velocity),
		Velocity: sum(d00, d10, d01, d11, s0.Position, s0.Velocity, s1.Position, s1.Velocity),
	}
}

// libraryEpoch reproduces go-satellite's epoch decoding (days2mdhms followed
// by integer truncation of the seconds).
func libraryEpoch(line1 string) (time.Time, error) {
	if len(line1) < 32 {
		return time.Time{}, fmt.Errorf("line 1 too short for epoch: %d columns", len(line1))
	}
	yy, err := strconv.Atoi(line1[18:20])
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch year: %w", err)
	}
	days, err := strconv.ParseFloat(line1[20:32], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch day: %w", err)
	}
	year := yy + 2000
	if yy >= 57 {
		year = yy + 1900
	}

	dayOfYear := math.Floor(days)
	temp := (days - dayOfYear) * 24.0
	hr := math.Floor(temp)
	temp = (temp - hr) * 60.0
	mn := math.Floor(temp)
	sec := (temp - mn) * 60.0

	return time.Date(year, 1, int(dayOfYear), int(hr), int(mn), int(sec), 0, time.UTC), nil
}
