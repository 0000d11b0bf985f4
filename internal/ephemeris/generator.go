// Package ephemeris turns a TLE and a maneuver list into a time-ordered table
// of orbital elements and sub-satellite points.
package ephemeris

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/astro"
	"github.com/jyannick/OrbitPlot/internal/maneuver"
	"github.com/jyannick/OrbitPlot/internal/metrics"
	"github.com/jyannick/OrbitPlot/internal/orbit"
	"github.com/jyannick/OrbitPlot/internal/propagation"
	"github.com/jyannick/OrbitPlot/internal/tle"
	"github.com/jyannick/OrbitPlot/internal/transform"
)

// DefaultMaxSamples bounds the number of rows a single call may produce.
const DefaultMaxSamples = 1_000_000

// Generator produces ephemeris tables. Safe for concurrent use.
type Generator struct {
	// MaxSamples caps floor(duration/step). Zero selects DefaultMaxSamples.
	MaxSamples int

	rt        *astro.Runtime
	pool      *propagation.WorkerPool
	projector transform.Projector
	logger    *slog.Logger
}

// NewGenerator binds a generator to a started runtime.
func NewGenerator(rt *astro.Runtime, logger *slog.Logger) (*Generator, error) {
	if !rt.Ready() {
		return nil, ErrRuntimeNotStarted
	}
	return &Generator{
		MaxSamples: DefaultMaxSamples,
		rt:         rt,
		pool:       propagation.NewWorkerPool(rt.Workers(), logger),
		projector:  transform.NewProjector(transform.WGS84),
		logger:     logger,
	}, nil
}

// Ready reports whether the bound runtime still accepts work.
func (g *Generator) Ready() bool {
	return g.rt.Ready()
}

// Generate propagates the TLE over [epoch, epoch+duration) at the given step,
// applying maneuvers in list order, and returns floor(duration/step) rows.
//
// Errors are *ParseError, *InvalidParameterError or *PropagationError, the
// context error if ctx ends first, or ErrRuntimeNotStarted. No partial table
// is ever returned.
func (g *Generator) Generate(ctx context.Context, line1, line2 string, duration, step time.Duration, maneuvers []maneuver.Maneuver) (*Table, error) {
	start := time.Now()
	table, err := g.generate(ctx, line1, line2, duration, step, maneuvers)
	if err != nil {
		if ctx.Err() == nil {
			metrics.IncGenerationErrors(Kind(err))
		}
		g.logger.Debug("ephemeris generation failed", "error", err, "kind", Kind(err))
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.ObserveGeneration(elapsed, len(table.Rows))
	g.logger.Info("ephemeris generated",
		"catalog", table.Satellite,
		"rows", len(table.Rows),
		"maneuvers", len(table.Maneuvers),
		"duration_ms", elapsed.Milliseconds(),
	)
	return table, nil
}

func (g *Generator) generate(ctx context.Context, line1, line2 string, duration, step time.Duration, maneuvers []maneuver.Maneuver) (*Table, error) {
	if duration <= 0 {
		return nil, invalidParam("duration", "must be positive, got %s", duration)
	}
	if step <= 0 {
		return nil, invalidParam("step", "must be positive, got %s", step)
	}
	if step > duration {
		return nil, invalidParam("step", "%s exceeds duration %s", step, duration)
	}
	n := int(duration / step)
	maxSamples := g.MaxSamples
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	if n > maxSamples {
		return nil, invalidParam("step", "%d samples exceed the limit of %d", n, maxSamples)
	}

	elements, err := tle.ParseLines(line1, line2)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if err := maneuver.Validate(elements.Epoch, maneuvers); err != nil {
		return nil, &InvalidParameterError{Param: "maneuvers", Err: err}
	}

	release, err := g.rt.Acquire(ctx)
	if err != nil {
		if errors.Is(err, astro.ErrNotStarted) {
			return nil, ErrRuntimeNotStarted
		}
		return nil, err
	}
	defer release()
	metrics.IncComputationsInFlight()
	defer metrics.DecComputationsInFlight()

	mu := g.rt.Gravity().Mu()
	base, err := propagation.NewSGP4Propagator(elements, g.rt.Gravity())
	if err != nil {
		return nil, &PropagationError{Err: err}
	}
	prop := propagation.NewAdapter(base, mu)
	for i, m := range maneuvers {
		if _, err := prop.AddManeuver(m); err != nil {
			return nil, &PropagationError{Err: fmt.Errorf("maneuver %d: %w", i, err)}
		}
	}

	epoch := elements.Epoch
	rows := make([]Row, n)
	err = g.pool.Run(ctx, n, func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t := epoch.Add(time.Duration(i) * step)
		row, err := g.sample(prop, t, mu)
		if err != nil {
			return &PropagationError{Err: fmt.Errorf("sample %d at %s: %w", i, t.UTC().Format(time.RFC3339Nano), err)}
		}
		rows[i] = row
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	return &Table{
		Satellite: elements.CatalogNumber,
		Epoch:     epoch,
		Step:      step,
		Rows:      rows,
		Maneuvers: prop.Maneuvers(),
	}, nil
}

// sample evaluates one row.
func (g *Generator) sample(p propagation.Propagator, t time.Time, mu float64) (Row, error) {
	s, err := p.StateAt(t)
	if err != nil {
		return Row{}, err
	}
	k, err := orbit.FromState(s, mu)
	if err != nil {
		return Row{}, err
	}
	q := k.Equinoctial()
	ecef := transform.TEMEToECEF(s, t)
	if !transform.ValidateECEF(ecef) {
		return Row{}, fmt.Errorf("implausible position %.0f m from Earth center at %s",
			r3.Norm(ecef.Position), t.UTC().Format(time.RFC3339))
	}
	geo := g.projector.ToGeodetic(ecef.Position)

	return Row{
		Time:      t,
		A:         k.A * 1000,
		E:         k.E,
		I:         k.I,
		Pom:       k.Pom,
		RAAN:      k.RAAN,
		V:         k.TrueAnomaly,
		Ex:        q.Ex,
		Ey:        q.Ey,
		Hx:        q.Hx,
		Hy:        q.Hy,
		Latitude:  geo.LatDeg,
		Longitude: geo.LonDeg,
		Altitude:  geo.AltM,
	}, nil
}
