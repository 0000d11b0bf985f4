// Command ephemeris generates one ephemeris table from a TLE and an optional
// maneuver plan and writes it as CSV, JSON, a terminal summary or a PNG chart.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jyannick/OrbitPlot/internal/astro"
	"github.com/jyannick/OrbitPlot/internal/ephemeris"
	"github.com/jyannick/OrbitPlot/internal/maneuver"
	"github.com/jyannick/OrbitPlot/internal/plot"
	"github.com/jyannick/OrbitPlot/internal/tle"
)

type options struct {
	line1, line2 string
	tleFile      string
	plan         string
	duration     time.Duration
	step         time.Duration
	format       string
	chart        string
	out          string
	gravity      string
	verbose      bool
}

func main() {
	var o options
	flag.StringVar(&o.line1, "tle1", "", "TLE line 1")
	flag.StringVar(&o.line2, "tle2", "", "TLE line 2")
	flag.StringVar(&o.tleFile, "tle-file", "", "file with a two- or three-line TLE (first entry is used)")
	flag.StringVar(&o.plan, "maneuvers", "", "YAML maneuver plan")
	flag.DurationVar(&o.duration, "duration", 5*24*time.Hour, "propagation span from the TLE epoch")
	flag.DurationVar(&o.step, "step", time.Minute, "sampling step")
	flag.StringVar(&o.format, "format", "summary", "output format: csv, json, summary or png")
	flag.StringVar(&o.chart, "chart", string(plot.ChartSMALongitude), "chart for -format png: sma-lon, ex-ey or hx-hy")
	flag.StringVar(&o.out, "out", "", "output file (default stdout)")
	flag.StringVar(&o.gravity, "gravity", string(astro.GravityWGS72), "SGP4 gravity model: wgs72old, wgs72 or wgs84")
	flag.BoolVar(&o.verbose, "v", false, "log progress to stderr")
	flag.Parse()

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, logger); err != nil {
		fmt.Fprintln(os.Stderr, "ephemeris:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, logger *slog.Logger) error {
	name, line1, line2, err := loadTLE(o)
	if err != nil {
		return err
	}
	plan, err := loadPlan(o.plan)
	if err != nil {
		return err
	}
	gravity, err := astro.ParseGravity(o.gravity)
	if err != nil {
		return err
	}
	var chart plot.Chart
	switch o.format {
	case "csv", "json", "summary":
	case "png":
		if chart, err = plot.ParseChart(o.chart); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q (want csv, json, summary or png)", o.format)
	}

	rt, err := astro.Start(astro.Config{Gravity: gravity}, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	g, err := ephemeris.NewGenerator(rt, logger)
	if err != nil {
		return err
	}
	table, err := g.Generate(ctx, line1, line2, o.duration, o.step, plan)
	if err != nil {
		return err
	}
	if name == "" {
		name = "NORAD " + strconv.Itoa(table.Satellite)
	}

	var buf bytes.Buffer
	switch o.format {
	case "csv":
		err = table.WriteCSV(&buf)
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(table.Document())
	case "summary":
		_, err = io.WriteString(&buf, summarize(name, table))
	case "png":
		var r *plot.Renderer
		if r, err = plot.NewRenderer(plot.Config{}); err == nil {
			err = r.WritePNG(&buf, table.Columns(), chart, name)
		}
	}
	if err != nil {
		return err
	}

	if o.out == "" {
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	}
	return os.WriteFile(o.out, buf.Bytes(), 0o644)
}

// loadTLE returns the satellite name (possibly empty) and the two lines,
// from -tle-file or the -tle1/-tle2 flags.
func loadTLE(o options) (name, line1, line2 string, err error) {
	if o.tleFile == "" {
		if o.line1 == "" || o.line2 == "" {
			return "", "", "", errors.New("either -tle-file or both -tle1 and -tle2 are required")
		}
		return "", o.line1, o.line2, nil
	}

	f, err := os.Open(o.tleFile)
	if err != nil {
		return "", "", "", err
	}
	defer f.Close()

	entries, err := tle.Parse(f, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return "", "", "", err
	}
	if len(entries) == 0 {
		return "", "", "", fmt.Errorf("no valid TLE in %s", o.tleFile)
	}
	e := entries[0]
	return e.Name, e.TLE.Line1, e.TLE.Line2, nil
}

func loadPlan(path string) ([]maneuver.Maneuver, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return maneuver.LoadPlan(f)
}
