package ephemeris

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jyannick/OrbitPlot/internal/propagation"
)

// ColumnNames is the output schema, in order. Altitude is an extra trailing
// column.
var ColumnNames = []string{
	"time", "a", "e", "i", "pom", "RAAN", "v",
	"ex", "ey", "hx", "hy", "latitude", "longitude", "altitude",
}

// Row is one time sample. A is in meters, angles I through V in radians,
// Latitude and Longitude in degrees, Altitude in meters above WGS-84.
type Row struct {
	Time      time.Time
	A         float64
	E         float64
	I         float64
	Pom       float64
	RAAN      float64
	V         float64
	Ex        float64
	Ey        float64
	Hx        float64
	Hy        float64
	Latitude  float64
	Longitude float64
	Altitude  float64
}

func (r Row) values() []float64 {
	return []float64{
		r.A, r.E, r.I, r.Pom, r.RAAN, r.V,
		r.Ex, r.Ey, r.Hx, r.Hy, r.Latitude, r.Longitude, r.Altitude,
	}
}

// Table is a generated ephemeris, rows ordered by time.
type Table struct {
	Satellite int
	Epoch     time.Time
	Step      time.Duration
	Rows      []Row
	Maneuvers []propagation.AppliedManeuver
}

// Columns is the column-oriented form the charts bind to.
type Columns struct {
	Time      []string  `json:"time"`
	A         []float64 `json:"a"`
	E         []float64 `json:"e"`
	I         []float64 `json:"i"`
	Pom       []float64 `json:"pom"`
	RAAN      []float64 `json:"RAAN"`
	V         []float64 `json:"v"`
	Ex        []float64 `json:"ex"`
	Ey        []float64 `json:"ey"`
	Hx        []float64 `json:"hx"`
	Hy        []float64 `json:"hy"`
	Latitude  []float64 `json:"latitude"`
	Longitude []float64 `json:"longitude"`
	Altitude  []float64 `json:"altitude"`
}

// Len returns the number of rows.
func (c *Columns) Len() int {
	return len(c.Time)
}

// Column returns the numeric column with the given name, or nil.
func (c *Columns) Column(name string) []float64 {
	switch name {
	case "a":
		return c.A
	case "e":
		return c.E
	case "i":
		return c.I
	case "pom":
		return c.Pom
	case "RAAN":
		return c.RAAN
	case "v":
		return c.V
	case "ex":
		return c.Ex
	case "ey":
		return c.Ey
	case "hx":
		return c.Hx
	case "hy":
		return c.Hy
	case "latitude":
		return c.Latitude
	case "longitude":
		return c.Longitude
	case "altitude":
		return c.Altitude
	}
	return nil
}

// Columns converts the table to column form. Times are RFC 3339 UTC with
// nanoseconds.
func (t *Table) Columns() *Columns {
	n := len(t.Rows)
	c := &Columns{
		Time: make([]string, n),
		A:    make([]float64, n), E: make([]float64, n), I: make([]float64, n),
		Pom: make([]float64, n), RAAN: make([]float64, n), V: make([]float64, n),
		Ex: make([]float64, n), Ey: make([]float64, n), Hx: make([]float64, n), Hy: make([]float64, n),
		Latitude: make([]float64, n), Longitude: make([]float64, n), Altitude: make([]float64, n),
	}
	for k, r := range t.Rows {
		c.Time[k] = r.Time.UTC().Format(time.RFC3339Nano)
		c.A[k], c.E[k], c.I[k] = r.A, r.E, r.I
		c.Pom[k], c.RAAN[k], c.V[k] = r.Pom, r.RAAN, r.V
		c.Ex[k], c.Ey[k], c.Hx[k], c.Hy[k] = r.Ex, r.Ey, r.Hx, r.Hy
		c.Latitude[k], c.Longitude[k], c.Altitude[k] = r.Latitude, r.Longitude, r.Altitude
	}
	return c
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ColumnNames); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	record := make([]string, len(ColumnNames))
	for _, r := range t.Rows {
		record[0] = r.Time.UTC().Format(time.RFC3339Nano)
		for k, v := range r.values() {
			record[k+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ManeuverSummary describes one applied maneuver in exported output.
type ManeuverSummary struct {
	Date               string     `json:"date"`
	Frame              string     `json:"frame"`
	DeltaV             [3]float64 `json:"delta_v"`          // m/s, in Frame
	InertialDeltaV     [3]float64 `json:"inertial_delta_v"` // m/s, TEME
	Isp                float64    `json:"isp"`
	PropellantFraction float64    `json:"propellant_fraction"`
}

// Document is the JSON form of a table served to clients.
type Document struct {
	Satellite   int               `json:"satellite"`
	Epoch       string            `json:"epoch"`
	StepSeconds float64           `json:"step_seconds"`
	Rows        int               `json:"rows"`
	Columns     *Columns          `json:"columns"`
	Maneuvers   []ManeuverSummary `json:"maneuvers"`
}

// Document builds the JSON form of t.
func (t *Table) Document() *Document {
	ms := make([]ManeuverSummary, len(t.Maneuvers))
	for k, am := range t.Maneuvers {
		ms[k] = ManeuverSummary{
			Date:               am.Maneuver.Date.UTC().Format(time.RFC3339Nano),
			Frame:              string(am.Maneuver.Frame),
			DeltaV:             [3]float64{am.Maneuver.DeltaV.X, am.Maneuver.DeltaV.Y, am.Maneuver.DeltaV.Z},
			InertialDeltaV:     [3]float64{am.DeltaV.X, am.DeltaV.Y, am.DeltaV.Z},
			Isp:                am.Maneuver.Isp,
			PropellantFraction: am.PropellantFraction,
		}
	}
	return &Document{
		Satellite:   t.Satellite,
		Epoch:       t.Epoch.UTC().Format(time.RFC3339Nano),
		StepSeconds: t.Step.Seconds(),
		Rows:        len(t.Rows),
		Columns:     t.Columns(),
		Maneuvers:   ms,
	}
}
