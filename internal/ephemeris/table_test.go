package ephemeris

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/maneuver"
	"github.com/jyannick/OrbitPlot/internal/propagation"
)

func sampleTable() *Table {
	t0 := time.Date(2018, 10, 31, 22, 19, 14, 398464000, time.UTC)
	return &Table{
		Satellite: 41036,
		Epoch:     t0,
		Step:      time.Minute,
		Rows: []Row{
			{Time: t0, A: 42164137.5, E: 2e-4, I: 3e-4, Pom: 5.9, RAAN: 4.4, V: 2.2, Ex: 1e-4, Ey: -1.5e-4, Hx: 1e-5, Hy: 2e-5, Latitude: 0.01, Longitude: 15.2, Altitude: 35786000},
			{Time: t0.Add(time.Minute), A: 42164138, E: 2e-4, I: 3e-4, Pom: 5.9, RAAN: 4.4, V: 2.21, Ex: 1e-4, Ey: -1.5e-4, Hx: 1e-5, Hy: 2e-5, Latitude: 0.02, Longitude: 15.2, Altitude: 35786001},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleTable().WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading back CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}
	if fmt.Sprint(records[0]) != fmt.Sprint(ColumnNames) {
		t.Errorf("header = %v, want %v", records[0], ColumnNames)
	}
	if records[1][0] != "2018-10-31T22:19:14.398464Z" {
		t.Errorf("time = %q", records[1][0])
	}
	if records[1][1] != "4.21641375e+07" {
		t.Errorf("a = %q, want shortest round-trip form", records[1][1])
	}
	if records[2][12] != "15.2" {
		t.Errorf("longitude = %q, want 15.2", records[2][12])
	}
}

func TestColumns(t *testing.T) {
	c := sampleTable().Columns()
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	for _, name := range ColumnNames[1:] {
		if col := c.Column(name); len(col) != 2 {
			t.Errorf("column %q has %d values, want 2", name, len(col))
		}
	}
	if c.Column("bogus") != nil {
		t.Error("unknown column should be nil")
	}
	if c.Latitude[1] != 0.02 {
		t.Errorf("latitude[1] = %v, want 0.02", c.Latitude[1])
	}

	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, name := range ColumnNames {
		if _, ok := decoded[name]; !ok {
			t.Errorf("JSON is missing column %q", name)
		}
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&ParseError{Err: errors.New("x")}, KindParse},
		{fmt.Errorf("wrapped: %w", &InvalidParameterError{Param: "step", Err: errors.New("x")}), KindInvalidParameter},
		{&PropagationError{Err: errors.New("x")}, KindPropagation},
		{ErrRuntimeNotStarted, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDocument(t *testing.T) {
	table := sampleTable()
	table.Maneuvers = []propagation.AppliedManeuver{{
		Maneuver: maneuver.Maneuver{
			Date:   time.Date(2018, 11, 1, 12, 0, 0, 0, time.UTC),
			Frame:  maneuver.FrameTNW,
			DeltaV: r3.Vec{X: 1.5},
			Isp:    300,
		},
		DeltaV:             r3.Vec{X: 0.5, Y: 1.4},
		PropellantFraction: 5e-4,
	}}

	doc := table.Document()
	if doc.Satellite != 41036 || doc.Rows != 2 || doc.StepSeconds != 60 {
		t.Errorf("doc header = %d/%d/%v", doc.Satellite, doc.Rows, doc.StepSeconds)
	}
	if doc.Epoch != "2018-10-31T22:19:14.398464Z" {
		t.Errorf("epoch = %q", doc.Epoch)
	}
	if len(doc.Maneuvers) != 1 {
		t.Fatalf("maneuvers = %d, want 1", len(doc.Maneuvers))
	}
	m := doc.Maneuvers[0]
	if m.Frame != "TNW" || m.DeltaV != [3]float64{1.5, 0, 0} || m.InertialDeltaV != [3]float64{0.5, 1.4, 0} {
		t.Errorf("maneuver summary = %+v", m)
	}
	if m.Date != "2018-11-01T12:00:00Z" {
		t.Errorf("maneuver date = %q", m.Date)
	}
}
