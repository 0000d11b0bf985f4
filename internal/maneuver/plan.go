package maneuver

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Isp is a specific impulse in seconds. Plan files may write it as a plain
// number or as a duration such as "300s".
type Isp float64

func parseIsp(s string) (Isp, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Isp(v), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("maneuver.Isp: failed to parse %q", s)
	}
	return Isp(d.Seconds()), nil
}

func (i *Isp) UnmarshalYAML(value *yaml.Node) error {
	v, err := parseIsp(value.Value)
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func (i Isp) MarshalYAML() (interface{}, error) {
	return float64(i), nil
}

func (i *Isp) UnmarshalJSON(bytes []byte) error {
	var n float64
	if err := json.Unmarshal(bytes, &n); err == nil {
		*i = Isp(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(bytes, &s); err != nil {
		return fmt.Errorf("maneuver.Isp: %w", err)
	}
	v, err := parseIsp(s)
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Spec is the serialized form of a maneuver in plan files and API requests.
type Spec struct {
	Date   time.Time  `yaml:"date" json:"date"`
	Frame  string     `yaml:"frame,omitempty" json:"frame,omitempty"`
	DeltaV [3]float64 `yaml:"deltaV" json:"deltaV"`
	Isp    Isp        `yaml:"isp" json:"isp"`
}

// Maneuver converts s. An empty frame selects DefaultFrame.
func (s Spec) Maneuver() Maneuver {
	return Maneuver{
		Date:   s.Date.UTC(),
		Frame:  ParseFrame(s.Frame),
		DeltaV: r3.Vec{X: s.DeltaV[0], Y: s.DeltaV[1], Z: s.DeltaV[2]},
		Isp:    float64(s.Isp),
	}
}

// ToSpec converts m to its serialized form.
func ToSpec(m Maneuver) Spec {
	return Spec{
		Date:   m.Date.UTC(),
		Frame:  string(m.Frame),
		DeltaV: [3]float64{m.DeltaV.X, m.DeltaV.Y, m.DeltaV.Z},
		Isp:    Isp(m.Isp),
	}
}

// FromSpecs converts a list of specs, preserving order.
func FromSpecs(specs []Spec) []Maneuver {
	out := make([]Maneuver, len(specs))
	for i, s := range specs {
		out[i] = s.Maneuver()
	}
	return out
}

// Plan is a maneuver plan file.
type Plan struct {
	Maneuvers []Spec `yaml:"maneuvers"`
}

// LoadPlan decodes a YAML plan. Maneuvers keep file order; chronology is
// checked by Validate against the TLE epoch.
func LoadPlan(r io.Reader) ([]Maneuver, error) {
	var p Plan
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding maneuver plan: %w", err)
	}
	return FromSpecs(p.Maneuvers), nil
}
