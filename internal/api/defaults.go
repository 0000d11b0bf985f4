package api

import (
	"time"

	"github.com/jyannick/OrbitPlot/internal/maneuver"
)

// Defaults are the inputs the page starts with.
type Defaults struct {
	Satellite      string          `json:"satellite"`
	Line1          string          `json:"line1"`
	Line2          string          `json:"line2"`
	Duration       Duration        `json:"duration"`
	Step           Duration        `json:"step"`
	Maneuvers      []maneuver.Spec `json:"maneuvers"`
	ApplyManeuvers bool            `json:"apply_maneuvers"`
}

// DefaultInputs returns TELSTAR 12V with three 100 m/s EME2000 burns, one per
// axis, on the days following the TLE epoch.
func DefaultInputs(duration, step time.Duration) Defaults {
	burn := func(day int, dv [3]float64) maneuver.Spec {
		return maneuver.Spec{
			Date:   time.Date(2018, 11, day, 12, 0, 0, 0, time.UTC),
			Frame:  string(maneuver.FrameEME2000),
			DeltaV: dv,
			Isp:    300,
		}
	}
	return Defaults{
		Satellite: "TELSTAR 12V",
		Line1:     "1 41036U 15068A   18304.93002776 -.00000131  00000-0  00000-0 0  9990",
		Line2:     "2 41036   0.0170 254.0407 0001996 337.8139 128.1274  1.00270199 10707",
		Duration:  Duration(duration),
		Step:      Duration(step),
		Maneuvers: []maneuver.Spec{
			burn(1, [3]float64{100, 0, 0}),
			burn(2, [3]float64{0, 100, 0}),
			burn(3, [3]float64{0, 0, 100}),
		},
		ApplyManeuvers: true,
	}
}
