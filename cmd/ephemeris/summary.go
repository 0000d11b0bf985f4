package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/jyannick/OrbitPlot/internal/ephemeris"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(14)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	cellStyle  = lipgloss.NewStyle().Width(14).Align(lipgloss.Right)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1)
)

type stat struct {
	name   string
	values []float64
	format func(float64) string
}

func meters(v float64) string  { return humanize.SIWithDigits(v, 4, "m") }
func plain(v float64) string   { return humanize.FtoaWithDigits(v, 5) }
func degrees(v float64) string { return humanize.FtoaWithDigits(v, 3) + "°" }
func rad2deg(v float64) string { return degrees(v * 180 / math.Pi) }

// summarize renders a terminal report of t: the run parameters, the first,
// last and extreme value of the main elements, the longitude drift and the
// applied maneuvers.
func summarize(name string, t *ephemeris.Table) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s (NORAD %d)", name, t.Satellite)))
	sb.WriteString("\n\n")

	span := time.Duration(len(t.Rows)) * t.Step
	field := func(label, value string) {
		sb.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	field("epoch", t.Epoch.UTC().Format(time.RFC3339))
	field("span", span.String())
	field("step", t.Step.String())
	field("samples", humanize.Comma(int64(len(t.Rows))))
	if len(t.Rows) == 0 {
		return sb.String()
	}

	cols := t.Columns()
	stats := []stat{
		{"a", cols.A, meters},
		{"e", cols.E, plain},
		{"i", cols.I, rad2deg},
		{"ex", cols.Ex, plain},
		{"ey", cols.Ey, plain},
		{"hx", cols.Hx, plain},
		{"hy", cols.Hy, plain},
		{"longitude", cols.Longitude, degrees},
		{"altitude", cols.Altitude, meters},
	}

	var table strings.Builder
	table.WriteString(labelStyle.Render("") + headStyle.Render(
		cellStyle.Render("start")+cellStyle.Render("end")+cellStyle.Render("min")+cellStyle.Render("max")))
	table.WriteString("\n")
	for _, s := range stats {
		table.WriteString(labelStyle.Render(s.name))
		for _, v := range []float64{s.values[0], s.values[len(s.values)-1], floats.Min(s.values), floats.Max(s.values)} {
			table.WriteString(cellStyle.Render(s.format(v)))
		}
		table.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(boxStyle.Render(strings.TrimSuffix(table.String(), "\n")))
	sb.WriteString("\n\n")

	if days := span.Hours() / 24; days > 0 && len(cols.Longitude) > 1 {
		drift := unwrapDegrees(cols.Longitude)
		field("lon drift", degrees((drift[len(drift)-1]-drift[0])/days)+"/day")
	}

	if len(t.Maneuvers) == 0 {
		field("maneuvers", "none")
		return sb.String()
	}
	sb.WriteString(headStyle.Render("maneuvers") + "\n")
	var total float64
	for _, am := range t.Maneuvers {
		m := am.Maneuver
		dv := r3.Norm(m.DeltaV)
		total += dv
		fmt.Fprintf(&sb, "  %s  %-7s  |dv| %s m/s  propellant %s%%\n",
			m.Date.UTC().Format(time.RFC3339),
			m.Frame,
			humanize.FtoaWithDigits(dv, 4),
			humanize.FtoaWithDigits(am.PropellantFraction*100, 3),
		)
	}
	field("total dv", humanize.FtoaWithDigits(total, 4)+" m/s")
	return sb.String()
}

// unwrapDegrees removes 360° jumps from a longitude series.
func unwrapDegrees(v []float64) []float64 {
	out := make([]float64, len(v))
	var offset float64
	for k := range v {
		if k > 0 {
			switch d := v[k] - v[k-1]; {
			case d > 180:
				offset -= 360
			case d < -180:
				offset += 360
			}
		}
		out[k] = v[k] + offset
	}
	return out
}
