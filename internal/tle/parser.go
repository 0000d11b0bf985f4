package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// LineLength is the fixed width of a TLE line.
const LineLength = 69

// SyntaxError describes why a TLE line was rejected.
type SyntaxError struct {
	Line  int    // 1 or 2
	Field string // offending field, empty for whole-line problems
	Msg   string
}

func (e *SyntaxError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("TLE line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("TLE line %d: %s: %s", e.Line, e.Field, e.Msg)
}

// Checksum returns the modulo-10 checksum of the first 68 columns of line:
// the sum of all digits, with each minus sign counting as 1.
func Checksum(line string) int {
	sum := 0
	for i := 0; i < len(line) && i < LineLength-1; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// ParseLines parses and validates a single TLE. Surrounding whitespace is
// trimmed. Every field the SGP4 initializer reads is validated here, so a
// TLE accepted by ParseLines is safe to hand to the propagator.
func ParseLines(line1, line2 string) (*TLE, error) {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if err := checkLine(line1, 1); err != nil {
		return nil, err
	}
	if err := checkLine(line2, 2); err != nil {
		return nil, err
	}

	t := &TLE{Line1: line1, Line2: line2}
	var err error

	// Line 1.
	if t.CatalogNumber, err = intField(line1, 1, "catalog number", 2, 7); err != nil {
		return nil, err
	}
	t.Classification = line1[7]
	t.IntlDesignator = strings.TrimSpace(line1[9:17])
	if t.Epoch, err = parseEpoch(line1[18:20], line1[20:32]); err != nil {
		return nil, &SyntaxError{Line: 1, Field: "epoch", Msg: err.Error()}
	}
	if t.MeanMotionDot, err = floatField(line1[33:43], 1, "mean motion derivative"); err != nil {
		return nil, err
	}
	if t.MeanMotionDDot, err = floatField(impliedDecimal(line1[44:52]), 1, "mean motion second derivative"); err != nil {
		return nil, err
	}
	if t.BStar, err = floatField(impliedDecimal(line1[53:61]), 1, "bstar"); err != nil {
		return nil, err
	}
	t.EphemerisType, _ = strconv.Atoi(strings.TrimSpace(line1[62:63]))
	if t.ElementNumber, err = optionalInt(line1[64:68], 1, "element number"); err != nil {
		return nil, err
	}

	// Line 2.
	cat2, err := intField(line2, 2, "catalog number", 2, 7)
	if err != nil {
		return nil, err
	}
	if cat2 != t.CatalogNumber {
		return nil, &SyntaxError{Line: 2, Field: "catalog number",
			Msg: fmt.Sprintf("%d does not match line 1 (%d)", cat2, t.CatalogNumber)}
	}
	fields := []struct {
		name   string
		lo, hi int
		dst    *float64
	}{
		{"inclination", 8, 16, &t.Inclination},
		{"RAAN", 17, 25, &t.RAAN},
		{"argument of perigee", 34, 42, &t.ArgPerigee},
		{"mean anomaly", 43, 51, &t.MeanAnomaly},
		{"mean motion", 52, 63, &t.MeanMotion},
	}
	for _, f := range fields {
		if *f.dst, err = floatField(line2[f.lo:f.hi], 2, f.name); err != nil {
			return nil, err
		}
	}
	if t.Eccentricity, err = floatField("."+line2[26:33], 2, "eccentricity"); err != nil {
		return nil, err
	}
	if t.RevolutionNumber, err = optionalInt(line2[63:68], 2, "revolution number"); err != nil {
		return nil, err
	}

	if t.MeanMotion <= 0 {
		return nil, &SyntaxError{Line: 2, Field: "mean motion", Msg: "must be positive"}
	}
	if t.Inclination < 0 || t.Inclination > 180 {
		return nil, &SyntaxError{Line: 2, Field: "inclination", Msg: "out of range [0, 180]"}
	}
	return t, nil
}

func checkLine(line string, n int) error {
	if len(line) != LineLength {
		return &SyntaxError{Line: n, Msg: fmt.Sprintf("length %d, want %d", len(line), LineLength)}
	}
	if line[0] != byte('0'+n) || line[1] != ' ' {
		return &SyntaxError{Line: n, Msg: fmt.Sprintf("must start with %q", fmt.Sprintf("%d ", n))}
	}
	last := line[LineLength-1]
	if last < '0' || last > '9' {
		return &SyntaxError{Line: n, Field: "checksum", Msg: fmt.Sprintf("%q is not a digit", last)}
	}
	if want := Checksum(line); int(last-'0') != want {
		return &SyntaxError{Line: n, Field: "checksum", Msg: fmt.Sprintf("got %c, computed %d", last, want)}
	}
	return nil
}

// floatField parses a numeric column the way the SGP4 initializer does:
// at most two embedded blanks are dropped, anything else must be a number.
func floatField(s string, line int, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(s, " ", "", 2), 64)
	if err != nil {
		return 0, &SyntaxError{Line: line, Field: name, Msg: fmt.Sprintf("invalid number %q", s)}
	}
	return v, nil
}

func intField(line string, n int, name string, lo, hi int) (int, error) {
	s := strings.TrimSpace(line[lo:hi])
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &SyntaxError{Line: n, Field: name, Msg: fmt.Sprintf("invalid integer %q", s)}
	}
	return v, nil
}

func optionalInt(s string, line int, name string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &SyntaxError{Line: line, Field: name, Msg: fmt.Sprintf("invalid integer %q", s)}
	}
	return v, nil
}

// impliedDecimal expands an 8-column "±ddddd±d" field to "±.ddddde±d".
func impliedDecimal(s string) string {
	return s[0:1] + "." + s[1:6] + "e" + s[6:8]
}

// parseEpoch converts the YY and DDD.DDDDDDDD epoch columns to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(yearStr, dayStr string) (time.Time, error) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q", yearStr)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q", dayStr)
	}
	whole := int(dayOfYear)
	if whole < 1 || whole > 366 {
		return time.Time{}, fmt.Errorf("epoch day %q out of range", dayStr)
	}

	// dayOfYear is 1-based: day 1 = Jan 1. Integer and fractional parts are
	// added separately to keep sub-microsecond resolution.
	frac := dayOfYear - float64(whole)
	t := time.Date(year, 1, whole, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration(frac * float64(24*time.Hour))), nil
}

// Parse reads two- or three-line NORAD listings from r. Entries that fail
// validation are skipped with a warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i+1 < len(lines); {
		var name string
		if !strings.HasPrefix(lines[i], "1 ") {
			name = strings.TrimSpace(strings.TrimPrefix(lines[i], "0 "))
			i++
			if i+1 >= len(lines) {
				break
			}
		}
		line1, line2 := lines[i], lines[i+1]
		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name)
			if strings.HasPrefix(line1, "1 ") {
				i++
			}
			continue
		}

		t, err := ParseLines(line1, line2)
		if err != nil {
			logger.Warn("skipping invalid TLE entry", "name", name, "error", err)
			i += 2
			continue
		}
		entries = append(entries, Entry{Name: name, TLE: t})
		i += 2
	}

	return entries, nil
}
