package web

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestContentFiles(t *testing.T) {
	for _, name := range []string{"index.html", "app.js", "styles.css"} {
		b, err := fs.ReadFile(Content, name)
		if err != nil {
			t.Fatalf("reading %s: %v", name, err)
		}
		if len(b) == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

// TLE lines are trimmed server-side, so the inputs must accept padded
// pastes such as " 1 27421U 02021A ..." without truncating the checksum.
func TestTLEInputsAcceptPaddedLines(t *testing.T) {
	b, err := fs.ReadFile(Content, "index.html")
	if err != nil {
		t.Fatal(err)
	}
	inputs := regexp.MustCompile(`<input[^>]*id="line[12]"[^>]*>`).FindAllString(string(b), -1)
	if len(inputs) != 2 {
		t.Fatalf("found %d TLE inputs, want 2", len(inputs))
	}
	for _, in := range inputs {
		if strings.Contains(in, "maxlength") {
			t.Errorf("TLE input is length-limited: %s", in)
		}
	}
}
