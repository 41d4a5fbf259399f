package invite

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		c := NewCode()
		if len(c) != CodeLength {
			t.Fatalf("len(%q) = %d, want %d", c, len(c), CodeLength)
		}
		for _, r := range c {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("code %q contains %q", c, r)
			}
		}
		seen[c] = true
	}
	if len(seen) < 45 {
		t.Errorf("only %d distinct codes in 50", len(seen))
	}
}

func TestNewCodeUniform(t *testing.T) {
	counts := make(map[byte]int)
	const n = 5000
	for i := 0; i < n; i++ {
		c := NewCode()
		for j := 0; j < len(c); j++ {
			counts[c[j]]++
		}
	}

	// Without rejection the first 256%31 characters come up 9/8 as often.
	low := 256 % len(alphabet)
	var lowSum, highSum int
	for i := 0; i < len(alphabet); i++ {
		if i < low {
			lowSum += counts[alphabet[i]]
		} else {
			highSum += counts[alphabet[i]]
		}
	}
	lowMean := float64(lowSum) / float64(low)
	highMean := float64(highSum) / float64(len(alphabet)-low)
	if diff := lowMean - highMean; diff > 50 || diff < -50 {
		t.Errorf("mean count of first %d characters = %.0f, rest = %.0f, want roughly equal", low, lowMean, highMean)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  ab3xy9 "); got != "AB3XY9" {
		t.Errorf("Normalize = %q, want AB3XY9", got)
	}
}

func TestQRRendererPNG(t *testing.T) {
	r := NewQRRenderer(128, "Q")
	png, err := r.PNG("h1", "Home", "AB3XY9")
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload(`{"household_id":"h1","name":"Home","code":" ab3xy9","type":"household_invite"}`)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if p.Code != "AB3XY9" || p.HouseholdID != "h1" {
		t.Errorf("payload = %+v", p)
	}

	if _, err := ParsePayload(`{"code":"X","type":"merchant"}`); err == nil {
		t.Error("expected error for wrong type")
	}
	if _, err := ParsePayload(`not json`); err == nil {
		t.Error("expected error for bad json")
	}
}
