package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTrip = `
trip:
  destination: Lisbon
  start_date: 2026-05-01
  end_date: 2026-05-05
  budget: moderate
preferences:
  pace: relaxed
  interests: [food, architecture]
  dietary: [vegetarian]
`

func TestParseTripDocument(t *testing.T) {
	doc, err := ParseTripDocument([]byte(sampleTrip))
	if err != nil {
		t.Fatalf("ParseTripDocument() error = %v", err)
	}
	if doc.Trip.Destination != "Lisbon" {
		t.Fatalf("Destination = %q", doc.Trip.Destination)
	}
	if doc.Trip.Travelers != 1 {
		t.Fatalf("Travelers = %d, want default 1", doc.Trip.Travelers)
	}
	if got := doc.Trip.Nights(); got != 4 {
		t.Fatalf("Nights() = %d, want 4", got)
	}
	if len(doc.Preferences.Interests) != 2 {
		t.Fatalf("Interests = %#v", doc.Preferences.Interests)
	}
}

func TestParseTripDocument_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing destination": "trip:\n  start_date: 2026-05-01\n  end_date: 2026-05-02\n",
		"bad date":            "trip:\n  destination: Rome\n  start_date: 05/01/2026\n  end_date: 2026-05-02\n",
		"end before start":    "trip:\n  destination: Rome\n  start_date: 2026-05-03\n  end_date: 2026-05-02\n",
		"bad pace":            "trip:\n  destination: Rome\n  start_date: 2026-05-01\n  end_date: 2026-05-02\npreferences:\n  pace: frantic\n",
		"bad temperature":     "trip:\n  destination: Rome\n  start_date: 2026-05-01\n  end_date: 2026-05-02\ntemperature: 3\n",
		"not yaml":            "trip: [",
	}
	for name, raw := range cases {
		if _, err := ParseTripDocument([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadTripDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trip.yaml")
	if err := os.WriteFile(path, []byte(sampleTrip), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := LoadTripDocument(path)
	if err != nil {
		t.Fatalf("LoadTripDocument() error = %v", err)
	}
	if !strings.EqualFold(doc.Preferences.Pace, "relaxed") {
		t.Fatalf("Pace = %q", doc.Preferences.Pace)
	}
}
