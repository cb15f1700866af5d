package incident

import "testing"

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"Police":       Police,
		"fire":         Fire,
		" Medical ":    Medical,
		"EMS response": Medical,
		"smoke report": Fire,
	}
	for in, want := range cases {
		got, ok := ParseCategory(in)
		if !ok || got != want {
			t.Fatalf("ParseCategory(%q): expected %q, got %q (ok=%v)", in, want, got, ok)
		}
	}
	if _, ok := ParseCategory("weather"); ok {
		t.Fatalf("expected unknown category to be rejected")
	}
}

func TestParsePriority(t *testing.T) {
	if p, ok := ParsePriority("HIGH"); !ok || p != High {
		t.Fatalf("expected High, got %q", p)
	}
	if p, ok := ParsePriority("p1"); !ok || p != Medium {
		t.Fatalf("expected Medium for P1, got %q", p)
	}
	if _, ok := ParsePriority("urgent-ish"); ok {
		t.Fatalf("expected unknown priority to be rejected")
	}
}

func TestClampSeverityKeepsBand(t *testing.T) {
	if got := ClampSeverity(Medium, 6); got != 3 {
		t.Fatalf("expected medium severity 3, got %d", got)
	}
	if got := ClampSeverity(High, 2); got != 2 {
		t.Fatalf("expected severity 2 to stay, got %d", got)
	}
	if got := ClampSeverity(Low, 1); got != 6 {
		t.Fatalf("expected low severity 6, got %d", got)
	}
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	a := Assessment{Keywords: []Keyword{FireKeyword}, Routing: []string{"Fire Engine"}}
	b := a.Clone()
	b.Keywords[0] = Smoke
	b.Routing[0] = "EMS"
	if a.Keywords[0] != FireKeyword || a.Routing[0] != "Fire Engine" {
		t.Fatalf("clone mutated the original: %+v", a)
	}
}

func TestUrgencyScore(t *testing.T) {
	u := UrgencyIndicators{Immediate: 2, Urgent: 1, Routine: 3}
	if got := u.Score(); got != 5 {
		t.Fatalf("expected score 5, got %d", got)
	}
}
