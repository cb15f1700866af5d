package triage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"dispatch_triage/incident"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	rs, err := DefaultRules()
	if err != nil {
		t.Fatalf("rules failed to load: %v", err)
	}
	return NewExtractor(rs)
}

func TestEveryTriggerFiresItsRow(t *testing.T) {
	rs, err := DefaultRules()
	if err != nil {
		t.Fatalf("rules failed to load: %v", err)
	}
	ex := NewExtractor(rs)
	for _, row := range rs.Keywords {
		for _, trigger := range row.Any {
			got := ex.ExtractKeywords(trigger)
			found := false
			for _, k := range got {
				if k == row.Keyword {
					found = true
				}
			}
			if !found {
				t.Fatalf("trigger %q: expected %s in %v", trigger, row.Keyword, got)
			}
		}
	}
}

func TestExtractKeywordsOrderAndDedup(t *testing.T) {
	ex := newTestExtractor(t)
	cases := []struct {
		text string
		want []incident.Keyword
	}{
		{"Help, he is unconscious and dying", []incident.Keyword{incident.MedicalKeyword, incident.Emergency}},
		{"a dog attacked my neighbor", []incident.Keyword{incident.Assault, incident.AnimalEmergency}},
		{"sexual assault reported", []incident.Keyword{incident.Assault}},
		{"the car crash caused a FIRE", []incident.Keyword{incident.FireKeyword, incident.Accident}},
		{"", nil},
	}
	for _, tc := range cases {
		got := ex.ExtractKeywords(tc.text)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Fatalf("%q: keywords mismatch (-want +got):\n%s", tc.text, diff)
		}
	}
}

func TestAnimalEmergencyNeedsBothGroups(t *testing.T) {
	ex := newTestExtractor(t)
	if got := ex.ExtractKeywords("my dog is barking"); len(got) != 0 {
		t.Fatalf("expected no keywords, got %v", got)
	}
	got := ex.ExtractKeywords("my pet was eaten")
	if diff := cmp.Diff([]incident.Keyword{incident.AnimalEmergency}, got); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectUrgencyCounts(t *testing.T) {
	ex := newTestExtractor(t)
	got := ex.DetectUrgency("This is an EMERGENCY, come quickly. Not urgent stuff can wait till later")
	want := incident.UrgencyIndicators{Immediate: 2, Urgent: 1, Routine: 2}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	if got.Score() != 2*3+1*2-2 {
		t.Fatalf("unexpected score %d", got.Score())
	}
	if zero := ex.DetectUrgency(""); zero != (incident.UrgencyIndicators{}) {
		t.Fatalf("expected zero counts, got %+v", zero)
	}
}

func TestExtractLocationFlagsAreIndependent(t *testing.T) {
	ex := newTestExtractor(t)
	got := ex.ExtractLocation("The car crashed outside my Apartment")
	want := incident.LocationContext{Residential: true, Vehicle: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	got = ex.ExtractLocation("a fight at the school by the store")
	want = incident.LocationContext{Commercial: true, Public: true}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestMatchOverride(t *testing.T) {
	ex := newTestExtractor(t)
	cases := []struct {
		text string
		name string
		ok   bool
	}{
		{"my nose bleeding won't stop", "nosebleed", true},
		{"I want to order two pizzas", "pizza", true},
		{"there are cats up in the trees", "cat-tree", true},
		{"the cat is under the car", "", false},
		{"I can't locate the street", "", false},
		{"house fire", "", false},
	}
	for _, tc := range cases {
		got, ok := ex.MatchOverride(tc.text)
		if ok != tc.ok || got.Name != tc.name {
			t.Fatalf("%q: expected (%q, %v), got (%q, %v)", tc.text, tc.name, tc.ok, got.Name, ok)
		}
	}
}

func TestLoadRulesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	doc := `
keywords:
  - {keyword: FIRE, any: [Blaze]}
urgency:
  immediate: [NOW]
location:
  public: [plaza]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	rs, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	ex := NewExtractor(rs)
	if diff := cmp.Diff([]incident.Keyword{incident.FireKeyword}, ex.ExtractKeywords("a BLAZE at the plaza")); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
	if got := ex.DetectUrgency("come now"); got.Immediate != 1 {
		t.Fatalf("expected lower-cased urgency trigger, got %+v", got)
	}
	if !ex.ExtractLocation("the plaza").Public {
		t.Fatalf("expected public location")
	}
}

func TestParseRulesRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"empty":        ``,
		"no keywords":  "urgency:\n  immediate: [now]\n",
		"no triggers":  "keywords:\n  - {keyword: FIRE}\n",
		"bad override": "keywords:\n  - {keyword: FIRE, any: [fire]}\noverrides:\n  - {name: x, any: [x], category: Police, priority: High, severity: 6}\n",
	}
	for name, doc := range cases {
		if _, err := ParseRules([]byte(doc)); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}
