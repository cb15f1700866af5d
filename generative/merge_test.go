package generative

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"dispatch_triage/incident"
)

func float(v float64) *float64 { return &v }

func baseAssessment() incident.Assessment {
	return incident.Assessment{
		Category:            incident.Fire,
		Priority:            incident.High,
		Severity:            1,
		Confidence:          95,
		StandardizedCode:    "E",
		Keywords:            []incident.Keyword{incident.Explosion},
		Routing:             []string{"Fire Engine", "Ambulance"},
		ResponseTimeTarget:  incident.ResponseTarget{TargetMinutes: 5, MaxMinutes: 10},
		Categories:          []incident.Category{incident.Fire, incident.Medical, incident.Police},
		PrimaryCategory:     incident.Fire,
		SecondaryCategories: []incident.Category{incident.Medical, incident.Police},
		Source:              "Real-world data analysis",
	}
}

func TestMergeNilReplyKeepsBase(t *testing.T) {
	base := baseAssessment()
	if diff := cmp.Diff(base, Merge(base, nil)); diff != "" {
		t.Fatalf("nil reply changed the assessment (-want +got):\n%s", diff)
	}
}

func TestMergeIgnoresInvalidValues(t *testing.T) {
	base := baseAssessment()
	got := Merge(base, &Reply{
		Classification: ReplyClassification{Category: "astronaut", Priority: "whenever"},
		Routing:        []string{" ", ""},
		Keywords:       []string{"  "},
	})
	if got.Category != incident.Fire || got.Priority != incident.High || got.Confidence != 95 {
		t.Fatalf("invalid reply values leaked into %+v", got)
	}
	if diff := cmp.Diff(base.Routing, got.Routing); diff != "" {
		t.Fatalf("routing mismatch (-want +got):\n%s", diff)
	}
	if got.Source != SourceGenerative.String() {
		t.Fatalf("expected %q, got %q", SourceGenerative.String(), got.Source)
	}
}

func TestMergeEngineOwnsCodeAndTarget(t *testing.T) {
	base := baseAssessment()
	got := Merge(base, &Reply{Classification: ReplyClassification{Category: "police", Priority: "low", Confidence: float(240)}})
	if got.StandardizedCode != "E" || got.ResponseTimeTarget != base.ResponseTimeTarget {
		t.Fatalf("engine-owned fields changed: %+v", got)
	}
	if got.Confidence != 95 {
		t.Fatalf("expected capped confidence 95, got %d", got.Confidence)
	}
	if got.Severity != 6 {
		t.Fatalf("expected severity kept inside the Low band, got %d", got.Severity)
	}
}

func TestMergeEngineWinsConflicts(t *testing.T) {
	base := incident.Assessment{
		Category:           incident.Police,
		Priority:           incident.Low,
		Severity:           6,
		Confidence:         60,
		StandardizedCode:   "P2",
		ResponseTimeTarget: incident.ResponseTarget{TargetMinutes: 60, MaxMinutes: 120},
	}
	r, err := parseReply(`{"category":"Medical","priority":"High","confidence":90,"standardizedCode":"P4","severity":6,"responseTimeTarget":{"targetMinutes":1,"maxMinutes":2}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.StandardizedCode != "P4" || r.Severity == nil || *r.Severity != 6 || len(r.ResponseTimeTarget) == 0 {
		t.Fatalf("reply did not carry its conflicting values: %+v", r)
	}

	got := Merge(base, r)
	if got.Category != incident.Medical || got.Priority != incident.High || got.Confidence != 90 {
		t.Fatalf("expected Medical/High/90 from the reply, got %+v", got)
	}
	if got.StandardizedCode != "P2" || got.ResponseTimeTarget != base.ResponseTimeTarget {
		t.Fatalf("engine code and target must win, got %s %+v", got.StandardizedCode, got.ResponseTimeTarget)
	}
	if got.Severity != incident.ClampSeverity(incident.High, base.Severity) {
		t.Fatalf("expected engine severity clamped into the High band, got %d", got.Severity)
	}
}

func TestMergeTopLevelFieldsOverrideNested(t *testing.T) {
	got := Merge(baseAssessment(), &Reply{
		Category:       "Medical",
		Classification: ReplyClassification{Category: "Police", Priority: "Medium", Confidence: float(70)},
	})
	if got.Category != incident.Medical {
		t.Fatalf("expected top-level category to win, got %s", got.Category)
	}
	if got.Priority != incident.Medium || got.Confidence != 70 {
		t.Fatalf("expected nested values to fill the gaps, got %s/%d", got.Priority, got.Confidence)
	}
}

func TestMergeRealignsCategories(t *testing.T) {
	got := Merge(baseAssessment(), &Reply{Classification: ReplyClassification{Category: "Police"}})
	if got.PrimaryCategory != incident.Police || got.Category != incident.Police {
		t.Fatalf("expected Police primary, got %+v", got)
	}
	if diff := cmp.Diff([]incident.Category{incident.Police, incident.Fire, incident.Medical}, got.Categories); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]incident.Category{incident.Fire, incident.Medical}, got.SecondaryCategories); diff != "" {
		t.Fatalf("secondary mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeKeywordsAreCapped(t *testing.T) {
	got := Merge(baseAssessment(), &Reply{Keywords: []string{"fire", "FIRE", "gas leak", "smoke", "explosion"}})
	want := []incident.Keyword{incident.FireKeyword, incident.GasLeak, incident.Smoke}
	if diff := cmp.Diff(want, got.Keywords); diff != "" {
		t.Fatalf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeDoesNotAliasBase(t *testing.T) {
	base := baseAssessment()
	got := Merge(base, &Reply{})
	got.Routing[0] = "changed"
	if base.Routing[0] != "Fire Engine" {
		t.Fatalf("merge result shares routing with base")
	}
}

func TestExtractJSONObject(t *testing.T) {
	cases := map[string]string{
		`prefix {"a":1} suffix`:            `{"a":1}`,
		`{"a":{"b":"}"}} trailing {"c":2}`: `{"a":{"b":"}"}}`,
		`{"quote":"say \"{hi}\""}`:         `{"quote":"say \"{hi}\""}`,
		`no object here`:                   ``,
		`{"unterminated": {"x": 1}`:        ``,
	}
	for in, want := range cases {
		if got := extractJSONObject(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func TestParseReplyRejectsBadJSON(t *testing.T) {
	if _, err := parseReply("{not json}"); err == nil {
		t.Fatalf("expected error for malformed object")
	}
	if _, err := parseReply("plain text"); err == nil {
		t.Fatalf("expected error for missing object")
	}
	r, err := parseReply(`{"questions":["Is anyone hurt?"],"classification":{"confidence":72}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Questions) != 1 || r.Classification.Confidence == nil || *r.Classification.Confidence != 72 {
		t.Fatalf("unexpected reply %+v", r)
	}
	if _, err := parseReply(`{"note":"nothing useful","keywords":["  "]}`); err == nil {
		t.Fatalf("expected error for a reply without usable fields")
	}
}

func TestSequence(t *testing.T) {
	s := NewSequence()
	first := s.Next("call-1")
	second := s.Next("call-1")
	if first != 1 || second != 2 {
		t.Fatalf("expected 1 then 2, got %d then %d", first, second)
	}
	if s.IsCurrent("call-1", first) {
		t.Fatalf("older number should be stale")
	}
	if !s.IsCurrent("call-1", second) {
		t.Fatalf("latest number should be current")
	}
	if s.Next("call-2") != 1 {
		t.Fatalf("sequences should be per key")
	}
	s.Forget("call-1")
	if s.IsCurrent("call-1", second) {
		t.Fatalf("forgotten key should have no current number")
	}
}
