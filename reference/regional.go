package reference

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"dispatch_triage/incident"
)

// Rand is the randomness the matcher needs. *rand.Rand from math/rand/v2
// satisfies it; tests pass a fixed sequence.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// GlobalRand returns a Rand backed by the process-wide math/rand/v2 source.
func GlobalRand() Rand { return globalRand{} }

// RegionalMatch is a best-effort mapping of a transcript onto a regional call type.
type RegionalMatch struct {
	Source        string            `json:"source"`
	Region        string            `json:"region,omitempty"`
	CallType      string            `json:"callType,omitempty"`
	Description   string            `json:"description,omitempty"`
	Category      incident.Category `json:"category"`
	Priority      incident.Priority `json:"priority"`
	Confidence    int               `json:"confidence"`
	ResponseTime  string            `json:"responseTime,omitempty"`
	IncidentCount int               `json:"incidentCount,omitempty"`
}

// RealTimeContext is a simulated snapshot of dispatch-floor load.
type RealTimeContext struct {
	IncidentCount   int       `json:"incidentCount"`
	ActiveUnits     int       `json:"activeUnits"`
	AvgResponseTime string    `json:"avgResponseTime"`
	LastUpdate      time.Time `json:"lastUpdate"`
}

type compiledEntry struct {
	entry    Entry
	patterns []*regexp.Regexp
}

type compiledRegion struct {
	region  Region
	entries []compiledEntry
}

// Matcher matches transcripts against the regional taxonomies in table order.
type Matcher struct {
	regions []compiledRegion
	mu      sync.Mutex
	rnd     Rand
	now     func() time.Time
}

// NewMatcher compiles the regional keyword lists. A nil rnd or now falls back to
// the process-wide generator and wall clock.
func NewMatcher(ds *Dataset, rnd Rand, now func() time.Time) *Matcher {
	if rnd == nil {
		rnd = globalRand{}
	}
	if now == nil {
		now = time.Now
	}
	m := &Matcher{rnd: rnd, now: now}
	for _, r := range ds.regions {
		cr := compiledRegion{region: r}
		for _, e := range r.Entries {
			ce := compiledEntry{entry: e}
			for _, kw := range e.Keywords {
				ce.patterns = append(ce.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(kw))+`\b`))
			}
			cr.entries = append(cr.entries, ce)
		}
		m.regions = append(m.regions, cr)
	}
	return m
}

// Match returns the first regional call type whose keywords occur in the
// transcript, or the keyword fallback when nothing regional fires.
func (m *Matcher) Match(transcript string) RegionalMatch {
	lower := strings.ToLower(transcript)
	for _, cr := range m.regions {
		for _, ce := range cr.entries {
			if !anyMatch(ce.patterns, lower) {
				continue
			}
			return m.build(cr.region, ce.entry)
		}
	}
	return keywordFallback(lower)
}

func (m *Matcher) build(r Region, e Entry) RegionalMatch {
	match := RegionalMatch{
		Region:      r.Name,
		CallType:    e.Code,
		Description: e.Description,
		Category:    e.Category,
		Priority:    incident.PriorityForSeverity(e.Severity),
		Confidence:  r.Confidence,
	}
	if e.Letter != "" {
		if letter, ok := r.Letters[e.Letter]; ok {
			match.Priority = letter.Priority
		}
		match.ResponseTime = fmt.Sprintf("%d minutes", r.LetterMinutes(e.Letter))
		match.IncidentCount = m.intN(50) + 5
	} else {
		if level, ok := r.SeverityLevel(e.Severity); ok {
			match.ResponseTime = level.Response
		}
		match.IncidentCount = m.intN(100) + 10
	}
	unit := r.Unit
	if unit == "" {
		unit = "incidents"
	}
	match.Source = fmt.Sprintf("%s (%d similar %s, %s)", r.Label, match.IncidentCount, unit, e.Code)
	return match
}

// RealTime returns a simulated load snapshot.
func (m *Matcher) RealTime() RealTimeContext {
	return RealTimeContext{
		IncidentCount:   m.intN(50) + 10,
		ActiveUnits:     m.intN(20) + 5,
		AvgResponseTime: "3.2 minutes",
		LastUpdate:      m.now().UTC(),
	}
}

func (m *Matcher) intN(n int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rnd.IntN(n)
}

func keywordFallback(lower string) RegionalMatch {
	switch {
	case containsAny(lower, "fire", "smoke"):
		return RegionalMatch{Source: "Keyword Analysis", Category: incident.Fire, Priority: incident.High, Confidence: 70}
	case containsAny(lower, "chest", "heart", "unconscious"):
		return RegionalMatch{Source: "Keyword Analysis", Category: incident.Medical, Priority: incident.High, Confidence: 70}
	case containsAny(lower, "robbery", "assault", "stabbing"):
		return RegionalMatch{Source: "Keyword Analysis", Category: incident.Police, Priority: incident.High, Confidence: 70}
	default:
		return RegionalMatch{Source: "Default", Category: incident.Police, Priority: incident.Low, Confidence: 50}
	}
}

func anyMatch(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func containsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
