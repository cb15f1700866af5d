package triage

import (
	"strings"

	"dispatch_triage/incident"
)

// Extractor scans transcript text for keywords, urgency words and location
// hints. It holds only compiled, read-only rules and is safe for concurrent use.
type Extractor struct {
	rules     *RuleSet
	overrides []compiledOverride
}

// Override is the canned answer for a matched non-emergency phrase.
type Override struct {
	Name       string
	Category   incident.Category
	Priority   incident.Priority
	Severity   int
	Confidence int
	Code       string
	Keywords   []incident.Keyword
	Note       string
}

// NewExtractor compiles a rule set.
func NewExtractor(rs *RuleSet) *Extractor {
	ex := &Extractor{rules: rs}
	for _, o := range rs.Overrides {
		ex.overrides = append(ex.overrides, compileOverride(o))
	}
	return ex
}

// ExtractKeywords returns the keywords present in text, in rule order, without
// duplicates.
func (e *Extractor) ExtractKeywords(text string) []incident.Keyword {
	lower := strings.ToLower(text)
	var out []incident.Keyword
	seen := make(map[incident.Keyword]bool)
	for _, r := range e.rules.Keywords {
		if seen[r.Keyword] || !r.matches(lower) {
			continue
		}
		seen[r.Keyword] = true
		out = append(out, r.Keyword)
	}
	return out
}

// DetectUrgency counts how many words of each urgency list occur in text.
func (e *Extractor) DetectUrgency(text string) incident.UrgencyIndicators {
	lower := strings.ToLower(text)
	return incident.UrgencyIndicators{
		Immediate: countHits(lower, e.rules.Urgency.Immediate),
		Urgent:    countHits(lower, e.rules.Urgency.Urgent),
		Routine:   countHits(lower, e.rules.Urgency.Routine),
	}
}

// ExtractLocation reports which kinds of place the caller mentions.
func (e *Extractor) ExtractLocation(text string) incident.LocationContext {
	lower := strings.ToLower(text)
	loc := e.rules.Location
	return incident.LocationContext{
		Residential: containsAny(lower, loc.Residential...),
		Commercial:  containsAny(lower, loc.Commercial...),
		Public:      containsAny(lower, loc.Public...),
		Vehicle:     containsAny(lower, loc.Vehicle...),
	}
}

// MatchOverride checks the non-emergency phrases in table order.
func (e *Extractor) MatchOverride(text string) (Override, bool) {
	lower := strings.ToLower(text)
	for _, c := range e.overrides {
		if !c.matches(lower) {
			continue
		}
		r := c.rule
		return Override{
			Name:       r.Name,
			Category:   r.Category,
			Priority:   r.Priority,
			Severity:   r.Severity,
			Confidence: r.Confidence,
			Code:       r.Code,
			Keywords:   append([]incident.Keyword(nil), r.Keywords...),
			Note:       r.Note,
		}, true
	}
	return Override{}, false
}
