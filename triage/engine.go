// Package triage is the incident classification engine. It turns a transcript
// into an incident.Assessment using an explicit trigger table and the reference
// tables; it performs no I/O and keeps no state between calls.
package triage

import (
	"strings"

	"dispatch_triage/incident"
	"dispatch_triage/reference"
)

const (
	keywordConfidence  = 85
	immediateBoost     = 10
	immediateCap       = 95
	urgentBoost        = 5
	urgentCap          = 90
	maxKeywords        = 3
	sourceRules        = "Real-world data analysis"
	sourceOverride     = "Special case override"
	noKeywordsFallback = 60
)

// Engine classifies transcripts. It is reentrant; share one instance.
type Engine struct {
	data *reference.Dataset
	ex   *Extractor
}

// NewEngine wires an extractor to a reference dataset.
func NewEngine(data *reference.Dataset, ex *Extractor) *Engine {
	return &Engine{data: data, ex: ex}
}

// Default builds an engine from the embedded rules and tables.
func Default() (*Engine, error) {
	ds, err := reference.Default()
	if err != nil {
		return nil, err
	}
	rs, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	return NewEngine(ds, NewExtractor(rs)), nil
}

// Dataset exposes the shared reference tables.
func (e *Engine) Dataset() *reference.Dataset { return e.data }

// Classify never fails; empty or unrecognised text yields the default
// Police/Low assessment.
func (e *Engine) Classify(transcript string) incident.Assessment {
	lower := strings.ToLower(transcript)

	if o, ok := e.ex.MatchOverride(lower); ok {
		return e.fromOverride(o)
	}

	keywords := e.ex.ExtractKeywords(lower)
	urgency := e.ex.DetectUrgency(lower)
	location := e.ex.ExtractLocation(lower)

	base := e.data.DefaultStandardized()
	category, priority, code := base.Category, base.Priority, base.Code
	confidence := noKeywordsFallback
	if len(keywords) > 0 {
		if row, ok := e.data.Standardized(keywords[0]); ok {
			category, priority, code = row.Category, row.Priority, row.Code
			confidence = keywordConfidence
		}
	}
	severity := incident.SeverityFor(priority)

	switch {
	case urgency.Immediate > 0:
		priority = incident.High
		severity = 1
		confidence = min(confidence+immediateBoost, immediateCap)
	case urgency.Urgent > 0:
		if priority == incident.Low {
			priority = incident.Medium
		}
		severity = min(severity, 3)
		confidence = min(confidence+urgentBoost, urgentCap)
	}

	if location.Residential && category == incident.Police && priority == incident.Low {
		priority = incident.Medium
	}
	if location.Public && (category == incident.Fire || category == incident.Medical) {
		priority = incident.High
		severity = 1
	}
	severity = incident.ClampSeverity(priority, severity)

	a := incident.Assessment{
		Category:           category,
		Priority:           priority,
		Severity:           severity,
		Confidence:         confidence,
		StandardizedCode:   code,
		Routing:            Route(category, priority, severity),
		ResponseTimeTarget: e.data.ResponseTarget(priority, category),
		UrgencyScore:       urgency.Score(),
		Location:           location,
		Source:             sourceRules,
	}
	if mc := AlignPrimary(e.ex.DetectMultiCategory(lower), category); mc != nil {
		a.Categories = mc.Categories
		a.PrimaryCategory = mc.PrimaryCategory
		a.SecondaryCategories = mc.SecondaryCategories
	}
	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	a.Keywords = keywords
	if a.Keywords == nil {
		a.Keywords = []incident.Keyword{}
	}
	return a
}

func (e *Engine) fromOverride(o Override) incident.Assessment {
	return incident.Assessment{
		Category:           o.Category,
		Priority:           o.Priority,
		Severity:           o.Severity,
		Confidence:         o.Confidence,
		StandardizedCode:   o.Code,
		Keywords:           o.Keywords,
		Routing:            Route(o.Category, o.Priority, o.Severity),
		ResponseTimeTarget: e.data.ResponseTarget(o.Priority, o.Category),
		Source:             sourceOverride,
		Note:               o.Note,
	}
}

// IsNonEmergency reports whether an assessment came from a prank or
// non-emergency override.
func IsNonEmergency(a incident.Assessment) bool {
	return a.Source == sourceOverride
}
