// Package incident holds the vocabulary shared by the classifier, the reference
// tables, the formatter and the dispatch queue. The JSON field names and enum
// spellings are consumed by exports and must not change.
package incident

import "strings"

// Category is the top-level dispatch domain.
type Category string

const (
	Police  Category = "Police"
	Fire    Category = "Fire"
	Medical Category = "Medical"
)

// Priority is the coarse urgency tier.
type Priority string

const (
	High   Priority = "High"
	Medium Priority = "Medium"
	Low    Priority = "Low"
)

// Keyword is a detected incident signal.
type Keyword string

const (
	Cardiac         Keyword = "CARDIAC"
	Stroke          Keyword = "STROKE"
	MedicalKeyword  Keyword = "MEDICAL"
	Overdose        Keyword = "OVERDOSE"
	Trauma          Keyword = "TRAUMA"
	FireKeyword     Keyword = "FIRE"
	Smoke           Keyword = "SMOKE"
	Explosion       Keyword = "EXPLOSION"
	GasLeak         Keyword = "GAS_LEAK"
	Robbery         Keyword = "ROBBERY"
	Assault         Keyword = "ASSAULT"
	Shooting        Keyword = "SHOOTING"
	Stabbing        Keyword = "STABBING"
	Domestic        Keyword = "DOMESTIC"
	Suicide         Keyword = "SUICIDE"
	Hostage         Keyword = "HOSTAGE"
	Bomb            Keyword = "BOMB"
	Emergency       Keyword = "EMERGENCY"
	Accident        Keyword = "ACCIDENT"
	Theft           Keyword = "THEFT"
	Noise           Keyword = "NOISE"
	AnimalEmergency Keyword = "ANIMAL_EMERGENCY"
	Burglary        Keyword = "BURGLARY"
	HitRun          Keyword = "HIT_RUN"
	DUI             Keyword = "DUI"
	Vandalism       Keyword = "VANDALISM"

	NoseBleed     Keyword = "NOSE_BLEED"
	Pizza         Keyword = "PIZZA"
	CatTree       Keyword = "CAT_TREE"
	PossiblePrank Keyword = "POSSIBLE_PRANK"
)

// ResponseTarget is the target and maximum response time in minutes.
type ResponseTarget struct {
	TargetMinutes int `json:"targetMinutes" yaml:"target"`
	MaxMinutes    int `json:"maxMinutes" yaml:"max"`
}

// UrgencyIndicators counts matches against the three urgency word lists.
type UrgencyIndicators struct {
	Immediate int `json:"immediate"`
	Urgent    int `json:"urgent"`
	Routine   int `json:"routine"`
}

// Score weighs immediate words over urgent ones and discounts routine ones.
func (u UrgencyIndicators) Score() int {
	return u.Immediate*3 + u.Urgent*2 - u.Routine
}

// LocationContext flags are independent; a call can be residential and vehicle.
type LocationContext struct {
	Residential bool `json:"residential"`
	Commercial  bool `json:"commercial"`
	Public      bool `json:"public"`
	Vehicle     bool `json:"vehicle"`
}

// Assessment is the structured result of classifying a transcript. A fresh value
// is produced per classification; callers re-classify instead of mutating it.
type Assessment struct {
	Category            Category        `json:"category"`
	Priority            Priority        `json:"priority"`
	Severity            int             `json:"severity"`
	Confidence          int             `json:"confidence"`
	StandardizedCode    string          `json:"standardizedCode"`
	Keywords            []Keyword       `json:"keywords"`
	Routing             []string        `json:"routing"`
	ResponseTimeTarget  ResponseTarget  `json:"responseTimeTarget"`
	Categories          []Category      `json:"categories,omitempty"`
	PrimaryCategory     Category        `json:"primaryCategory,omitempty"`
	SecondaryCategories []Category      `json:"secondaryCategories,omitempty"`
	UrgencyScore        int             `json:"urgencyScore"`
	Location            LocationContext `json:"locationContext"`
	Source              string          `json:"source,omitempty"`
	Note                string          `json:"note,omitempty"`
}

// MultiCategory describes an incident that needs more than one agency.
type MultiCategory struct {
	Categories          []Category `json:"categories"`
	PrimaryCategory     Category   `json:"primaryCategory"`
	SecondaryCategories []Category `json:"secondaryCategories"`
}

// HasKeyword reports whether k is among the assessment's keywords.
func (a Assessment) HasKeyword(k Keyword) bool {
	for _, kw := range a.Keywords {
		if kw == k {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with a.
func (a Assessment) Clone() Assessment {
	out := a
	out.Keywords = append([]Keyword(nil), a.Keywords...)
	out.Routing = append([]string(nil), a.Routing...)
	if a.Categories != nil {
		out.Categories = append([]Category(nil), a.Categories...)
	}
	if a.SecondaryCategories != nil {
		out.SecondaryCategories = append([]Category(nil), a.SecondaryCategories...)
	}
	return out
}

// Valid reports whether c is one of the three dispatch categories.
func (c Category) Valid() bool {
	return c == Police || c == Fire || c == Medical
}

// Valid reports whether p is one of the three priority tiers.
func (p Priority) Valid() bool {
	return p == High || p == Medium || p == Low
}

// Rank orders priorities for queue sorting; High sorts first.
func (p Priority) Rank() int {
	switch p {
	case High:
		return 0
	case Medium:
		return 1
	default:
		return 2
	}
}

// ParseCategory maps free-form text (generative output, CLI flags, regional
// descriptions) onto a category.
func ParseCategory(raw string) (Category, bool) {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case t == "":
		return "", false
	case strings.Contains(t, "police"), strings.Contains(t, "law"), strings.Contains(t, "crime"):
		return Police, true
	case strings.Contains(t, "fire"), strings.Contains(t, "smoke"), strings.Contains(t, "burning"):
		return Fire, true
	case strings.Contains(t, "ems"), strings.Contains(t, "medic"), strings.Contains(t, "ambulance"):
		return Medical, true
	default:
		return "", false
	}
}

// ParsePriority accepts the three tier names in any case, plus the NENA codes.
func ParsePriority(raw string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "e", "emergency":
		return High, true
	case "medium", "p1":
		return Medium, true
	case "low", "p2":
		return Low, true
	default:
		return "", false
	}
}

// SeverityFor returns the coarse severity synthesized from a priority.
func SeverityFor(p Priority) int {
	switch p {
	case High:
		return 1
	case Medium:
		return 3
	default:
		return 6
	}
}

// PriorityForSeverity maps a 1-6 severity onto its priority band.
func PriorityForSeverity(severity int) Priority {
	switch {
	case severity <= 2:
		return High
	case severity <= 4:
		return Medium
	default:
		return Low
	}
}

// ClampSeverity keeps severity inside the band that belongs to p.
func ClampSeverity(p Priority, severity int) int {
	lo, hi := 5, 6
	switch p {
	case High:
		lo, hi = 1, 2
	case Medium:
		lo, hi = 3, 4
	}
	if severity < lo || severity > hi {
		return SeverityFor(p)
	}
	return severity
}
