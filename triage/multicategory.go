package triage

import (
	"strings"

	"dispatch_triage/incident"
)

// DetectMultiCategory returns the agencies an incident needs when the
// accumulated rule groups name at least two distinct categories, or nil.
func (e *Extractor) DetectMultiCategory(text string) *incident.MultiCategory {
	lower := strings.ToLower(text)
	var cats []incident.Category
	seen := make(map[incident.Category]bool)
	for _, r := range e.rules.MultiCategory {
		if !r.matches(lower) {
			continue
		}
		for _, c := range r.Categories {
			if seen[c] {
				continue
			}
			seen[c] = true
			cats = append(cats, c)
		}
	}
	if len(cats) < 2 {
		return nil
	}
	return &incident.MultiCategory{
		Categories:          cats,
		PrimaryCategory:     cats[0],
		SecondaryCategories: append([]incident.Category(nil), cats[1:]...),
	}
}

// AlignPrimary rewrites a detection so that primary equals the single-category
// answer. The primary is moved to the front of the category list, or prepended
// when the detector did not name it.
func AlignPrimary(mc *incident.MultiCategory, primary incident.Category) *incident.MultiCategory {
	if mc == nil {
		return nil
	}
	cats := []incident.Category{primary}
	for _, c := range mc.Categories {
		if c != primary {
			cats = append(cats, c)
		}
	}
	return &incident.MultiCategory{
		Categories:          cats,
		PrimaryCategory:     primary,
		SecondaryCategories: append([]incident.Category(nil), cats[1:]...),
	}
}
