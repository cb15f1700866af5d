package formatting

import (
	"fmt"
	"strings"

	"dispatch_triage/incident"
	"dispatch_triage/triage"
)

const maxQuestions = 3

var violentKeywords = []incident.Keyword{
	incident.Robbery, incident.Shooting, incident.Stabbing, incident.Assault, incident.Hostage,
}

// FormatBrief renders the one-line "[PRIORITY] description" banner.
func FormatBrief(a incident.Assessment) string {
	priority := a.Priority
	if !priority.Valid() {
		priority = incident.Low
	}
	brief := fmt.Sprintf("[%s] %s", strings.ToUpper(string(priority)), briefDescription(a))
	if len(a.Categories) > 1 {
		brief += " (multi-agency: " + joinCategories(a.Categories) + ")"
	}
	return brief
}

func briefDescription(a incident.Assessment) string {
	if triage.IsNonEmergency(a) && a.Note != "" {
		return a.Note
	}
	high := a.Priority == incident.High
	switch a.Category {
	case incident.Fire:
		if high {
			return "Fire emergency - immediate response required"
		}
		return "Fire incident - fire department response"
	case incident.Medical:
		if high {
			return "Medical emergency - EMS dispatch needed"
		}
		return "Medical call - EMS response"
	}
	switch {
	case hasAny(a, violentKeywords...):
		return "Armed incident - suspect(s) at large"
	case hasAny(a, incident.Theft, incident.Burglary):
		return "Theft incident - standard police response"
	case high:
		return "Police emergency - immediate response required"
	case a.Priority == incident.Medium:
		return "Police incident - standard response"
	default:
		return "Incident reported - further assessment needed"
	}
}

// FormatQuestions returns up to three follow-up questions for the call taker.
func FormatQuestions(a incident.Assessment) []string {
	var questions []string
	switch {
	case hasAny(a, incident.PossiblePrank):
		questions = []string{
			"Can you confirm the nature of your emergency?",
			"Is anyone in danger right now?",
			"What is your exact location?",
		}
	case a.Category == incident.Fire:
		questions = []string{"Is anyone trapped inside?", "What is burning?", "Is the fire spreading?"}
	case a.Category == incident.Medical:
		questions = []string{"Is the person conscious?", "Are they breathing?", "What are the symptoms?"}
	default:
		questions = []string{"Are the suspects armed?", "What direction are they heading?", "Can you describe the suspects?"}
	}
	if len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}
	return questions
}

func hasAny(a incident.Assessment, keywords ...incident.Keyword) bool {
	for _, k := range keywords {
		if a.HasKeyword(k) {
			return true
		}
	}
	return false
}

func joinCategories(cats []incident.Category) string {
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, string(c))
	}
	return strings.Join(parts, ", ")
}
