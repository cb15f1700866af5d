package formatting

import (
	"fmt"
	"strings"

	"dispatch_triage/incident"
	"dispatch_triage/triage"
)

type scriptTemplate struct {
	name        string
	keywords    []incident.Keyword
	situation   string
	instruction string
}

var (
	weaponTerms  = []string{"gun", "knife", "weapon", "armed", "shooting", "shot"}
	chaseTerms   = []string{"chasing", "chase", "fleeing", "fled", "pursuit", "following"}
	vehicleTerms = []string{"car", "vehicle", "truck", "van", "sedan", "tires", "motorcycle"}
)

var pursuitTemplate = scriptTemplate{
	name:        "armed-pursuit",
	situation:   "Armed suspect in a vehicle pursuit",
	instruction: "Keep the caller on the line at a safe distance. Get plate, make, color and direction of travel. Do not follow the vehicle.",
}

// Keyword templates are checked in order against the assessment keywords.
var keywordTemplates = []scriptTemplate{
	{
		name:        "fire",
		keywords:    []incident.Keyword{incident.FireKeyword, incident.Smoke, incident.Explosion, incident.GasLeak},
		situation:   "Reported fire or hazardous atmosphere",
		instruction: "Tell the caller to leave the building now and stay out. Ask whether anyone is still inside.",
	},
	{
		name:        "medical",
		keywords:    []incident.Keyword{incident.Cardiac, incident.Stroke, incident.MedicalKeyword, incident.Overdose, incident.Trauma},
		situation:   "Medical emergency",
		instruction: "Stay with the patient. Check breathing and consciousness and be ready to give CPR instructions.",
	},
	{
		name:        "violent-crime",
		keywords:    []incident.Keyword{incident.Robbery, incident.Assault, incident.Shooting, incident.Stabbing, incident.Hostage},
		situation:   "Violent crime reported",
		instruction: "Make sure the caller is somewhere safe. Get suspect descriptions and direction of travel.",
	},
	{
		name:        "theft",
		keywords:    []incident.Keyword{incident.Theft, incident.Burglary},
		situation:   "Property crime reported",
		instruction: "Confirm the suspect has left. Ask the caller not to touch anything that was disturbed.",
	},
}

var categoryTemplates = map[incident.Category]scriptTemplate{
	incident.Fire: {
		name:        "fire-category",
		situation:   "Fire department call",
		instruction: "Confirm the exact address and whether anyone needs medical help.",
	},
	incident.Medical: {
		name:        "medical-category",
		situation:   "Medical call",
		instruction: "Confirm the patient's age, condition and whether they are breathing normally.",
	},
	incident.Police: {
		name:        "police-category",
		situation:   "Police call",
		instruction: "Confirm the caller's safety and get a description of anyone involved.",
	},
}

var genericTemplate = scriptTemplate{
	name:        "generic",
	situation:   "Incident reported",
	instruction: "Confirm the address and ask the caller to describe what is happening.",
}

var nonEmergencyTemplate = scriptTemplate{
	name:        "non-emergency",
	situation:   "Probable non-emergency call",
	instruction: "Politely confirm there is no emergency. Refer the caller to the non-emergency line if appropriate.",
}

// FormatScript renders the dispatcher script for a transcript and its assessment.
func FormatScript(transcript string, a incident.Assessment) string {
	tpl := selectTemplate(strings.ToLower(transcript), a)
	lines := []string{
		FormatBrief(a),
		fmt.Sprintf("Situation: %s.", tpl.situation),
	}
	if where := ExtractWhere(transcript); where != unknownLocation {
		lines = append(lines, fmt.Sprintf("Location: %s.", where))
	}
	if len(a.Routing) > 0 {
		lines = append(lines, fmt.Sprintf("Dispatch: %s.", strings.Join(a.Routing, ", ")))
	}
	if t := a.ResponseTimeTarget; t.TargetMinutes > 0 {
		lines = append(lines, fmt.Sprintf("Target response: %d min (max %d min).", t.TargetMinutes, t.MaxMinutes))
	}
	lines = append(lines, "Caller: "+tpl.instruction)
	return strings.Join(lines, "\n")
}

func selectTemplate(lower string, a incident.Assessment) scriptTemplate {
	if triage.IsNonEmergency(a) {
		return nonEmergencyTemplate
	}
	if containsAny(lower, weaponTerms) && containsAny(lower, chaseTerms) && containsAny(lower, vehicleTerms) {
		return pursuitTemplate
	}
	for _, tpl := range keywordTemplates {
		if hasAny(a, tpl.keywords...) {
			return tpl
		}
	}
	if tpl, ok := categoryTemplates[a.Category]; ok {
		return tpl
	}
	return genericTemplate
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
