package formatting

import (
	"regexp"
	"strings"
	"time"
)

const (
	unknownLocation = "Location to be determined"
	whenLayout      = "1/2/2006, 3:04:05 PM"
)

// Summary is the who/what/where digest shown next to the transcript.
type Summary struct {
	Who      string `json:"who"`
	What     string `json:"what"`
	Where    string `json:"where"`
	When     string `json:"when"`
	Injuries string `json:"injuries"`
	Suspects string `json:"suspects"`
}

// Location phrases are tried in order; the first capture group wins. Captures
// stop at clause punctuation so "at 12 oak street, hurry" yields "12 Oak Street".
var locationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`at (\d+ [^,.;!?]+)`),
	regexp.MustCompile(`on ([^,.;!?]+ street)`),
	regexp.MustCompile(`near ([^,.;!?]+)`),
	regexp.MustCompile(`(\d+ [^,.;!?]+ avenue)`),
	regexp.MustCompile(`intersection of\s+([^,.;!?]+?\s+(?:and|&)\s+[^,.;!?]+)`),
}

type phraseRule struct {
	label string
	any   []string
}

var whatRules = []phraseRule{
	{"Fire emergency", []string{"fire"}},
	{"Armed robbery", []string{"robbery"}},
	{"Theft incident", []string{"theft"}},
	{"Medical emergency", []string{"medical"}},
	{"Traffic accident", []string{"accident"}},
}

// ExtractSummary digests a transcript. now supplies the "when" field.
func ExtractSummary(transcript string, now time.Time) Summary {
	lower := strings.ToLower(transcript)
	return Summary{
		Who:      extractWho(lower),
		What:     extractWhat(lower),
		Where:    ExtractWhere(lower),
		When:     now.Format(whenLayout),
		Injuries: extractInjuries(lower),
		Suspects: extractSuspects(lower),
	}
}

// ExtractWhere returns the first location phrase in the transcript, or a
// placeholder when none is found.
func ExtractWhere(transcript string) string {
	lower := strings.ToLower(transcript)
	for _, re := range locationPatterns {
		if m := re.FindStringSubmatch(lower); len(m) == 2 {
			if where := normalizeStreet(m[1]); where != "" {
				return where
			}
		}
	}
	return unknownLocation
}

func extractWho(lower string) string {
	switch {
	case strings.Contains(lower, "caller"), strings.Contains(lower, "i am"):
		return "Caller reporting"
	case strings.Contains(lower, "witness"):
		return "Witness reporting"
	default:
		return "Unknown caller"
	}
}

func extractWhat(lower string) string {
	for _, r := range whatRules {
		for _, p := range r.any {
			if strings.Contains(lower, p) {
				return r.label
			}
		}
	}
	return "Incident reported"
}

func extractInjuries(lower string) string {
	switch {
	case strings.Contains(lower, "no injuries"), strings.Contains(lower, "no one hurt"), strings.Contains(lower, "nobody hurt"):
		return "No injuries"
	case strings.Contains(lower, "injured"), strings.Contains(lower, "hurt"):
		return "Injuries reported"
	default:
		return "Injury status unknown"
	}
}

func extractSuspects(lower string) string {
	if !strings.Contains(lower, "suspect") && !strings.Contains(lower, "perpetrator") {
		return "No suspects identified"
	}
	if strings.Contains(lower, "armed") {
		return "Armed suspect(s)"
	}
	return "Suspect(s) reported"
}
