package formatting

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

var streetSuffixes = map[string]string{
	"rd":      "Road",
	"rd.":     "Road",
	"road":    "Road",
	"st":      "Street",
	"st.":     "Street",
	"street":  "Street",
	"ave":     "Avenue",
	"ave.":    "Avenue",
	"avenue":  "Avenue",
	"hwy":     "Highway",
	"hwy.":    "Highway",
	"highway": "Highway",
	"ln":      "Lane",
	"ln.":     "Lane",
	"lane":    "Lane",
	"dr":      "Drive",
	"dr.":     "Drive",
	"drive":   "Drive",
	"ct":      "Court",
	"ct.":     "Court",
	"pkwy":    "Parkway",
	"pkwy.":   "Parkway",
	"blvd":    "Boulevard",
	"blvd.":   "Boulevard",
	"rt":      "Route",
	"rt.":     "Route",
	"rte":     "Route",
}

// CleanFragment collapses whitespace in a speech-to-text fragment. It does not
// rewrite words, so the classifier sees what the caller said.
func CleanFragment(raw string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(raw, " "))
}

// JoinFragments concatenates fragments the way the classifier consumes them.
func JoinFragments(fragments []string) string {
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f = CleanFragment(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// normalizeStreet title-cases a location phrase and expands street suffixes.
func normalizeStreet(value string) string {
	value = CleanFragment(value)
	tokens := strings.Fields(value)
	if len(tokens) == 0 {
		return ""
	}
	for i, token := range tokens {
		lower := strings.ToLower(token)
		if repl, ok := streetSuffixes[lower]; ok {
			tokens[i] = repl
			continue
		}
		tokens[i] = capitalizeWord(lower)
	}
	return strings.Join(tokens, " ")
}

func capitalizeWord(word string) string {
	runes := []rune(strings.ToLower(word))
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
