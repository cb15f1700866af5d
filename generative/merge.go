package generative

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"dispatch_triage/formatting"
	"dispatch_triage/incident"
	"dispatch_triage/triage"
)

const (
	maxConfidence = 95
	maxKeywords   = 3
)

// Reply is the JSON object the backend is prompted to produce. It mirrors the
// assessment shape at the top level; the nested classification object is still
// read when a top-level field is missing. Every field is optional and absent or
// malformed values leave the engine's answer in place.
type Reply struct {
	Category           string              `json:"category"`
	Priority           string              `json:"priority"`
	Confidence         *float64            `json:"confidence"`
	Severity           *float64            `json:"severity"`
	StandardizedCode   string              `json:"standardizedCode"`
	ResponseTimeTarget json.RawMessage     `json:"responseTimeTarget"`
	UrgentBrief        string              `json:"urgentBrief"`
	Summary            *formatting.Summary `json:"summary"`
	Questions          []string            `json:"questions"`
	Classification     ReplyClassification `json:"classification"`
	Routing            []string            `json:"routing"`
	Keywords           []string            `json:"keywords"`
}

// ReplyClassification holds the backend's category guess.
type ReplyClassification struct {
	Category   string   `json:"category"`
	Priority   string   `json:"priority"`
	Confidence *float64 `json:"confidence"`
}

func (r *Reply) category() (incident.Category, bool) {
	if c, ok := incident.ParseCategory(r.Category); ok {
		return c, true
	}
	return incident.ParseCategory(r.Classification.Category)
}

func (r *Reply) priority() (incident.Priority, bool) {
	if p, ok := incident.ParsePriority(r.Priority); ok {
		return p, true
	}
	return incident.ParsePriority(r.Classification.Priority)
}

func (r *Reply) confidence() *float64 {
	if r.Confidence != nil {
		return r.Confidence
	}
	return r.Classification.Confidence
}

var (
	errNoJSONObject = errors.New("no JSON object in response")
	errEmptyReply   = errors.New("reply has no usable fields")
)

func parseReply(content string) (*Reply, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, errNoJSONObject
	}
	var r Reply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, err
	}
	if !r.usable() {
		return nil, errEmptyReply
	}
	return &r, nil
}

// usable reports whether the reply carries anything Merge or the narrative
// would apply.
func (r *Reply) usable() bool {
	_, hasCategory := r.category()
	_, hasPriority := r.priority()
	return hasCategory || hasPriority || r.confidence() != nil ||
		strings.TrimSpace(r.UrgentBrief) != "" || r.Summary != nil ||
		len(cleanList(r.Questions)) > 0 || len(cleanList(r.Routing)) > 0 ||
		len(normalizeKeywords(r.Keywords)) > 0
}

// Merge combines an engine assessment with a backend reply. The reply wins for
// category, priority, confidence, routing and keywords when it supplies a
// valid value. The engine always keeps standardizedCode, responseTimeTarget and
// severity, even when the reply names its own; severity is only moved into the
// merged priority's band. A nil reply returns a copy of base.
func Merge(base incident.Assessment, r *Reply) incident.Assessment {
	out := base.Clone()
	if r == nil {
		return out
	}
	if c, ok := r.category(); ok {
		out.Category = c
	}
	if p, ok := r.priority(); ok {
		out.Priority = p
	}
	if conf := r.confidence(); conf != nil {
		out.Confidence = normalizeConfidence(*conf)
	}
	if routing := cleanList(r.Routing); len(routing) > 0 {
		out.Routing = routing
	}
	if kws := normalizeKeywords(r.Keywords); len(kws) > 0 {
		out.Keywords = kws
	}
	out.Severity = incident.ClampSeverity(out.Priority, base.Severity)
	if len(out.Categories) > 0 {
		mc := triage.AlignPrimary(&incident.MultiCategory{Categories: out.Categories}, out.Category)
		out.Categories = mc.Categories
		out.PrimaryCategory = mc.PrimaryCategory
		out.SecondaryCategories = mc.SecondaryCategories
	}
	out.Source = SourceGenerative.String()
	return out
}

// normalizeConfidence accepts either a 0-1 fraction or a 0-100 percentage.
func normalizeConfidence(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v <= 1 {
		v *= 100
	}
	return min(int(math.Round(v)), maxConfidence)
}

func normalizeKeywords(in []string) []incident.Keyword {
	seen := make(map[incident.Keyword]bool)
	var out []incident.Keyword
	for _, raw := range in {
		k := strings.ToUpper(strings.TrimSpace(raw))
		k = strings.Join(strings.Fields(k), "_")
		if k == "" || seen[incident.Keyword(k)] {
			continue
		}
		seen[incident.Keyword(k)] = true
		out = append(out, incident.Keyword(k))
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// extractJSONObject returns the first balanced {...} object in input, or "".
func extractJSONObject(input string) string {
	start := strings.Index(input, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(input); i++ {
		ch := input[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
		}
	}
	return ""
}
