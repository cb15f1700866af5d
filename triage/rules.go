package triage

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"dispatch_triage/incident"
)

//go:embed rules.yaml
var embeddedRules []byte

// KeywordRule fires its keyword when any trigger is present, or when every
// AllOf group has at least one trigger present.
type KeywordRule struct {
	Keyword incident.Keyword `yaml:"keyword"`
	Any     []string         `yaml:"any"`
	AllOf   [][]string       `yaml:"all_of"`
}

// OverrideRule is a canned low-priority answer for known non-emergencies.
type OverrideRule struct {
	Name       string             `yaml:"name"`
	Any        []string           `yaml:"any"`
	AllOf      [][]string         `yaml:"all_of"`
	Category   incident.Category  `yaml:"category"`
	Priority   incident.Priority  `yaml:"priority"`
	Severity   int                `yaml:"severity"`
	Confidence int                `yaml:"confidence"`
	Code       string             `yaml:"code"`
	Keywords   []incident.Keyword `yaml:"keywords"`
	Note       string             `yaml:"note"`
}

// MultiCategoryRule adds its categories when every group matches.
type MultiCategoryRule struct {
	Name       string              `yaml:"name"`
	Categories []incident.Category `yaml:"categories"`
	AllOf      [][]string          `yaml:"all_of"`
}

// RuleSet is the full trigger table.
type RuleSet struct {
	Keywords []KeywordRule `yaml:"keywords"`
	Urgency  struct {
		Immediate []string `yaml:"immediate"`
		Urgent    []string `yaml:"urgent"`
		Routine   []string `yaml:"routine"`
	} `yaml:"urgency"`
	Location struct {
		Residential []string `yaml:"residential"`
		Commercial  []string `yaml:"commercial"`
		Public      []string `yaml:"public"`
		Vehicle     []string `yaml:"vehicle"`
	} `yaml:"location"`
	Overrides     []OverrideRule      `yaml:"overrides"`
	MultiCategory []MultiCategoryRule `yaml:"multi_category"`
}

// DefaultRules parses the embedded trigger table.
func DefaultRules() (*RuleSet, error) {
	return ParseRules(embeddedRules)
}

// LoadRules reads a replacement trigger table.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rs, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rs, nil
}

// ParseRules decodes and validates a trigger table. Trigger phrases are
// lower-cased on load.
func ParseRules(data []byte) (*RuleSet, error) {
	if len(data) == 0 {
		return nil, errors.New("empty rules document")
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, err
	}
	if len(rs.Keywords) == 0 {
		return nil, errors.New("rules document has no keyword rows")
	}
	for i := range rs.Keywords {
		r := &rs.Keywords[i]
		if r.Keyword == "" || (len(r.Any) == 0 && len(r.AllOf) == 0) {
			return nil, fmt.Errorf("keyword row %d has no keyword or triggers", i)
		}
		r.Any = lowerAll(r.Any)
		r.AllOf = lowerGroups(r.AllOf)
	}
	for i := range rs.Overrides {
		o := &rs.Overrides[i]
		if !o.Category.Valid() || !o.Priority.Valid() {
			return nil, fmt.Errorf("override %q has an invalid category or priority", o.Name)
		}
		if incident.PriorityForSeverity(o.Severity) != o.Priority {
			return nil, fmt.Errorf("override %q severity %d does not fit priority %s", o.Name, o.Severity, o.Priority)
		}
		o.Any = lowerAll(o.Any)
		o.AllOf = lowerGroups(o.AllOf)
	}
	for i := range rs.MultiCategory {
		m := &rs.MultiCategory[i]
		if len(m.AllOf) == 0 || len(m.Categories) == 0 {
			return nil, fmt.Errorf("multi-category row %q is incomplete", m.Name)
		}
		m.AllOf = lowerGroups(m.AllOf)
	}
	rs.Urgency.Immediate = lowerAll(rs.Urgency.Immediate)
	rs.Urgency.Urgent = lowerAll(rs.Urgency.Urgent)
	rs.Urgency.Routine = lowerAll(rs.Urgency.Routine)
	rs.Location.Residential = lowerAll(rs.Location.Residential)
	rs.Location.Commercial = lowerAll(rs.Location.Commercial)
	rs.Location.Public = lowerAll(rs.Location.Public)
	rs.Location.Vehicle = lowerAll(rs.Location.Vehicle)
	return &rs, nil
}

func (r KeywordRule) matches(lower string) bool {
	if containsAny(lower, r.Any...) {
		return true
	}
	return len(r.AllOf) > 0 && allGroups(lower, r.AllOf)
}

func (r MultiCategoryRule) matches(lower string) bool {
	return allGroups(lower, r.AllOf)
}

type compiledOverride struct {
	rule  OverrideRule
	any   []*regexp.Regexp
	allOf [][]*regexp.Regexp
}

func compileOverride(o OverrideRule) compiledOverride {
	c := compiledOverride{rule: o, any: wordPatterns(o.Any)}
	for _, group := range o.AllOf {
		c.allOf = append(c.allOf, wordPatterns(group))
	}
	return c
}

func (c compiledOverride) matches(lower string) bool {
	for _, re := range c.any {
		if re.MatchString(lower) {
			return true
		}
	}
	if len(c.allOf) == 0 {
		return false
	}
	for _, group := range c.allOf {
		hit := false
		for _, re := range group {
			if re.MatchString(lower) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

func wordPatterns(phrases []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(p)+`s?\b`))
	}
	return out
}

func containsAny(text string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func allGroups(text string, groups [][]string) bool {
	for _, g := range groups {
		if !containsAny(text, g...) {
			return false
		}
	}
	return true
}

func countHits(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lowerGroups(in [][]string) [][]string {
	out := make([][]string, 0, len(in))
	for _, g := range in {
		out = append(out, lowerAll(g))
	}
	return out
}
