// Package reference loads the static call-type tables used by the triage engine:
// the standardized keyword-to-code table, the regional call-type taxonomies and
// the response-time targets.
package reference

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"dispatch_triage/incident"
)

//go:embed tables.yaml
var embeddedTables []byte

var (
	ErrUnknownRegion = errors.New("unknown region")
	ErrUnknownCode   = errors.New("unknown call type code")
)

// Standardized maps a keyword onto a category, priority and national code.
type Standardized struct {
	Category incident.Category `yaml:"category" json:"category"`
	Priority incident.Priority `yaml:"priority" json:"priority"`
	Code     string            `yaml:"code" json:"code"`
}

// Standard describes a national call-classification code.
type Standard struct {
	Code        string `yaml:"-" json:"code"`
	Description string `yaml:"description" json:"description"`
	Response    string `yaml:"response" json:"response"`
}

// Entry is one regional call type.
type Entry struct {
	Code        string            `yaml:"code" json:"code"`
	Category    incident.Category `yaml:"category" json:"category"`
	Priority    incident.Priority `yaml:"priority" json:"priority"`
	Severity    int               `yaml:"severity" json:"severity"`
	Description string            `yaml:"description" json:"description"`
	Letter      string            `yaml:"letter,omitempty" json:"letter,omitempty"`
	Keywords    []string          `yaml:"keywords,omitempty" json:"-"`
}

// SeverityLevel is a regional severity code with its response expectation.
type SeverityLevel struct {
	Level    int               `yaml:"level" json:"level"`
	Priority incident.Priority `yaml:"priority" json:"priority"`
	Response string            `yaml:"response" json:"response"`
}

// Letter is a regional priority letter.
type Letter struct {
	Priority incident.Priority `yaml:"priority" json:"priority"`
	Response string            `yaml:"response" json:"response"`
	Minutes  int               `yaml:"minutes" json:"minutes"`
	Severity int               `yaml:"severity" json:"severity"`
}

// Region is one regional taxonomy.
type Region struct {
	Name           string            `yaml:"name" json:"name"`
	Label          string            `yaml:"label" json:"label"`
	Unit           string            `yaml:"unit" json:"unit"`
	Confidence     int               `yaml:"confidence" json:"confidence"`
	SeverityLevels []SeverityLevel   `yaml:"severity_levels,omitempty" json:"severityLevels,omitempty"`
	Letters        map[string]Letter `yaml:"letters,omitempty" json:"letters,omitempty"`
	Entries        []Entry           `yaml:"entries" json:"entries"`
}

type tablesFile struct {
	Standardized struct {
		Default  Standardized                      `yaml:"default"`
		Keywords map[incident.Keyword]Standardized `yaml:"keywords"`
	} `yaml:"standardized"`
	Standards       map[string]Standard `yaml:"standards"`
	ResponseTargets struct {
		Default incident.ResponseTarget                       `yaml:"default"`
		High    map[incident.Category]incident.ResponseTarget `yaml:"High"`
		Medium  map[incident.Category]incident.ResponseTarget `yaml:"Medium"`
		Low     map[incident.Category]incident.ResponseTarget `yaml:"Low"`
	} `yaml:"response_targets"`
	Regions []Region `yaml:"regions"`
}

// Dataset is the immutable set of reference tables. Share one instance across
// engines; none of its methods mutate it.
type Dataset struct {
	fallback      Standardized
	standardized  map[incident.Keyword]Standardized
	standards     map[string]Standard
	targets       map[incident.Priority]map[incident.Category]incident.ResponseTarget
	defaultTarget incident.ResponseTarget
	regions       []Region
}

// Default parses the embedded tables.
func Default() (*Dataset, error) {
	return Parse(embeddedTables)
}

// MustDefault is Default for package-level wiring and tests.
func MustDefault() *Dataset {
	ds, err := Default()
	if err != nil {
		panic(fmt.Sprintf("reference: embedded tables invalid: %v", err))
	}
	return ds
}

// Parse decodes and validates a tables document.
func Parse(data []byte) (*Dataset, error) {
	if len(data) == 0 {
		return nil, errors.New("empty reference tables")
	}
	var raw tablesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	ds := &Dataset{
		fallback:      raw.Standardized.Default,
		standardized:  raw.Standardized.Keywords,
		standards:     make(map[string]Standard, len(raw.Standards)),
		defaultTarget: raw.ResponseTargets.Default,
		targets: map[incident.Priority]map[incident.Category]incident.ResponseTarget{
			incident.High:   raw.ResponseTargets.High,
			incident.Medium: raw.ResponseTargets.Medium,
			incident.Low:    raw.ResponseTargets.Low,
		},
		regions: raw.Regions,
	}
	for code, std := range raw.Standards {
		std.Code = code
		ds.standards[code] = std
	}
	if err := ds.validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (d *Dataset) validate() error {
	if !d.fallback.Category.Valid() || !d.fallback.Priority.Valid() {
		return errors.New("standardized default entry is incomplete")
	}
	for kw, entry := range d.standardized {
		if !entry.Category.Valid() || !entry.Priority.Valid() || entry.Code == "" {
			return fmt.Errorf("standardized entry %s is incomplete", kw)
		}
	}
	if d.defaultTarget.TargetMinutes <= 0 {
		return errors.New("response_targets.default must be positive")
	}
	seen := map[string]bool{}
	for _, region := range d.regions {
		name := strings.ToLower(region.Name)
		if name == "" || seen[name] {
			return fmt.Errorf("region name %q is empty or duplicated", region.Name)
		}
		seen[name] = true
		for _, e := range region.Entries {
			if e.Severity < 1 || e.Severity > 6 {
				return fmt.Errorf("%s/%s: severity %d out of range", region.Name, e.Code, e.Severity)
			}
			if incident.PriorityForSeverity(e.Severity) != e.Priority {
				return fmt.Errorf("%s/%s: severity %d does not fit priority %s", region.Name, e.Code, e.Severity, e.Priority)
			}
			if !e.Category.Valid() {
				return fmt.Errorf("%s/%s: unknown category %q", region.Name, e.Code, e.Category)
			}
		}
	}
	return nil
}

// Standardized returns the table row for a keyword.
func (d *Dataset) Standardized(k incident.Keyword) (Standardized, bool) {
	entry, ok := d.standardized[k]
	return entry, ok
}

// DefaultStandardized is used when no keyword fired or a lookup missed.
func (d *Dataset) DefaultStandardized() Standardized {
	return d.fallback
}

// Standard returns the description of a national code.
func (d *Dataset) Standard(code string) (Standard, bool) {
	std, ok := d.standards[strings.ToUpper(strings.TrimSpace(code))]
	return std, ok
}

// StandardFor maps a priority onto E, P1 or P2.
func (d *Dataset) StandardFor(p incident.Priority) Standard {
	code := "P2"
	switch p {
	case incident.High:
		code = "E"
	case incident.Medium:
		code = "P1"
	}
	std, _ := d.Standard(code)
	return std
}

// ResponseTarget looks up the priority x category target.
func (d *Dataset) ResponseTarget(p incident.Priority, c incident.Category) incident.ResponseTarget {
	if byCat, ok := d.targets[p]; ok {
		if target, ok := byCat[c]; ok {
			return target
		}
	}
	return d.defaultTarget
}

// Regions lists region names in table order.
func (d *Dataset) Regions() []string {
	out := make([]string, 0, len(d.regions))
	for _, r := range d.regions {
		out = append(out, r.Name)
	}
	return out
}

// Region returns a region by name (case-insensitive).
func (d *Dataset) Region(name string) (Region, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, r := range d.regions {
		if strings.ToLower(r.Name) == name {
			return r, true
		}
	}
	return Region{}, false
}

// Lookup finds a regional call type by code.
func (d *Dataset) Lookup(region, code string) (Entry, error) {
	r, ok := d.Region(region)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, e := range r.Entries {
		if strings.ToUpper(e.Code) == code {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s/%s", ErrUnknownCode, r.Name, code)
}

// SeverityLevel returns the region's description of a severity code.
func (r Region) SeverityLevel(level int) (SeverityLevel, bool) {
	for _, l := range r.SeverityLevels {
		if l.Level == level {
			return l, true
		}
	}
	return SeverityLevel{}, false
}

// LetterMinutes converts a priority letter into response minutes.
func (r Region) LetterMinutes(letter string) int {
	if l, ok := r.Letters[strings.ToUpper(letter)]; ok && l.Minutes > 0 {
		return l.Minutes
	}
	return 30
}
