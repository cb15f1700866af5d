package formatting

import (
	"fmt"
	"strings"
	"time"

	"dispatch_triage/incident"
)

const entryLayout = "15:04:05"

// TranscriptEntry is one captured fragment.
type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Classification is the export view of an assessment.
type Classification struct {
	Category         incident.Category `json:"category"`
	Priority         incident.Priority `json:"priority"`
	Confidence       int               `json:"confidence"`
	StandardizedCode string            `json:"standardizedCode,omitempty"`
	Source           string            `json:"dataSource,omitempty"`
}

// Report is the incident export. JSON field names match the dispatcher
// console's export format.
type Report struct {
	Timestamp      time.Time         `json:"timestamp"`
	Transcript     []TranscriptEntry `json:"transcript"`
	UrgentBrief    string            `json:"urgentBrief"`
	Summary        Summary           `json:"summary"`
	Classification Classification    `json:"classification"`
	Routing        []string          `json:"routing"`
	Questions      []string          `json:"questions,omitempty"`
}

// NewReport assembles a report from the call state.
func NewReport(now time.Time, entries []TranscriptEntry, a incident.Assessment, brief string, summary Summary, questions []string) Report {
	return Report{
		Timestamp:   now,
		Transcript:  entries,
		UrgentBrief: brief,
		Summary:     summary,
		Classification: Classification{
			Category:         a.Category,
			Priority:         a.Priority,
			Confidence:       a.Confidence,
			StandardizedCode: a.StandardizedCode,
			Source:           a.Source,
		},
		Routing:   a.Routing,
		Questions: questions,
	}
}

// BuildReport renders the plain-text incident report.
func BuildReport(r Report) string {
	var b strings.Builder
	b.WriteString("DISPATCH AI INCIDENT REPORT\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n\n", r.Timestamp.Format(time.RFC3339)))

	b.WriteString("URGENT BRIEF:\n")
	b.WriteString(r.UrgentBrief + "\n\n")

	b.WriteString("INCIDENT SUMMARY:\n")
	b.WriteString(fmt.Sprintf("Who: %s\n", r.Summary.Who))
	b.WriteString(fmt.Sprintf("What: %s\n", r.Summary.What))
	b.WriteString(fmt.Sprintf("Where: %s\n", r.Summary.Where))
	b.WriteString(fmt.Sprintf("When: %s\n", r.Summary.When))
	b.WriteString(fmt.Sprintf("Injuries: %s\n", r.Summary.Injuries))
	b.WriteString(fmt.Sprintf("Suspects: %s\n\n", r.Summary.Suspects))

	b.WriteString("CLASSIFICATION:\n")
	b.WriteString(fmt.Sprintf("Category: %s\n", r.Classification.Category))
	b.WriteString(fmt.Sprintf("Priority: %s\n", r.Classification.Priority))
	b.WriteString(fmt.Sprintf("Confidence: %d%%\n\n", r.Classification.Confidence))

	b.WriteString("ROUTING SUGGESTIONS:\n")
	b.WriteString(strings.Join(r.Routing, ", ") + "\n\n")

	b.WriteString("TRANSCRIPT:\n")
	b.WriteString(FormatTranscript(r.Transcript))
	return b.String()
}

// FormatTranscript renders entries as "[hh:mm:ss] text" lines.
func FormatTranscript(entries []TranscriptEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s", e.Timestamp.Format(entryLayout), e.Text))
	}
	return strings.Join(lines, "\n")
}
