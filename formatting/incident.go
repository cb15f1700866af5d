package formatting

import (
	"fmt"
	"strings"
	"time"

	"dispatch_triage/incident"
)

// IncidentAlert is the human-facing view of a call used by webhooks.
type IncidentAlert struct {
	CallID     string
	CallerID   string
	Assessment incident.Assessment
	Brief      string
	Where      string
	Timestamp  time.Time
}

// FormatIncidentHeader renders a concise alert header such as
// "🚒 FIRE – High/E".
func FormatIncidentHeader(a incident.Assessment) string {
	headerParts := []string{formatCategoryPrefix(a.Category)}
	tier := string(a.Priority)
	if code := strings.TrimSpace(a.StandardizedCode); code != "" {
		tier += "/" + code
	}
	if tier != "" {
		headerParts = append(headerParts, tier)
	}
	return strings.Join(headerParts, " – ")
}

// BuildIncidentAlert constructs a chat-friendly alert body.
func BuildIncidentAlert(alert IncidentAlert) string {
	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	a := alert.Assessment

	brief := strings.TrimSpace(alert.Brief)
	if brief == "" {
		brief = FormatBrief(a)
	}
	where := strings.TrimSpace(alert.Where)
	if where == "" {
		where = unknownLocation
	}
	units := "None suggested"
	if len(a.Routing) > 0 {
		units = strings.Join(a.Routing, ", ")
	}
	caller := strings.TrimSpace(alert.CallerID)
	if caller == "" {
		caller = "Unknown caller"
	}

	lines := []string{
		FormatIncidentHeader(a),
		"",
		brief,
		fmt.Sprintf("📍 Location: %s", where),
		fmt.Sprintf("🚓 Units: %s", units),
		fmt.Sprintf("⏱️ Target: %d min (max %d min)", a.ResponseTimeTarget.TargetMinutes, a.ResponseTimeTarget.MaxMinutes),
		fmt.Sprintf("🕒 Time: %s", ts.Format("2006-01-02 15:04:05")),
		fmt.Sprintf("☎️ Caller: %s", caller),
	}
	return strings.Join(lines, "\n")
}

func formatCategoryPrefix(category incident.Category) string {
	switch category {
	case incident.Medical:
		return "🚑 MEDICAL"
	case incident.Fire:
		return "🚒 FIRE"
	case incident.Police:
		return "🚓 POLICE"
	default:
		return "🚨 INCIDENT"
	}
}
