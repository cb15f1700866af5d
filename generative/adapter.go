// Package generative wraps an optional Ollama-compatible backend that can
// refine engine assessments. Every failure degrades to the engine's answer.
package generative

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"dispatch_triage/config"
	"dispatch_triage/formatting"
	"dispatch_triage/incident"
	"dispatch_triage/triage"
)

const maxQuestions = 3

// Source tells which path produced a Result.
type Source int

const (
	SourceEngine Source = iota
	SourceGenerative
)

func (s Source) String() string {
	if s == SourceGenerative {
		return "Generative analysis"
	}
	return "Rule engine"
}

// Narrative is the human-readable material shown alongside an assessment.
type Narrative struct {
	UrgentBrief string             `json:"urgentBrief"`
	Summary     formatting.Summary `json:"summary"`
	Questions   []string           `json:"questions"`
}

// Result is the outcome of Resolve.
type Result struct {
	Source     Source              `json:"-"`
	Assessment incident.Assessment `json:"assessment"`
	Narrative  Narrative           `json:"narrative"`
}

// Recorder receives one outcome per generation attempt.
type Recorder interface {
	RecordGenerative(ok bool)
}

// Adapter owns the backend client and its availability flag.
type Adapter struct {
	client    *Client
	prompts   config.PromptConfig
	timeout   time.Duration
	enabled   bool
	available atomic.Bool
	logger    *slog.Logger
	rec       Recorder
	now       func() time.Time
}

// New builds an adapter. The backend starts unavailable until Probe succeeds.
func New(cfg config.GenerativeConfig, prompts config.PromptConfig, logger *slog.Logger, rec Recorder) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout()
	return &Adapter{
		client:  NewClient(&http.Client{Timeout: timeout + time.Second}, cfg.BaseURL, cfg.Model),
		prompts: prompts,
		timeout: timeout,
		enabled: cfg.Enabled,
		logger:  logger,
		rec:     rec,
		now:     time.Now,
	}
}

// Enabled reports whether the backend is configured at all.
func (a *Adapter) Enabled() bool { return a.enabled }

// Available reports the result of the most recent probe or call.
func (a *Adapter) Available() bool { return a.enabled && a.available.Load() }

// Probe checks the backend and updates the availability flag.
func (a *Adapter) Probe(ctx context.Context) bool {
	if !a.enabled {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	err := a.client.Probe(ctx)
	ok := err == nil
	if prev := a.available.Swap(ok); prev != ok {
		if ok {
			a.logger.Info("generative backend available", "model", a.client.Model())
		} else {
			a.logger.Warn("generative backend unavailable", "error", err)
		}
	}
	return ok
}

// Monitor re-probes the backend every interval until ctx is cancelled.
func (a *Adapter) Monitor(ctx context.Context, interval time.Duration) {
	if !a.enabled || interval <= 0 {
		return
	}
	a.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Probe(ctx)
		}
	}
}

// TryGenerate asks the backend to analyze transcript, passing the engine's
// assessment as context. It returns nil when the backend is disabled or
// unavailable, times out, or replies with something unusable.
func (a *Adapter) TryGenerate(ctx context.Context, transcript string, base incident.Assessment) *Reply {
	if !a.Available() || strings.TrimSpace(transcript) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	opts := Options{Temperature: a.prompts.Temperature, TopP: a.prompts.TopP}
	prompt := a.prompts.Render(transcript, promptContext(base))
	content, err := a.client.Generate(ctx, prompt, opts)
	if err != nil {
		a.available.Store(false)
		a.logger.Warn("generative request failed, using rule engine", "error", err)
		a.record(false)
		return nil
	}
	reply, err := parseReply(content)
	if err != nil {
		a.logger.Debug("generative reply unusable", "error", err)
		a.record(false)
		return nil
	}
	a.record(true)
	return reply
}

// Resolve produces the final assessment and narrative for transcript, starting
// from the engine's base assessment. Non-emergency overrides are never sent to
// the backend.
func (a *Adapter) Resolve(ctx context.Context, transcript string, base incident.Assessment) Result {
	var reply *Reply
	if !triage.IsNonEmergency(base) {
		reply = a.TryGenerate(ctx, transcript, base)
	}
	return a.assemble(transcript, base, reply)
}

// promptContext is the part of an assessment the backend is asked to confirm
// or correct.
func promptContext(a incident.Assessment) string {
	b, err := json.Marshal(struct {
		Category         incident.Category   `json:"category"`
		Priority         incident.Priority   `json:"priority"`
		Severity         int                 `json:"severity"`
		Confidence       int                 `json:"confidence"`
		StandardizedCode string              `json:"standardizedCode"`
		Keywords         []incident.Keyword  `json:"keywords"`
		Categories       []incident.Category `json:"categories,omitempty"`
	}{a.Category, a.Priority, a.Severity, a.Confidence, a.StandardizedCode, a.Keywords, a.Categories})
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (a *Adapter) assemble(transcript string, base incident.Assessment, reply *Reply) Result {
	if reply == nil {
		return EngineResult(transcript, base, a.now())
	}
	merged := Merge(base, reply)
	n := fallbackNarrative(transcript, merged, a.now())
	if brief := strings.TrimSpace(reply.UrgentBrief); brief != "" {
		n.UrgentBrief = brief
	}
	if reply.Summary != nil {
		n.Summary = fillSummary(*reply.Summary, n.Summary)
	}
	if qs := cleanList(reply.Questions); len(qs) > 0 {
		if len(qs) > maxQuestions {
			qs = qs[:maxQuestions]
		}
		n.Questions = qs
	}
	return Result{Source: SourceGenerative, Assessment: merged, Narrative: n}
}

// EngineResult wraps an engine assessment with formatter-built narrative.
func EngineResult(transcript string, base incident.Assessment, now time.Time) Result {
	return Result{
		Source:     SourceEngine,
		Assessment: base.Clone(),
		Narrative:  fallbackNarrative(transcript, base, now),
	}
}

func fallbackNarrative(transcript string, a incident.Assessment, now time.Time) Narrative {
	return Narrative{
		UrgentBrief: formatting.FormatBrief(a),
		Summary:     formatting.ExtractSummary(transcript, now),
		Questions:   formatting.FormatQuestions(a),
	}
}

func fillSummary(got, fallback formatting.Summary) formatting.Summary {
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return formatting.Summary{
		Who:      pick(got.Who, fallback.Who),
		What:     pick(got.What, fallback.What),
		Where:    pick(got.Where, fallback.Where),
		When:     pick(got.When, fallback.When),
		Injuries: pick(got.Injuries, fallback.Injuries),
		Suspects: pick(got.Suspects, fallback.Suspects),
	}
}

func (a *Adapter) record(ok bool) {
	if a.rec != nil {
		a.rec.RecordGenerative(ok)
	}
}
