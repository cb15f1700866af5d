package config

import "strings"

const (
	transcriptPlaceholder = "{{transcript}}"
	assessmentPlaceholder = "{{assessment}}"
)

// PromptConfig captures the prompt template and sampling options sent to the
// generative backend. The fields can be customized via the prompts: section of
// config.yaml (JSON is also accepted because it is a subset of YAML 1.2).
type PromptConfig struct {
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	TopP          float64 `json:"top_p" yaml:"top_p"`
	AnalyzePrompt string  `json:"analyze_prompt" yaml:"analyze_prompt"`
}

const (
	defaultTemperature = 0.7
	defaultTopP        = 0.9
)

// DefaultPromptConfig returns the baked-in prompt and sampling defaults.
func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		AnalyzePrompt: `You are an AI assistant for 911 dispatch. Analyze this emergency call transcript and provide a structured response in JSON format.

Transcript: "{{transcript}}"

The rule-based classifier already produced this assessment:
{{assessment}}

Confirm or correct it and return a JSON object with the following structure:
{
  "category": "Police/Fire/Medical",
  "priority": "High/Medium/Low",
  "confidence": 85,
  "urgentBrief": "One-line urgent summary with priority level [HIGH/MEDIUM/LOW]",
  "summary": {
    "who": "Who is involved (caller, witness, etc.)",
    "what": "What happened (type of incident)",
    "where": "Location if mentioned",
    "when": "Time reference if mentioned",
    "injuries": "Injury status",
    "suspects": "Suspect information if any"
  },
  "questions": [
    "Suggested follow-up question 1",
    "Suggested follow-up question 2",
    "Suggested follow-up question 3"
  ],
  "routing": [
    "Suggested unit 1",
    "Suggested unit 2"
  ],
  "keywords": ["UPPER_SNAKE_CASE incident keywords"]
}

Focus on emergency response needs. Be concise and actionable. Return ONLY the JSON object, no other text.`,
	}
}

// Render substitutes the transcript and the engine's assessment into the
// analyze template. Templates without an assessment slot simply omit it.
func (p PromptConfig) Render(transcript, assessment string) string {
	return strings.NewReplacer(
		transcriptPlaceholder, transcript,
		assessmentPlaceholder, assessment,
	).Replace(p.AnalyzePrompt)
}

// MergePromptConfig overlays non-empty fields onto the base config.
func MergePromptConfig(base PromptConfig, override PromptConfig) PromptConfig {
	if override.Temperature > 0 {
		base.Temperature = override.Temperature
	}
	if override.TopP > 0 && override.TopP <= 1 {
		base.TopP = override.TopP
	}
	if strings.TrimSpace(override.AnalyzePrompt) != "" {
		base.AnalyzePrompt = override.AnalyzePrompt
	}
	return base
}
