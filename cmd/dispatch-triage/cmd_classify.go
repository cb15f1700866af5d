package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dispatch_triage/config"
	"dispatch_triage/formatting"
	"dispatch_triage/generative"
	"dispatch_triage/incident"
	"dispatch_triage/internal/app"
	"dispatch_triage/metrics"
	"dispatch_triage/triage"
)

type classifyOptions struct {
	file   string
	enrich bool
	format string
}

func newClassifyCmd(c *cli) *cobra.Command {
	opts := classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify one transcript from arguments, a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			raw, err := readTranscript(cmd.InOrStdin(), opts.file, args)
			if err != nil {
				return err
			}
			cl, err := newClassifier(cmd.Context(), c.cfg, opts.enrich)
			if err != nil {
				return err
			}
			entries, text := splitTranscript(raw, cl.now())
			res := cl.classify(cmd.Context(), text)
			return render(cmd.OutOrStdout(), opts.format, entries, text, res, cl.now())
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read the transcript from a file")
	cmd.Flags().BoolVar(&opts.enrich, "enrich", false, "refine the result with the generative backend")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format: text or json")
	return cmd
}

// classifier runs the engine and, when enabled, the generative refinement.
type classifier struct {
	engine  *triage.Engine
	adapter *generative.Adapter
	now     func() time.Time
}

func newClassifier(ctx context.Context, cfg config.Config, enrich bool) (*classifier, error) {
	engine, err := app.BuildEngine(cfg)
	if err != nil {
		return nil, err
	}
	cl := &classifier{engine: engine, now: time.Now}
	if enrich {
		cfg.Generative.Enabled = true
		cl.adapter = app.NewAdapter(cfg, metrics.New())
		cl.adapter.Probe(ctx)
	}
	return cl, nil
}

func (cl *classifier) classify(ctx context.Context, transcript string) generative.Result {
	base := cl.engine.Classify(transcript)
	if cl.adapter != nil {
		return cl.adapter.Resolve(ctx, transcript, base)
	}
	return generative.EngineResult(transcript, base, cl.now())
}

func readTranscript(stdin io.Reader, file string, args []string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", fmt.Errorf("pass either --file or text, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read transcript: %w", err)
		}
		return string(data), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
}

// splitTranscript treats each non-blank line as one captured fragment.
func splitTranscript(raw string, now time.Time) ([]formatting.TranscriptEntry, string) {
	var entries []formatting.TranscriptEntry
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		text := formatting.CleanFragment(line)
		if text == "" {
			continue
		}
		entries = append(entries, formatting.TranscriptEntry{Timestamp: now, Text: text})
		parts = append(parts, text)
	}
	return entries, formatting.JoinFragments(parts)
}

func checkFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown format %q: want text or json", format)
	}
}

type classifyOutput struct {
	Analysis   string                       `json:"analysisSource"`
	Assessment incident.Assessment          `json:"classification"`
	Narrative  generative.Narrative         `json:"narrative"`
	Script     string                       `json:"script"`
	Transcript []formatting.TranscriptEntry `json:"transcript"`
}

func render(w io.Writer, format string, entries []formatting.TranscriptEntry, text string, res generative.Result, now time.Time) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(classifyOutput{
			Analysis:   res.Source.String(),
			Assessment: res.Assessment,
			Narrative:  res.Narrative,
			Script:     formatting.FormatScript(text, res.Assessment),
			Transcript: entries,
		})
	}
	n := res.Narrative
	report := formatting.NewReport(now, entries, res.Assessment, n.UrgentBrief, n.Summary, n.Questions)
	_, err := fmt.Fprintf(w, "%s\nAnalysis: %s\n", formatting.BuildReport(report), res.Source)
	return err
}
