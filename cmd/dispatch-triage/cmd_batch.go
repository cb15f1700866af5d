package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dispatch_triage/backfill"
	"dispatch_triage/internal/logging"
)

type batchOptions struct {
	out      string
	limit    int
	parallel int
	enrich   bool
	format   string
}

func newBatchCmd(c *cli) *cobra.Command {
	opts := batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Classify every transcript in a directory and write one report per file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(opts.format); err != nil {
				return err
			}
			dir := args[0]
			if opts.out == "" {
				opts.out = dir
			}
			if opts.parallel <= 0 {
				opts.parallel = c.cfg.WorkerCount
			}
			if err := os.MkdirAll(opts.out, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			records, err := backfill.ListTranscripts(dir, opts.out)
			if err != nil {
				return err
			}
			cl, err := newClassifier(cmd.Context(), c.cfg, opts.enrich)
			if err != nil {
				return err
			}
			handle := func(ctx context.Context, rec backfill.Record) error {
				return writeReport(ctx, cl, rec, opts)
			}
			summary, err := backfill.Run(cmd.Context(), records, opts.limit, opts.parallel, handle, logging.New("batch"))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "directory for reports (default: the input directory)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "process at most this many transcripts, newest first (0 = all)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 0, "concurrent classifications (default: WORKER_COUNT)")
	cmd.Flags().BoolVar(&opts.enrich, "enrich", false, "refine results with the generative backend")
	cmd.Flags().StringVar(&opts.format, "format", "text", "report format: text or json")
	return cmd
}

func writeReport(ctx context.Context, cl *classifier, rec backfill.Record, opts batchOptions) error {
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", rec.Filename, err)
	}
	now := cl.now()
	entries, text := splitTranscript(string(data), now)
	if text == "" {
		return fmt.Errorf("%s: empty transcript", rec.Filename)
	}
	var buf bytes.Buffer
	if err := render(&buf, opts.format, entries, text, cl.classify(ctx, text), now); err != nil {
		return err
	}
	path := backfill.ReportPath(opts.out, rec.Filename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp, path)
}
