// Package backfill classifies transcript files that arrived while the service
// was down, or in bulk from an archive directory.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ReportSuffix is appended to a transcript name for its rendered report.
const ReportSuffix = ".report.txt"

// Record is a transcript file and whether a report already exists for it.
type Record struct {
	Filename  string
	Path      string
	ModTime   time.Time
	SizeBytes int64
	Done      bool
}

// Summary captures backfill execution metrics.
type Summary struct {
	TotalCandidates  int `json:"total"`
	AlreadyProcessed int `json:"already_processed"`
	Unprocessed      int `json:"unprocessed"`
	Selected         int `json:"selected"`
	Succeeded        int `json:"succeeded"`
	Failed           int `json:"failed"`
}

// Handler processes one record.
type Handler func(ctx context.Context, rec Record) error

// ListTranscripts returns the .txt files in dir, skipping rendered reports.
// Records whose report already exists in outDir are marked Done.
func ListTranscripts(dir, outDir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var out []Record
	for _, entry := range entries {
		name := entry.Name()
		lower := strings.ToLower(name)
		if entry.IsDir() || filepath.Ext(lower) != ".txt" || strings.HasSuffix(lower, ReportSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		rec := Record{
			Filename:  name,
			Path:      filepath.Join(dir, name),
			ModTime:   info.ModTime(),
			SizeBytes: info.Size(),
		}
		if outDir != "" {
			if _, err := os.Stat(ReportPath(outDir, name)); err == nil {
				rec.Done = true
			}
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

// ReportPath is where the report for a transcript is written.
func ReportPath(outDir, filename string) string {
	return filepath.Join(outDir, strings.TrimSuffix(filename, filepath.Ext(filename))+ReportSuffix)
}

// SelectPending returns up to limit records, newest first, that have no report yet.
// A limit of zero or less selects all of them.
func SelectPending(records []Record, limit int) ([]Record, Summary) {
	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ModTime.After(sorted[j].ModTime)
	})

	summary := Summary{TotalCandidates: len(sorted)}
	unprocessed := make([]Record, 0, len(sorted))
	for _, r := range sorted {
		if r.Done {
			summary.AlreadyProcessed++
			continue
		}
		unprocessed = append(unprocessed, r)
	}

	summary.Unprocessed = len(unprocessed)
	if limit > 0 && limit < summary.Unprocessed {
		unprocessed = unprocessed[:limit]
	}
	summary.Selected = len(unprocessed)
	return unprocessed, summary
}

// Run hands each selected record to handle with at most parallel in flight.
// Handler failures are counted and logged; only cancellation aborts the run.
func Run(ctx context.Context, records []Record, limit, parallel int, handle Handler, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if parallel <= 0 {
		parallel = 1
	}
	selected, summary := SelectPending(records, limit)

	var ok, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, rec := range selected {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := handle(gctx, rec); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				failed.Add(1)
				logger.Warn("backfill record failed", "file", rec.Filename, "error", err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	summary.Succeeded = int(ok.Load())
	summary.Failed = int(failed.Load())

	logger.Info("backfill summary",
		"total", summary.TotalCandidates,
		"unprocessed", summary.Unprocessed,
		"selected", summary.Selected,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"already_processed", summary.AlreadyProcessed)
	return summary, err
}
