package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cbam-tracker/internal/app"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/export"
	"github.com/joseph-ayodele/cbam-tracker/internal/ingest"
)

type analyzeOptions struct {
	dir        string
	out        string
	company    string
	user       string
	skipHidden bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	o := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze every invoice image in a directory into an XLSX report",
		Long: `analyze walks --dir for .jpg, .jpeg, .png and .webp files, sends each to the
configured vision model, prices the extracted items against the reference
table and writes one report. Images that cannot be analyzed appear as
"Analysis Failed" lines rather than stopping the run.`,
		Example: "  cbam analyze --dir ./invoices --company ACME --out ./CBAM_Report.xlsx",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, root, o)
		},
	}
	cmd.Flags().StringVar(&o.dir, "dir", "", "directory of invoice images (required)")
	cmd.Flags().StringVar(&o.out, "out", "", "output XLSX path (default: <dir>/../CBAM_Report_YYYYMMDD.xlsx)")
	cmd.Flags().StringVar(&o.company, "company", "", "company label on the report (default: upper-cased --user)")
	cmd.Flags().StringVar(&o.user, "user", "cli", "username recorded in the history store")
	cmd.Flags().BoolVar(&o.skipHidden, "skip-hidden", true, "skip dot files and dot directories")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func (o *analyzeOptions) companyLabel() string {
	if c := strings.TrimSpace(o.company); c != "" {
		return strings.ToUpper(c)
	}
	return strings.ToUpper(strings.TrimSpace(o.user))
}

func (o *analyzeOptions) outPath(now time.Time) string {
	if strings.TrimSpace(o.out) != "" {
		return o.out
	}
	return filepath.Join(filepath.Dir(filepath.Clean(o.dir)), export.ReportFileName(now))
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, o *analyzeOptions) error {
	ctx := cmd.Context()
	cfg, logger, err := root.load()
	if err != nil {
		return err
	}
	if err := requireAPIKey(cfg); err != nil {
		return err
	}

	a, err := app.Build(ctx, cfg, app.Options{Extractor: true, History: true}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	uploads, results, stats, err := ingest.ScanDirectory(ctx, o.dir, o.skipHidden, cfg.LLM.MaxImageMB)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != "" {
			logger.Warn("ingest.file.skipped", "path", r.Path, "error", r.Err)
		}
	}
	logger.Info("ingest.scan.done", "dir", o.dir, "scanned", stats.Scanned, "matched", stats.Matched, "loaded", stats.Loaded, "failed", stats.Failed)
	if len(uploads) == 0 {
		return fmt.Errorf("no images found in %s", o.dir)
	}

	company := o.companyLabel()
	items := a.Analyzer.AnalyzeBatch(ctx, uploads, company, func(done, total int) {
		logger.Info("analyze.progress", "done", done, "total", total)
	})

	if err := a.History.Record(ctx, o.user, uuid.New(), items); err != nil {
		logger.Warn("analyze.history.record_failed", "error", err)
	}

	now := time.Now()
	out := o.outPath(now)
	if err := writeReport(ctx, a, company, now, items, out); err != nil {
		return err
	}
	printSummary(cmd, items, out)
	return nil
}

func writeReport(ctx context.Context, a *app.App, company string, now time.Time, items []entity.LineItem, out string) error {
	b, err := a.Reports.BuildReport(ctx, export.ReportInput{Company: company, Date: now, Items: items})
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("no items to export")
	}
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(out, b, 0o644)
}

func printSummary(cmd *cobra.Command, items []entity.LineItem, out string) {
	sum := export.Summarize(items)
	failed := 0
	for _, it := range items {
		if it.Failed {
			failed++
		}
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "lines:        %d (%d failed)\n", sum.Items, failed)
	fmt.Fprintf(w, "weight:       %.3f t\n", sum.WeightTonnes)
	fmt.Fprintf(w, "tax (KRW):    %d\n", sum.TaxLocal)
	fmt.Fprintf(w, "tax (EUR):    %.2f\n", sum.TaxReference)
	fmt.Fprintf(w, "report:       %s\n", out)
}
