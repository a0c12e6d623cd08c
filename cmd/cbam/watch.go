package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cbam-tracker/internal/app"
	"github.com/joseph-ayodele/cbam-tracker/internal/async"
	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
	"github.com/joseph-ayodele/cbam-tracker/internal/ingest"
)

type watchOptions struct {
	analyzeOptions
	initial  bool
	debounce time.Duration
	workers  int
	queue    int
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	o := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Analyze images as they are dropped into a directory",
		Long: `watch analyzes each new image under --dir and rewrites the report after
every file, so the report always covers everything seen since start. On
interrupt, images already queued are finished before exiting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, root, o)
		},
	}
	cmd.Flags().StringVar(&o.dir, "dir", "", "directory to watch (required)")
	cmd.Flags().StringVar(&o.out, "out", "", "output XLSX path (default: <dir>/../CBAM_Report_YYYYMMDD.xlsx)")
	cmd.Flags().StringVar(&o.company, "company", "", "company label on the report")
	cmd.Flags().StringVar(&o.user, "user", "cli", "username recorded in the history store")
	cmd.Flags().BoolVar(&o.skipHidden, "skip-hidden", true, "skip dot files and dot directories")
	cmd.Flags().BoolVar(&o.initial, "initial", false, "also analyze images already present")
	cmd.Flags().DurationVar(&o.debounce, "debounce", 2*time.Second, "wait this long after the last write before analyzing")
	cmd.Flags().IntVar(&o.workers, "workers", 2, "images analyzed concurrently")
	cmd.Flags().IntVar(&o.queue, "queue", 256, "images waiting for a worker before the watcher blocks")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func runWatch(cmd *cobra.Command, root *rootOptions, o *watchOptions) error {
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

	company := o.companyLabel()
	queue := async.NewWorkerQueue(func(jctx context.Context, job async.Job) ([]entity.LineItem, error) {
		up, err := ingest.LoadUpload(job.Path, cfg.LLM.MaxImageMB)
		if err != nil {
			return nil, err
		}
		return a.Analyzer.AnalyzeImage(jctx, up, company), nil
	}, logger, async.WithWorkers(o.workers), async.WithQueueSize(o.queue), async.WithProcessTimeout(cfg.LLM.Timeout+30*time.Second))

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{o.dir},
		InitialScan: o.initial,
		Debounce:    o.debounce,
		SkipHidden:  o.skipHidden,
		Logger:      logger,
	})
	if err != nil {
		queue.Shutdown(context.Background())
		return err
	}
	logger.Info("watch.start", "dir", o.dir, "workers", o.workers)

	// Enqueue may block on a full queue, so it runs apart from the loop that
	// drains results. The watcher closes events once ctx is done.
	go func() {
		for path := range events {
			if err := queue.Enqueue(ctx, async.Job{Path: path}); err != nil {
				logger.Warn("watch.enqueue.failed", "path", path, "error", err)
			}
		}
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		queue.Shutdown(sctx)
	}()

	batchID := uuid.New()
	var items []entity.LineItem
	done := ctx.Done()
	var deadline <-chan time.Time
	results := queue.Results()
	for {
		select {
		case <-done:
			done = nil
			timer := time.NewTimer(cfg.Server.ShutdownTimeout)
			defer timer.Stop()
			deadline = timer.C
		case <-deadline:
			logger.Warn("watch.stop.timeout", "lines", len(items))
			return nil
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("watch.error", "error", err)
		case r, ok := <-results:
			if !ok {
				logger.Info("watch.stop", "lines", len(items))
				return nil
			}
			if r.Err != nil {
				logger.Warn("ingest.file.skipped", "path", r.Job.Path, "error", r.Err)
				continue
			}
			items = append(items, r.Lines...)
			// ctx may already be cancelled while draining
			wctx := context.WithoutCancel(ctx)
			if err := a.History.Record(wctx, o.user, batchID, r.Lines); err != nil {
				logger.Warn("watch.history.record_failed", "error", err)
			}

			now := time.Now()
			out := o.outPath(now)
			if err := writeReport(wctx, a, company, now, items, out); err != nil {
				logger.Error("watch.report.failed", "error", err)
				continue
			}
			logger.Info("watch.report.updated", "file", r.Job.Path, "new_lines", len(r.Lines), "lines", len(items), "out", out)
		}
	}
}
