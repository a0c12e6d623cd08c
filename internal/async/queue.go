package async

import (
	"context"
	"time"

	"github.com/joseph-ayodele/cbam-tracker/internal/entity"
)

// Job is one image waiting to be analyzed.
type Job struct {
	Path        string
	SubmittedAt time.Time
	TraceID     string
}

// Result carries the lines produced for a job. Err is set only when the job
// never reached the analyzer (unreadable file, queue timeout).
type Result struct {
	Job     Job
	Lines   []entity.LineItem
	Err     error
	Elapsed time.Duration
}

// Handler analyzes one job.
type Handler func(ctx context.Context, job Job) ([]entity.LineItem, error)

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
