package job

import "context"

// Store is the job ledger. It is the only state shared across scheduled
// invocations, so every status transition must be atomic per job.
type Store interface {
	// Enqueue registers a source image. Re-enqueueing a known source is a
	// no-op; the bool reports whether a new job was created.
	Enqueue(ctx context.Context, source string) (*ImageJob, bool, error)
	Get(ctx context.Context, id string) (*ImageJob, error)
	List(ctx context.Context) ([]*ImageJob, error)

	// Runnable returns jobs eligible for this invocation: pending, or
	// failed without a permanent classification.
	Runnable(ctx context.Context) ([]*ImageJob, error)

	// Claim moves a runnable job to processing. Returns false when the job
	// is no longer runnable (done, permanently failed, or already claimed
	// by an overlapping run).
	Claim(ctx context.Context, id string) (bool, error)

	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, permanent bool, message string) error

	Close() error
}
