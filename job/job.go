package job

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// LayerKind names one derived artifact of a segmented image.
type LayerKind string

const (
	LayerSubject    LayerKind = "subject"
	LayerBackground LayerKind = "background"
	LayerMask       LayerKind = "mask"
)

// Kinds is the fixed layer set every job must produce. A job is done only
// when all of them are uploaded; anything less is a failure.
func Kinds() []LayerKind {
	return []LayerKind{LayerSubject, LayerBackground, LayerMask}
}

// LayerKey is the deterministic storage key for one layer of one job.
func LayerKey(jobID string, kind LayerKind) string {
	return fmt.Sprintf("%s/%s.png", jobID, kind)
}

var ErrNotFound = errors.New("job not found")

// ImageJob tracks one source image through the pipeline.
type ImageJob struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	Permanent bool      `json:"permanent"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
