package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chaos-io/layersplitter/inference"
	"github.com/chaos-io/layersplitter/job"
	"github.com/chaos-io/layersplitter/layer"
	"github.com/chaos-io/layersplitter/storage"
	"github.com/chaos-io/layersplitter/util"
)

// Runner drives one scheduled invocation: discover new images, then move
// every runnable job through segment → split → upload. Failures mark the
// job and move on; retry happens on the next invocation, never in-process.
type Runner struct {
	store     job.Store
	segmenter inference.Segmenter
	uploader  storage.Uploader
	log       *slog.Logger

	inboxDir string
	maxEdge  int

	mu sync.Mutex
}

// RunStats summarizes one invocation.
type RunStats struct {
	Discovered int `json:"discovered"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

func NewRunner(store job.Store, segmenter inference.Segmenter, uploader storage.Uploader,
	inboxDir string, maxEdge int, log *slog.Logger) *Runner {
	return &Runner{
		store:     store,
		segmenter: segmenter,
		uploader:  uploader,
		log:       log,
		inboxDir:  inboxDir,
		maxEdge:   maxEdge,
	}
}

// Run executes one invocation to completion. The scheduler already spaces
// invocations out, but a manual trigger can race a tick, so a second caller
// is turned away instead of overlapping.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	if !r.mu.TryLock() {
		r.log.Warn("run already in flight, skipping")
		return RunStats{}, nil
	}
	defer r.mu.Unlock()

	stats := RunStats{}

	discovered, err := r.discover(ctx)
	if err != nil {
		return stats, fmt.Errorf("discover inbox: %w", err)
	}
	stats.Discovered = discovered

	jobs, err := r.store.Runnable(ctx)
	if err != nil {
		return stats, fmt.Errorf("list runnable jobs: %w", err)
	}

	for _, j := range jobs {
		claimed, err := r.store.Claim(ctx, j.ID)
		if err != nil {
			return stats, fmt.Errorf("claim job %s: %w", j.ID, err)
		}
		if !claimed {
			stats.Skipped++
			continue
		}

		if err := r.process(ctx, j); err != nil {
			permanent := errors.Is(err, inference.ErrUnsupportedInput)
			if markErr := r.store.MarkFailed(ctx, j.ID, permanent, err.Error()); markErr != nil {
				return stats, markErr
			}
			stats.Failed++
			continue
		}

		if err := r.store.MarkDone(ctx, j.ID); err != nil {
			return stats, err
		}
		stats.Done++
	}

	r.log.Info("run complete",
		"discovered", stats.Discovered, "done", stats.Done,
		"failed", stats.Failed, "skipped", stats.Skipped)
	return stats, nil
}

// process moves one claimed job through the full pipeline. A job is done
// only when every layer is uploaded; a failure anywhere leaves nothing
// marked, and B2's idempotent overwrite absorbs re-uploads on retry.
func (r *Runner) process(ctx context.Context, j *job.ImageJob) error {
	r.log.Info("processing job", "job_id", j.ID, "source", j.Source, "attempt", j.Attempts+1)

	img, err := util.LoadImage(j.Source)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return fmt.Errorf("%w: %v", inference.ErrUnsupportedInput, err)
		}
		return fmt.Errorf("load source: %w", err)
	}

	img = layer.ResizeWithinMax(img, r.maxEdge)

	cutout, err := r.segmenter.Segment(ctx, img)
	if err != nil {
		return err
	}

	layers, err := layer.Split(img, cutout)
	if err != nil {
		return fmt.Errorf("split layers: %w", err)
	}

	for _, kind := range job.Kinds() {
		data, err := util.EncodePNG(layers[kind])
		if err != nil {
			return fmt.Errorf("encode %s layer: %w", kind, err)
		}
		if err := r.uploader.Upload(ctx, job.LayerKey(j.ID, kind), "image/png", data); err != nil {
			return err
		}
	}

	return nil
}

// discover walks the inbox directory and enqueues image files that the
// ledger hasn't seen. Already-known sources are no-ops.
func (r *Runner) discover(ctx context.Context) (int, error) {
	if r.inboxDir == "" {
		return 0, nil
	}
	if _, err := os.Stat(r.inboxDir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	created := 0
	err := filepath.WalkDir(r.inboxDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isImageFile(path) {
			return nil
		}

		_, isNew, err := r.store.Enqueue(ctx, path)
		if err != nil {
			return err
		}
		if isNew {
			created++
		}
		return nil
	})
	if err != nil {
		return created, err
	}
	return created, nil
}

func isImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
