// Package archive keeps a SQLite log of periodic samples and turns it into the
// aggregate series files the dashboard charts read.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloudpico-station/internal/history"
	"cloudpico-station/internal/metrics"
	"cloudpico-station/internal/snapshot"
)

// keepFor is how long samples stay in the archive: the longest chart window
// plus a day of slack.
var keepFor = history.Windows[len(history.Windows)-1].Span + 24*time.Hour

type Clock interface {
	Now() time.Time
}

type SnapshotReader interface {
	Read() snapshot.Snapshot
}

// Recorder copies the current reading into the archive.
type Recorder struct {
	repo    Repository
	store   SnapshotReader
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Collector
}

func NewRecorder(repo Repository, store SnapshotReader, clock Clock, logger *slog.Logger, m *metrics.Collector) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:    repo,
		store:   store,
		clock:   clock,
		logger:  logger.With("component", "archive"),
		metrics: m,
	}
}

// Record stores the current reading. Nothing is stored before the sampler
// has produced its first reading.
func (r *Recorder) Record(ctx context.Context) error {
	snap := r.store.Read()
	if snap.Updates == 0 {
		r.logger.Debug("no reading yet, skipping sample")
		return nil
	}
	if err := r.repo.InsertSample(ctx, r.clock.Now(), snap.Current); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	r.metrics.ArchiveSamples.Inc()
	return nil
}

// Prune drops samples older than any chart window needs.
func (r *Recorder) Prune(ctx context.Context) (int64, error) {
	n, err := r.repo.DeleteSamplesBefore(ctx, r.clock.Now().Add(-keepFor))
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	if n > 0 {
		r.logger.Info("archive pruned", "deleted", n)
	}
	return n, nil
}

// RecordBucket notes an hourly bucket write. Its signature matches the
// sampler's bucket callback.
func (r *Recorder) RecordBucket(path string, at time.Time, _ snapshot.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := r.repo.RecordBucket(ctx, path, at); err != nil {
		r.logger.Warn("record bucket write", "path", path, "error", err)
	}
}
