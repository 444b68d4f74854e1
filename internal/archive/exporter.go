package archive

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"

	"cloudpico-station/internal/history"
	"cloudpico-station/internal/metrics"
)

// DefaultMaxPoints caps the records written per window file.
const DefaultMaxPoints = 288

// Exporter writes the dashboard's aggregate files from the sample archive.
type Exporter struct {
	repo      Repository
	root      string
	maxPoints int
	logger    *slog.Logger
	metrics   *metrics.Collector
}

func NewExporter(repo Repository, root string, maxPoints int, logger *slog.Logger, m *metrics.Collector) *Exporter {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		repo:      repo,
		root:      root,
		maxPoints: maxPoints,
		logger:    logger.With("component", "exporter"),
		metrics:   m,
	}
}

// ExportAll rewrites every window file. One failing window does not stop the
// others; all failures are returned together.
func (e *Exporter) ExportAll(ctx context.Context, now time.Time) error {
	var result *multierror.Error
	for _, w := range history.Windows {
		if err := e.Export(ctx, w, now); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Export writes the samples taken within w.Span before now to w.File.
func (e *Exporter) Export(ctx context.Context, w history.Window, now time.Time) error {
	samples, err := e.repo.SamplesSince(ctx, now.Add(-w.Span))
	if err != nil {
		e.metrics.ArchiveExports.WithLabelValues(w.Key, "error").Inc()
		return fmt.Errorf("export %s: query: %w", w.Key, err)
	}
	samples = Downsample(samples, e.maxPoints)

	path := filepath.Join(e.root, w.File)
	if err := writeAtomic(path, samples); err != nil {
		e.metrics.ArchiveExports.WithLabelValues(w.Key, "error").Inc()
		return fmt.Errorf("export %s: %w", w.Key, err)
	}
	e.metrics.ArchiveExports.WithLabelValues(w.Key, "ok").Inc()
	e.logger.Debug("window exported", "window", w.Key, "path", path, "points", len(samples))
	return nil
}

// Downsample averages consecutive samples so at most maxPoints remain. Each
// group keeps the timestamp of its first sample.
func Downsample(samples []Sample, maxPoints int) []Sample {
	if maxPoints <= 0 || len(samples) <= maxPoints {
		return samples
	}
	size := (len(samples) + maxPoints - 1) / maxPoints
	out := make([]Sample, 0, maxPoints)
	for start := 0; start < len(samples); start += size {
		end := min(start+size, len(samples))
		group := samples[start:end]
		avg := Sample{TakenAt: group[0].TakenAt}
		for _, s := range group {
			avg.Temperature += s.Temperature
			avg.Humidity += s.Humidity
			avg.Pressure += s.Pressure
			avg.WindSpeed += s.WindSpeed
		}
		n := float64(len(group))
		avg.Temperature /= n
		avg.Humidity /= n
		avg.Pressure /= n
		avg.WindSpeed /= n
		out = append(out, avg)
	}
	return out
}

// FormatRecord renders one line of an aggregate file.
func FormatRecord(s Sample) string {
	return strconv.FormatInt(s.TakenAt.Unix(), 10) + "," +
		num(s.Temperature) + "," +
		num(s.Humidity) + "," +
		num(s.Pressure) + "," +
		num(s.WindSpeed)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// writeAtomic writes to a temp file next to path and renames it over path,
// so the dashboard never reads a half-written file.
func writeAtomic(path string, samples []Sample) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	bw := bufio.NewWriter(f)
	for _, s := range samples {
		if _, err := bw.WriteString(FormatRecord(s) + "\n"); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := f.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
