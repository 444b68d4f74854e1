// Package bucket persists hourly snapshot summaries in a
// year/month/day directory tree and prunes that tree by age.
package bucket

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloudpico-station/internal/metrics"
	"cloudpico-station/internal/snapshot"
)

// Store serializes writes and sweeps, so a sweep never removes a directory a
// concurrent write has just created.
type Store struct {
	mu      sync.Mutex
	root    string
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewStore returns a store rooted at root. A nil logger falls back to
// slog.Default().
func NewStore(root string, logger *slog.Logger, m *metrics.Collector) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger.With("component", "bucket"), metrics: m}
}

func (s *Store) Root() string {
	return s.root
}

// WriteHourly writes the summary of snap into the bucket for the hour
// containing t and returns the file path. Missing directories are created;
// a second write in the same hour replaces the file.
func (s *Store) WriteHourly(t time.Time, snap snapshot.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := Path(s.root, t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.metrics.BucketWrites.WithLabelValues("error").Inc()
		return "", fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(Format(snap)), 0o644); err != nil {
		s.metrics.BucketWrites.WithLabelValues("error").Inc()
		return "", fmt.Errorf("write bucket %s: %w", path, err)
	}
	s.metrics.BucketWrites.WithLabelValues("ok").Inc()
	s.logger.Info("bucket written", "path", path)
	return path, nil
}

// Format renders the four-line bucket body. The "average" is the current
// value at flush time.
func Format(snap snapshot.Snapshot) string {
	c, e := snap.Current, snap.Extrema
	var b strings.Builder
	fmt.Fprintf(&b, "Avg Temp: %sC, Min Temp: %sC, Max Temp: %sC\n",
		num(c.Temperature), num(e.Temperature.Min), num(e.Temperature.Max))
	fmt.Fprintf(&b, "Avg Hum: %s%%, Min Hum: %s%%, Max Hum: %s%%\n",
		num(c.Humidity), num(e.Humidity.Min), num(e.Humidity.Max))
	fmt.Fprintf(&b, "Avg Press: %shPa, Min Press: %shPa, Max Press: %shPa\n",
		num(c.Pressure), num(e.Pressure.Min), num(e.Pressure.Max))
	fmt.Fprintf(&b, "Avg Wind Speed: %s m/s, Min Wind Speed: %s m/s, Max Wind Speed: %s m/s\n",
		num(c.WindSpeed), num(e.WindSpeed.Min), num(e.WindSpeed.Max))
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
