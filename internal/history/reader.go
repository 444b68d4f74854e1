// Package history reads the aggregate series files shown on the dashboard
// charts. Each file holds one "epoch,temperature,humidity,pressure,wind"
// record per line.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a series file does not exist.
var ErrNotFound = errors.New("series file not found")

const labelLayout = "2006-01-02 15:04"

type Series struct {
	Labels       []string  `json:"labels"`
	Temperatures []float64 `json:"temperatures"`
	Humidities   []float64 `json:"humidities"`
	Pressures    []float64 `json:"pressures"`
	WindSpeeds   []float64 `json:"wind_speeds"`
}

func (s Series) Len() int {
	return len(s.Labels)
}

// Window is one of the fixed chart ranges and the file it is read from.
type Window struct {
	Key  string
	File string
	Span time.Duration
}

// Windows lists the chart ranges in display order.
var Windows = []Window{
	{Key: "24h", File: "data_24h.txt", Span: 24 * time.Hour},
	{Key: "7d", File: "data_7d.txt", Span: 7 * 24 * time.Hour},
	{Key: "30d", File: "data_30d.txt", Span: 30 * 24 * time.Hour},
	{Key: "90d", File: "data_90d.txt", Span: 90 * 24 * time.Hour},
}

// LoadSeries reads path in the local time zone.
func LoadSeries(path string) (Series, error) {
	return loadSeries(path, time.Local)
}

func loadSeries(path string, loc *time.Location) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Series{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return Series{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	s, err := Parse(f, loc)
	if err != nil {
		return Series{}, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

// Parse reads records from r in file order. Lines without exactly five
// fields, or with fields that are not finite numbers, are skipped.
func Parse(r io.Reader, loc *time.Location) (Series, error) {
	var s Series
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		parts := strings.Split(strings.TrimSpace(sc.Text()), ",")
		if len(parts) != 5 {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			continue
		}
		var vals [4]float64
		ok := true
		for i := range vals {
			vals[i], err = strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 64)
			if err != nil || math.IsNaN(vals[i]) || math.IsInf(vals[i], 0) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		s.Labels = append(s.Labels, time.Unix(ts, 0).In(loc).Format(labelLayout))
		s.Temperatures = append(s.Temperatures, vals[0])
		s.Humidities = append(s.Humidities, vals[1])
		s.Pressures = append(s.Pressures, vals[2])
		s.WindSpeeds = append(s.WindSpeeds, vals[3])
	}
	return s, sc.Err()
}

// Reader loads every chart window from a data root.
type Reader struct {
	root   string
	loc    *time.Location
	logger *slog.Logger
}

func NewReader(root string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{root: root, loc: time.Local, logger: logger}
}

// LoadAll returns the series of each window keyed by Window.Key. A window
// whose file is missing or unreadable is left out.
func (r *Reader) LoadAll() map[string]Series {
	out := make(map[string]Series, len(Windows))
	for _, w := range Windows {
		s, err := loadSeries(filepath.Join(r.root, w.File), r.loc)
		if err != nil {
			r.logger.Warn("series unavailable", "window", w.Key, "error", err)
			continue
		}
		out[w.Key] = s
	}
	return out
}
