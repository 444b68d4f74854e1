package bucket

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"cloudpico-station/internal/metrics"
	"cloudpico-station/internal/snapshot"
)

func newTestStore(t *testing.T) (*Store, *metrics.Collector) {
	t.Helper()
	m := metrics.New()
	return NewStore(t.TempDir(), nil, m), m
}

func TestRelPath(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"afternoon", time.Date(2024, 3, 5, 14, 37, 12, 0, time.Local), "/2024/03/05/2024-03-05-14"},
		{"midnight", time.Date(2024, 12, 31, 0, 0, 0, 0, time.Local), "/2024/12/31/2024-12-31-00"},
		{"last hour", time.Date(2023, 1, 9, 23, 59, 59, 0, time.Local), "/2023/01/09/2023-01-09-23"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelPath(tt.at); got != tt.want {
				t.Errorf("RelPath(%v) = %q; want %q", tt.at, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.Local)
	tests := []struct {
		year, month int
		want        Tier
	}{
		{2022, 12, TierAncient},
		{2023, 6, TierOlder},
		{2023, 12, TierOlder},
		{2024, 4, TierOlder},
		{2024, 5, TierPrevious},
		{2024, 6, TierCurrent},
		{2024, 7, TierCurrent},
	}
	for _, tt := range tests {
		if got := Classify(tt.year, tt.month, now); got != tt.want {
			t.Errorf("Classify(%d, %d) = %v; want %v", tt.year, tt.month, got, tt.want)
		}
	}

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local)
	if got := Classify(2023, 12, jan); got != TierOlder {
		t.Errorf("Classify(2023-12) in January = %v; want older", got)
	}
}

func TestWriteHourly(t *testing.T) {
	s, m := newTestStore(t)
	at := time.Date(2024, 3, 5, 14, 10, 0, 0, time.Local)

	snap := snapshot.Snapshot{
		Current: snapshot.Reading{Temperature: 21.5, Humidity: 40, Pressure: 1013.25, WindSpeed: 0.175},
		Extrema: snapshot.Extrema{
			Temperature: snapshot.Range{Min: 19, Max: 22.75},
			Humidity:    snapshot.Range{Min: 38, Max: 45.5},
			Pressure:    snapshot.Range{Min: 1012, Max: 1014},
			WindSpeed:   snapshot.Range{Min: 0, Max: 1.4},
		},
	}

	path, err := s.WriteHourly(at, snap)
	if err != nil {
		t.Fatalf("WriteHourly: %v", err)
	}
	want := filepath.Join(s.Root(), "2024", "03", "05", "2024-03-05-14")
	if path != want {
		t.Errorf("path = %q; want %q", path, want)
	}

	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read bucket: %v", err)
	}
	wantBody := "Avg Temp: 21.5C, Min Temp: 19C, Max Temp: 22.75C\n" +
		"Avg Hum: 40%, Min Hum: 38%, Max Hum: 45.5%\n" +
		"Avg Press: 1013.25hPa, Min Press: 1012hPa, Max Press: 1014hPa\n" +
		"Avg Wind Speed: 0.175 m/s, Min Wind Speed: 0 m/s, Max Wind Speed: 1.4 m/s\n"
	if string(body) != wantBody {
		t.Errorf("body =\n%s\nwant\n%s", body, wantBody)
	}

	t.Run("second write in the hour overwrites", func(t *testing.T) {
		snap.Current.Temperature = 23
		path2, err := s.WriteHourly(at.Add(40*time.Minute), snap)
		if err != nil {
			t.Fatalf("WriteHourly: %v", err)
		}
		if path2 != path {
			t.Fatalf("path = %q; want %q", path2, path)
		}
		entries, err := os.ReadDir(filepath.Dir(path))
		if err != nil {
			t.Fatalf("ReadDir: %v", err)
		}
		if len(entries) != 1 {
			t.Errorf("day dir has %d files; want 1", len(entries))
		}
		body, _ := os.ReadFile(path)
		if !strings.HasPrefix(string(body), "Avg Temp: 23C") {
			t.Errorf("body not replaced: %q", body)
		}
	})

	if got := testutil.ToFloat64(m.BucketWrites.WithLabelValues("ok")); got != 2 {
		t.Errorf("bucket_writes_total{ok} = %v; want 2", got)
	}
}

func TestFormat_sentinels(t *testing.T) {
	snap := snapshot.Snapshot{Extrema: snapshot.Extrema{
		Temperature: snapshot.Range{Min: math.Inf(1), Max: math.Inf(-1)},
	}}
	got := Format(snap)
	if !strings.HasPrefix(got, "Avg Temp: 0C, Min Temp: +InfC, Max Temp: -InfC\n") {
		t.Errorf("Format() first line = %q", strings.SplitN(got, "\n", 2)[0])
	}
}

func TestWriteHourly_rootIsFile(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "sd")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	s := NewStore(root, nil, m)
	if _, err := s.WriteHourly(time.Now(), snapshot.Snapshot{}); err == nil {
		t.Fatal("WriteHourly() = nil error; want mkdir failure")
	}
	if got := testutil.ToFloat64(m.BucketWrites.WithLabelValues("error")); got != 1 {
		t.Errorf("bucket_writes_total{error} = %v; want 1", got)
	}
}
