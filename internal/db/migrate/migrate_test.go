package migrate

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"cloudpico-station/internal/db"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"0001_samples.sql", "0001", "samples", true},
		{"0012_add_index.sql", "0012", "add_index", true},
		{"1_short.sql", "", "", false},
		{"0001_samples.txt", "", "", false},
		{"README.md", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, n, ok := parseMigrationFilename(tt.in)
			if v != tt.wantVersion || n != tt.wantName || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.in, v, n, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}

func TestRun_embeddedIsIdempotent(t *testing.T) {
	conn, err := db.Open(":memory:", quiet())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer func() { _ = conn.Close() }()
	ctx := context.Background()

	n, err := Run(ctx, conn, quiet())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n == 0 {
		t.Fatal("no migrations applied on a fresh database")
	}

	var idx int
	if err := conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_samples_taken_at'`).Scan(&idx); err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Errorf("samples index missing")
	}

	again, err := Run(ctx, conn, quiet())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again != 0 {
		t.Errorf("second Run applied %d migrations, want 0", again)
	}
}

func TestRun_ordersAndStopsOnFailure(t *testing.T) {
	conn, err := db.Open(":memory:", quiet())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer func() { _ = conn.Close() }()

	fsys := fstest.MapFS{
		"sql/0002_second.sql": {Data: []byte(`INSERT INTO things (id) VALUES (1);`)},
		"sql/0001_first.sql":  {Data: []byte(`CREATE TABLE things (id INTEGER PRIMARY KEY);`)},
		"sql/0003_broken.sql": {Data: []byte(`INSERT INTO nowhere VALUES (1);`)},
		"sql/notes.txt":       {Data: []byte(`ignored`)},
	}

	n, err := run(context.Background(), conn, fsys, quiet())
	if err == nil {
		t.Fatal("expected error from broken migration")
	}
	if n != 2 {
		t.Errorf("applied = %d, want 2", n)
	}

	var versions int
	if err := conn.QueryRow(`SELECT count(*) FROM schema_migrations`).Scan(&versions); err != nil {
		t.Fatal(err)
	}
	if versions != 2 {
		t.Errorf("recorded versions = %d, want 2", versions)
	}
}
