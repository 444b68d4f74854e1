package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudpico-station/internal/archive"
	"cloudpico-station/internal/bucket"
	"cloudpico-station/internal/config"
	"cloudpico-station/internal/db"
	"cloudpico-station/internal/db/migrate"
	"cloudpico-station/internal/logging"
	"cloudpico-station/internal/metrics"
	"cloudpico-station/internal/snapshot"
)

const (
	appName = "stationctl"
	usage   = `usage: %s <command>
  migrate        apply pending archive migrations
  export         rewrite the chart series files from the archive
  sweep          prune the bucket tree now
  write-bucket   write the current hour's bucket from the last hour of samples
  latest-bucket  print the most recent recorded hourly bucket
`
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(1)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg, version, appName))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, cmd string) error {
	m := metrics.New()
	now := time.Now()

	switch cmd {
	case "sweep":
		rep := bucket.NewStore(cfg.DataRoot, slog.Default(), m).Sweep(now)
		fmt.Printf("sweep done: %d files, %d dirs deleted\n", rep.FilesDeleted, rep.DirsDeleted)
		return rep.Err
	case "migrate", "export", "write-bucket", "latest-bucket":
	default:
		return fmt.Errorf("unknown command (run without arguments for usage)")
	}

	conn, err := db.Open(cfg.SQLitePath, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(conn); closeErr != nil {
			slog.Error("db close", "err", closeErr)
		}
	}()

	n, err := migrate.Run(ctx, conn, slog.Default())
	if err != nil {
		return err
	}
	switch cmd {
	case "migrate":
		fmt.Printf("migrations applied: %d\n", n)
		return nil
	case "export":
		return export(ctx, conn, cfg, m, now)
	case "write-bucket":
		return writeBucket(ctx, conn, cfg, m, now)
	default:
		return latestBucket(ctx, conn)
	}
}

func export(ctx context.Context, conn *sql.DB, cfg config.Config, m *metrics.Collector, now time.Time) error {
	repo := archive.NewRepository(conn)
	exp := archive.NewExporter(repo, cfg.DataRoot, archive.DefaultMaxPoints, slog.Default(), m)
	if err := exp.ExportAll(ctx, now); err != nil {
		return err
	}
	fmt.Printf("series written to %s\n", cfg.DataRoot)
	return nil
}

// writeBucket replays the last hour of archived samples into a snapshot so
// the bucket carries that hour's extrema.
func writeBucket(ctx context.Context, conn *sql.DB, cfg config.Config, m *metrics.Collector, now time.Time) error {
	repo := archive.NewRepository(conn)
	samples, err := repo.SamplesSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("no samples in the last hour")
	}

	store := snapshot.NewStore()
	for _, s := range samples {
		store.Update(s.Reading)
	}
	snap := store.Read()

	path, err := bucket.NewStore(cfg.DataRoot, slog.Default(), m).WriteHourly(now, snap)
	if err != nil {
		return err
	}
	if err := repo.RecordBucket(ctx, path, now); err != nil {
		return err
	}
	fmt.Printf("bucket written: %s (%d samples)\n", path, len(samples))
	return nil
}

func latestBucket(ctx context.Context, conn *sql.DB) error {
	b, ok, err := archive.NewRepository(conn).LatestBucket(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("no buckets recorded")
		return nil
	}
	fmt.Printf("%s\t%s\n", b.WrittenAt.Format(time.RFC3339), b.Path)
	return nil
}
