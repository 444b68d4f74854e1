package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"time"

	"cloudpico-station/internal/snapshot"
)

//go:embed sql/insert-sample.sql
var insertSampleSQL string

//go:embed sql/samples-since.sql
var samplesSinceSQL string

//go:embed sql/delete-samples-before.sql
var deleteSamplesBeforeSQL string

//go:embed sql/record-bucket.sql
var recordBucketSQL string

//go:embed sql/latest-bucket.sql
var latestBucketSQL string

// Sample is one archived reading.
type Sample struct {
	TakenAt time.Time
	snapshot.Reading
}

// BucketWrite records an hourly bucket file the sampler wrote.
type BucketWrite struct {
	Path      string
	WrittenAt time.Time
}

type Repository interface {
	InsertSample(ctx context.Context, at time.Time, r snapshot.Reading) error
	SamplesSince(ctx context.Context, since time.Time) ([]Sample, error)
	DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error)
	RecordBucket(ctx context.Context, path string, at time.Time) error
	// LatestBucket returns ok=false when no bucket was recorded yet.
	LatestBucket(ctx context.Context) (BucketWrite, bool, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repositoryImpl{db: db}
}

// Timestamps are stored as unix seconds, the same epoch the aggregate files
// use.
func (r *repositoryImpl) InsertSample(ctx context.Context, at time.Time, rd snapshot.Reading) error {
	_, err := r.db.ExecContext(ctx, insertSampleSQL,
		at.Unix(), rd.Temperature, rd.Humidity, rd.Pressure, rd.WindSpeed)
	return err
}

func (r *repositoryImpl) SamplesSince(ctx context.Context, since time.Time) ([]Sample, error) {
	rows, err := r.db.QueryContext(ctx, samplesSinceSQL, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			s  Sample
			ts int64
		)
		if err := rows.Scan(&ts, &s.Temperature, &s.Humidity, &s.Pressure, &s.WindSpeed); err != nil {
			return nil, err
		}
		s.TakenAt = time.Unix(ts, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) DeleteSamplesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteSamplesBeforeSQL, before.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repositoryImpl) RecordBucket(ctx context.Context, path string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, recordBucketSQL, path, at.Unix())
	return err
}

func (r *repositoryImpl) LatestBucket(ctx context.Context) (BucketWrite, bool, error) {
	var (
		bw BucketWrite
		ts int64
	)
	err := r.db.QueryRowContext(ctx, latestBucketSQL).Scan(&bw.Path, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return BucketWrite{}, false, nil
	}
	if err != nil {
		return BucketWrite{}, false, err
	}
	bw.WrittenAt = time.Unix(ts, 0).UTC()
	return bw, true, nil
}
