package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const jobTimeout = 30 * time.Second

type SchedulerOptions struct {
	SampleEvery time.Duration
	ExportEvery time.Duration
	// RetentionCron, when set, runs Sweep on that cron schedule.
	RetentionCron string
	Sweep         func(now time.Time)
}

// Scheduler runs the station's background jobs on gocron. The sample and
// export jobs need a recorder and an exporter; with both nil only the
// retention job runs.
type Scheduler struct {
	scheduler *gocron.Scheduler
	recorder  *Recorder
	exporter  *Exporter
	clock     Clock
	opts      SchedulerOptions
	logger    *slog.Logger
}

func NewScheduler(opts SchedulerOptions, recorder *Recorder, exporter *Exporter, clock Clock, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		recorder:  recorder,
		exporter:  exporter,
		clock:     clock,
		opts:      opts,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start registers the jobs and starts the scheduler in the background. The
// scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.recorder != nil {
		if _, err := s.scheduler.Every(s.opts.SampleEvery).Tag("sample").Do(s.job("sample", s.sample)); err != nil {
			return fmt.Errorf("schedule sample job: %w", err)
		}
	}
	if s.recorder != nil && s.exporter != nil {
		if _, err := s.scheduler.Every(s.opts.ExportEvery).Tag("export").Do(s.job("export", s.export)); err != nil {
			return fmt.Errorf("schedule export job: %w", err)
		}
	}
	if s.opts.RetentionCron != "" && s.opts.Sweep != nil {
		if _, err := s.scheduler.Cron(s.opts.RetentionCron).Tag("retention").Do(s.job("retention", s.retention)); err != nil {
			return fmt.Errorf("schedule retention job %q: %w", s.opts.RetentionCron, err)
		}
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "jobs", s.Jobs(),
		"sample_every", s.opts.SampleEvery,
		"export_every", s.opts.ExportEvery,
		"retention_cron", s.opts.RetentionCron,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Jobs returns the tags of the registered jobs.
func (s *Scheduler) Jobs() []string {
	var tags []string
	for _, j := range s.scheduler.Jobs() {
		tags = append(tags, j.Tags()...)
	}
	return tags
}

func (s *Scheduler) Stop() {
	if s.scheduler.IsRunning() {
		s.scheduler.Stop()
		s.logger.Info("scheduler stopped")
	}
}

func (s *Scheduler) job(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
		}
	}
}

func (s *Scheduler) sample(ctx context.Context) error {
	return s.recorder.Record(ctx)
}

func (s *Scheduler) export(ctx context.Context) error {
	if _, err := s.recorder.Prune(ctx); err != nil {
		return err
	}
	return s.exporter.ExportAll(ctx, s.clock.Now())
}

func (s *Scheduler) retention(context.Context) error {
	s.opts.Sweep(s.clock.Now())
	return nil
}
