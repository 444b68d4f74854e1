package mqtt

import (
	"context"
	"log/slog"
	"time"

	"cloudpico-station/internal/snapshot"
)

const bucketQueueSize = 16

// Sink is what the Publisher needs from a Client.
type Sink interface {
	Connect(ctx context.Context) error
	PublishTelemetry(Telemetry) error
	PublishBucket(BucketNotice) error
	PublishHealth(StationHealth) error
	Disconnect()
}

type SnapshotReader interface {
	Read() snapshot.Snapshot
}

type Clock interface {
	Now() time.Time
}

// Publisher sends telemetry every interval and forwards bucket notices
// queued by NotifyBucket. Publish failures are logged and never stop the
// loop.
type Publisher struct {
	sink     Sink
	store    SnapshotReader
	clock    Clock
	interval time.Duration
	logger   *slog.Logger

	buckets chan BucketNotice
	seq     uint64
	started time.Time
}

func NewPublisher(sink Sink, store SnapshotReader, clock Clock, interval time.Duration, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		sink:     sink,
		store:    store,
		clock:    clock,
		interval: interval,
		logger:   logger.With("component", "publisher"),
		buckets:  make(chan BucketNotice, bucketQueueSize),
		started:  clock.Now(),
	}
}

// NotifyBucket queues a bucket notice without blocking; when the queue is
// full the notice is dropped. Its signature matches the sampler's bucket
// callback.
func (p *Publisher) NotifyBucket(path string, at time.Time, snap snapshot.Snapshot) {
	select {
	case p.buckets <- NewBucketNotice(path, at, snap):
	default:
		p.logger.Warn("bucket notice dropped, queue full", "path", path)
	}
}

func (p *Publisher) Run(ctx context.Context) error {
	if err := p.sink.Connect(ctx); err != nil {
		return err
	}
	defer p.sink.Disconnect()

	p.health(true)

	tick := time.NewTicker(p.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			p.health(false)
			return ctx.Err()
		case b := <-p.buckets:
			if err := p.sink.PublishBucket(b); err != nil {
				p.logger.Warn("bucket notice not published", "path", b.Path, "error", err)
			}
		case <-tick.C:
			p.telemetry()
		}
	}
}

func (p *Publisher) telemetry() {
	p.seq++
	now := p.clock.Now()
	if err := p.sink.PublishTelemetry(NewTelemetry(p.store.Read(), now, p.seq)); err != nil {
		p.logger.Warn("telemetry not published", "seq", p.seq, "error", err)
		return
	}
	// Keep the retained health fresh alongside telemetry.
	if p.seq%30 == 0 {
		p.health(true)
	}
}

func (p *Publisher) health(ok bool) {
	now := p.clock.Now()
	h := StationHealth{LastSeen: now, Healthy: ok, Uptime: now.Sub(p.started).Seconds()}
	if err := p.sink.PublishHealth(h); err != nil {
		p.logger.Warn("health not published", "healthy", ok, "error", err)
	}
}
