// Package clock provides the station's wall clock. NTP corrects it with an
// offset instead of setting the system time.
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beevik/ntp"

	"cloudpico-station/internal/metrics"
)

const defaultQueryTimeout = 5 * time.Second

type Clock interface {
	Now() time.Time
}

// System is the host clock as-is.
type System struct{}

func (System) Now() time.Time { return time.Now() }

type queryFunc func(host string, opts ntp.QueryOptions) (*ntp.Response, error)

// NTP is a Clock that adds the offset measured by the last successful Sync.
type NTP struct {
	server  string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Collector

	query queryFunc
	base  func() time.Time

	mu     sync.RWMutex
	offset time.Duration
	synced time.Time
}

func NewNTP(server string, logger *slog.Logger, m *metrics.Collector) *NTP {
	if logger == nil {
		logger = slog.Default()
	}
	return &NTP{
		server:  server,
		timeout: defaultQueryTimeout,
		logger:  logger.With("component", "clock"),
		metrics: m,
		query:   ntp.QueryWithOptions,
		base:    time.Now,
	}
}

func (c *NTP) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base().Add(c.offset)
}

// Offset returns the correction currently applied.
func (c *NTP) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// LastSync returns when the offset was last updated; zero before the first
// successful Sync.
func (c *NTP) LastSync() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Sync queries the server once. On failure the previous offset stays.
func (c *NTP) Sync(ctx context.Context) error {
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := c.query(c.server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("ntp query %s: %w", c.server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("ntp response from %s: %w", c.server, err)
	}

	c.mu.Lock()
	c.offset = resp.ClockOffset
	c.synced = c.base()
	c.mu.Unlock()

	c.metrics.ClockOffset.Set(resp.ClockOffset.Seconds())
	c.logger.Info("time synced", "server", c.server, "offset", resp.ClockOffset, "stratum", resp.Stratum)
	return nil
}
