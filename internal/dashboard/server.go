// Package dashboard serves the station's single HTML page over a bare TCP
// listener, one connection at a time.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cloudpico-station/internal/history"
	"cloudpico-station/internal/metrics"
	"cloudpico-station/internal/snapshot"
)

const (
	requestBufSize    = 1024
	defaultMaxIdle    = time.Hour
	defaultRetryDelay = 5 * time.Second
	defaultIOTimeout  = 10 * time.Second
	failedToLoadPage  = "Failed to load page"
	statusOK          = "HTTP/1.1 200 OK"
	statusServerError = "HTTP/1.1 500 Internal Server Error"
	contentTypeHTML   = "text/html; charset=utf-8"
	contentTypeText   = "text/plain"
)

// Joiner brings the network link up and returns the station address. It
// retries until connected or ctx is done.
type Joiner interface {
	Join(ctx context.Context, ssid, password string) (string, error)
}

type Clock interface {
	Now() time.Time
}

// TimeSyncer is implemented by clocks that can resynchronise after a
// reconnect.
type TimeSyncer interface {
	Sync(ctx context.Context) error
}

// SeriesLoader provides the chart series for each history window.
type SeriesLoader interface {
	LoadAll() map[string]history.Series
}

type Options struct {
	Addr         string
	SSID         string
	Password     string
	Templates    fs.FS
	TemplateName string

	// MaxIdle is how long a listener may live before the next connection
	// forces a full reconnect. Defaults to one hour.
	MaxIdle    time.Duration
	RetryDelay time.Duration
	IOTimeout  time.Duration
}

type Server struct {
	opts    Options
	store   *snapshot.Store
	series  SeriesLoader
	joiner  Joiner
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Collector

	listen    func(network, addr string) (net.Listener, error)
	watermark time.Time
}

func NewServer(opts Options, store *snapshot.Store, series SeriesLoader, joiner Joiner, clock Clock, logger *slog.Logger, m *metrics.Collector) *Server {
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = defaultMaxIdle
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = defaultIOTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		opts:      opts,
		store:     store,
		series:    series,
		joiner:    joiner,
		clock:     clock,
		logger:    logger.With("component", "dashboard"),
		metrics:   m,
		listen:    net.Listen,
		watermark: clock.Now(),
	}
}

// Run joins the network, listens and serves until a stale connection forces
// a reconnect, then starts over after RetryDelay. It returns when ctx is done.
func (s *Server) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.metrics.Reconnects.Inc()
		if err := s.cycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("dashboard cycle failed", "error", err)
		}
		s.logger.Info("socket closed, retrying", "delay", s.opts.RetryDelay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.RetryDelay):
		}
	}
}

func (s *Server) cycle(ctx context.Context) error {
	ip, err := s.joiner.Join(ctx, s.opts.SSID, s.opts.Password)
	if err != nil {
		return fmt.Errorf("join network: %w", err)
	}
	s.logger.Info("network joined", "ip", ip)

	if syncer, ok := s.clock.(TimeSyncer); ok {
		if err := syncer.Sync(ctx); err != nil {
			s.logger.Warn("time sync failed", "error", err)
		}
	}

	ln, err := s.listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	defer ln.Close()
	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln one at a time. It returns nil when a
// connection arrives more than MaxIdle after the watermark, ctx.Err() on
// cancellation, or the accept error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}
		if reconnect := s.handle(conn); reconnect {
			return nil
		}
	}
}

// handle serves one connection and reports whether the listener must be
// torn down.
func (s *Server) handle(conn net.Conn) (reconnect bool) {
	defer conn.Close()
	log := s.logger.With("conn", uuid.NewString()[:8], "remote", conn.RemoteAddr().String())
	log.Debug("client connected")

	_ = conn.SetReadDeadline(time.Now().Add(s.opts.IOTimeout))
	buf := make([]byte, requestBufSize)
	if _, err := conn.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		log.Warn("read request failed", "error", err)
		s.metrics.Connections.WithLabelValues("error").Inc()
		return false
	}

	now := s.clock.Now()
	if now.Sub(s.watermark) > s.opts.MaxIdle {
		log.Info("listener expired, forcing reconnect", "since", s.watermark)
		s.watermark = now
		s.metrics.Connections.WithLabelValues("expired").Inc()
		return true
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.opts.IOTimeout))
	if _, err := conn.Write(s.response()); err != nil {
		log.Warn("write response failed", "error", err)
		s.metrics.Connections.WithLabelValues("error").Inc()
		return false
	}
	s.metrics.Connections.WithLabelValues("served").Inc()
	return false
}

func (s *Server) response() []byte {
	tmpl, err := s.loadTemplate()
	if err != nil {
		s.logger.Error("failed to load page template", "template", s.opts.TemplateName, "error", err)
		return buildResponse(statusServerError, contentTypeText, []byte(failedToLoadPage))
	}
	page := Render(tmpl, Dataset{
		Snapshot: s.store.Read(),
		Series:   s.series.LoadAll(),
	})
	return buildResponse(statusOK, contentTypeHTML, page)
}

func (s *Server) loadTemplate() ([]byte, error) {
	if s.opts.Templates == nil {
		return nil, fmt.Errorf("template %q: %w", s.opts.TemplateName, fs.ErrNotExist)
	}
	return fs.ReadFile(s.opts.Templates, s.opts.TemplateName)
}

func buildResponse(status, contentType string, body []byte) []byte {
	head := status + "\r\n" +
		"Content-Type: " + contentType + "\r\n" +
		"Content-Length: " + strconv.Itoa(len(body)) + "\r\n" +
		"Connection: close\r\n\r\n"
	return append([]byte(head), body...)
}
