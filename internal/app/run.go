package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloudpico-station/internal/archive"
	"cloudpico-station/internal/bucket"
	"cloudpico-station/internal/clock"
	"cloudpico-station/internal/config"
	"cloudpico-station/internal/dashboard"
	"cloudpico-station/internal/db"
	"cloudpico-station/internal/db/migrate"
	"cloudpico-station/internal/history"
	"cloudpico-station/internal/httpapi"
	"cloudpico-station/internal/metrics"
	"cloudpico-station/internal/mqtt"
	"cloudpico-station/internal/netlink"
	"cloudpico-station/internal/sampler"
	"cloudpico-station/internal/snapshot"
	"cloudpico-station/internal/wind"
)

const shutdownTimeout = 10 * time.Second

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"station", cfg.StationID,
		"dataRoot", cfg.DataRoot,
		"dashboardAddr", cfg.DashboardAddr,
		"opsAddr", cfg.OpsAddr,
		"sensorDriver", cfg.SensorDriver,
		"networkJoiner", cfg.NetworkJoiner,
		"sampleInterval", cfg.SampleInterval,
		"archiveEnabled", cfg.ArchiveEnabled,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
	)
	logger := slog.Default()

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		return fmt.Errorf("data root %s: %w", cfg.DataRoot, err)
	}

	m := metrics.New()
	clk := clock.NewNTP(cfg.NTPServer, logger, m)
	store := snapshot.NewStore()
	buckets := bucket.NewStore(cfg.DataRoot, logger, m)

	dev, err := openDevices(cfg, clk.Now, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Error("device close", "error", err)
		}
	}()

	joiner, wifi, err := buildJoiner(cfg, dev, logger, m)
	if err != nil {
		return err
	}

	pulses := &wind.Counter{}
	smp := sampler.New(sampler.Options{
		Interval:     cfg.SampleInterval,
		ErrorBackoff: cfg.ErrorBackoff,
	}, store, dev.sensor, dev.display, buckets, pulses, clk, logger, m)

	var pinger httpapi.Pinger
	var recorder *archive.Recorder
	var exporter *archive.Exporter
	if cfg.ArchiveEnabled {
		dbConn, err := db.Open(cfg.SQLitePath, logger)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(dbConn); closeErr != nil {
				slog.Error("db close", "error", closeErr)
			}
		}()
		if _, err := migrate.Run(ctx, dbConn, logger); err != nil {
			return err
		}
		pinger = dbConn

		repo := archive.NewRepository(dbConn)
		recorder = archive.NewRecorder(repo, store, clk, logger, m)
		exporter = archive.NewExporter(repo, cfg.DataRoot, archive.DefaultMaxPoints, logger, m)
		smp.OnBucket(recorder.RecordBucket)
	}
	scheduler := newScheduler(cfg, buckets, recorder, exporter, clk, logger)

	var publisher *mqtt.Publisher
	if cfg.MQTTBroker != "" {
		client := mqtt.NewClient(mqtt.Options{
			Broker:    cfg.MQTTBroker,
			Port:      cfg.MQTTPort,
			ClientID:  cfg.MQTTClientID,
			StationID: cfg.StationID,
		}, logger, m)
		publisher = mqtt.NewPublisher(client, store, clk, cfg.MQTTPublishInterval, logger)
		smp.OnBucket(publisher.NotifyBucket)
	}

	dash := dashboard.NewServer(dashboard.Options{
		Addr:         cfg.DashboardAddr,
		SSID:         wifi.SSID,
		Password:     wifi.Password,
		Templates:    templateFS(cfg.DashboardTemplate),
		TemplateName: filepath.Base(cfg.DashboardTemplate),
	}, store, history.NewReader(cfg.DataRoot, logger), joiner, clk, logger, m)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("component stopped", "component", name, "error", err)
			}
		}()
	}

	spawn("anemometer", func(ctx context.Context) error { return dev.anemometer.OnEdge(ctx, pulses.Inc) })
	spawn("sampler", smp.Run)
	spawn("dashboard", dash.Run)
	if publisher != nil {
		spawn("publisher", publisher.Run)
	}
	if scheduler != nil {
		if err := scheduler.Start(runCtx); err != nil {
			cancel()
			wg.Wait()
			return err
		}
	}

	errCh := make(chan error, 1)
	var srv *http.Server
	if cfg.OpsAddr != "" {
		srv = httpapi.NewServer(cfg.OpsAddr, httpapi.NewMux(pinger, m.Handler(), logger), logger)
		go func() {
			slog.Info("ops http listening", "addr", cfg.OpsAddr)
			errCh <- srv.ListenAndServe()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
		srv = nil
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		slog.Info("ops http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, err)
		} else if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = errors.Join(runErr, err)
		}
	}

	slog.Info("stopping components")
	cancel()
	if scheduler != nil {
		scheduler.Stop()
	}
	wg.Wait()

	if runErr != nil {
		return runErr
	}
	return ctx.Err()
}

// newScheduler returns the background job scheduler: the archive jobs when
// the archive is enabled and the bucket sweep unless it is switched off. It
// returns nil when there is nothing to schedule.
func newScheduler(cfg config.Config, buckets *bucket.Store, recorder *archive.Recorder, exporter *archive.Exporter, clk archive.Clock, logger *slog.Logger) *archive.Scheduler {
	if recorder == nil && cfg.RetentionSchedule == "" {
		return nil
	}
	return archive.NewScheduler(archive.SchedulerOptions{
		SampleEvery:   cfg.ArchiveSampleInterval,
		ExportEvery:   cfg.ArchiveExportInterval,
		RetentionCron: cfg.RetentionSchedule,
		Sweep: func(now time.Time) {
			rep := buckets.Sweep(now)
			if rep.Err != nil {
				logger.Warn("scheduled sweep finished with errors", "error", rep.Err)
			}
		},
	}, recorder, exporter, clk, logger)
}

// buildJoiner returns the network joiner and the credentials it joins with.
// The credentials file is required only for nmcli.
func buildJoiner(cfg config.Config, dev *devices, logger *slog.Logger, m *metrics.Collector) (netlink.Joiner, config.WiFiConfig, error) {
	wifi, err := config.LoadWiFi(cfg.WiFiConfigPath)
	if cfg.NetworkJoiner == "nmcli" {
		if err != nil {
			return nil, config.WiFiConfig{}, err
		}
		return netlink.NewRetrying(netlink.NewNMCLI(cfg.WiFiInterface), dev.led, logger, m), wifi, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("ignoring wifi config", "path", cfg.WiFiConfigPath, "error", err)
	}
	return netlink.NewRetrying(netlink.NewHost(), dev.led, logger, m), wifi, nil
}

// templateFS serves the page template from its own directory so edits on
// the card show up on the next request.
func templateFS(path string) fs.FS {
	return os.DirFS(filepath.Dir(path))
}
