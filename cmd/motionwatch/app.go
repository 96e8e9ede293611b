package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mikeyg42/motionwatch/internal/api"
	"github.com/mikeyg42/motionwatch/internal/camera"
	"github.com/mikeyg42/motionwatch/internal/config"
	"github.com/mikeyg42/motionwatch/internal/display"
	"github.com/mikeyg42/motionwatch/internal/events"
	"github.com/mikeyg42/motionwatch/internal/framestream"
	"github.com/mikeyg42/motionwatch/internal/metrics"
	"github.com/mikeyg42/motionwatch/internal/motion"
	"github.com/mikeyg42/motionwatch/internal/notification"
	"github.com/mikeyg42/motionwatch/internal/recorder"
	"github.com/mikeyg42/motionwatch/internal/validate"
	"github.com/mikeyg42/motionwatch/internal/worker"
)

// Application struct that holds all components
type Application struct {
	config    *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	notifier  notification.Notifier
	publisher *events.MQTTPublisher
	recorder  *recorder.Recorder

	captures []*camera.Capture
	workers  []*worker.Worker
	feeds    []display.Feed
	mjpeg    *display.MJPEG
	server   *api.Server
	started  bool
}

// NewApplication validates cfg and builds the components shared by every
// camera.
func NewApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if err := validate.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if err := camera.SetRTSPTransport(cfg.RTSPTransport); err != nil {
		return nil, fmt.Errorf("failed to set RTSP transport: %w", err)
	}

	app := &Application{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		recorder: recorder.New(cfg.Recording, logger),
	}
	if cfg.Metrics.Enabled {
		app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		app.metrics = metrics.New(app.registry)
	}

	notifier, err := notification.New(ctx, cfg.Notification, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	app.notifier = notifier

	if cfg.MQTT.Enabled {
		app.publisher = events.NewMQTTPublisher(cfg.MQTT, logger)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		// Auto-reconnect keeps retrying in the background.
		if err := app.publisher.Connect(connectCtx); err != nil {
			logger.Warn("MQTT broker not reachable yet", zap.Error(err))
		}
	}
	return app, nil
}

// Initialize opens every camera and builds its worker. A camera that cannot
// be opened is logged and skipped; it is an error only if none open.
func (app *Application) Initialize() error {
	cfg := app.config
	var failed []string

	for _, camCfg := range cfg.Cameras {
		capture, err := camera.Open(camCfg, cfg.Recording.DefaultFrameRate, app.logger)
		if err != nil {
			app.logger.Error("Failed to open camera, skipping it", zap.String("camera", camCfg.ID), zap.Error(err))
			failed = append(failed, camCfg.ID)
			continue
		}
		app.captures = append(app.captures, capture)

		detector, err := motion.NewDetector(cfg.Motion, camCfg.Scale)
		if err != nil {
			return fmt.Errorf("camera %s: %w", camCfg.ID, err)
		}

		slot := framestream.NewSlot()
		w := worker.New(worker.Deps{
			Source:    capture,
			Detector:  detector,
			Recorder:  app.recorder,
			Notifier:  app.notifier,
			Slot:      slot,
			Cooldown:  cfg.Cooldown,
			Publisher: app.eventPublisher(),
			Metrics:   app.metrics,
			Logger:    app.logger,
		})
		app.workers = append(app.workers, w)
		app.feeds = append(app.feeds, display.Feed{CameraID: camCfg.ID, Slot: slot})
	}

	if len(app.workers) == 0 {
		return fmt.Errorf("no camera could be opened (%d configured)", len(cfg.Cameras))
	}
	if len(failed) > 0 {
		app.logger.Warn("Running without some cameras", zap.Strings("failed", failed))
	}

	if cfg.Display.MJPEG {
		app.mjpeg = display.NewMJPEG(lo.Map(app.feeds, func(f display.Feed, _ int) string { return f.CameraID }), 0)
	}
	if cfg.Display.HTTPAddr != "" && (cfg.Display.MJPEG || cfg.Metrics.Enabled) {
		app.server = api.NewServer(app.serverOptions(), app.logger)
	}
	return nil
}

// eventPublisher keeps a nil *MQTTPublisher from becoming a non-nil
// interface value.
func (app *Application) eventPublisher() worker.EventPublisher {
	if app.publisher == nil {
		return nil
	}
	return app.publisher
}

func (app *Application) serverOptions() api.Options {
	opts := api.Options{
		Addr: app.config.Display.HTTPAddr,
		Status: func() []api.CameraStatus {
			return lo.Map(app.workers, func(w *worker.Worker, i int) api.CameraStatus {
				st := api.CameraStatus{ID: w.ID(), State: w.State().String(), Frames: app.feeds[i].Slot.Seq()}
				if app.mjpeg != nil {
					st.Stream = "/cameras/" + w.ID()
				}
				return st
			})
		},
	}
	if app.mjpeg != nil {
		opts.Streams = app.mjpeg.Handler
	}
	if app.config.Metrics.Enabled {
		opts.Metrics = metrics.Handler(app.registry)
		opts.MetricsPath = app.config.Metrics.Path
	}
	return opts
}

// Run starts every worker and renders until ctx ends or the quit key is
// pressed, then waits for all workers to stop.
func (app *Application) Run(ctx context.Context) error {
	if app.server != nil {
		app.server.StartInBackground()
	}

	app.started = true
	for _, w := range app.workers {
		w.Start(ctx)
	}

	var opts []display.Option
	if app.config.Display.Window {
		win := display.NewWindow()
		opts = append(opts, display.WithRenderer(win), display.WithKeySource(win))
	}
	if app.mjpeg != nil {
		opts = append(opts, display.WithRenderer(app.mjpeg))
	}

	workers := lo.Map(app.workers, func(w *worker.Worker, _ int) display.Worker { return w })
	loop := display.New(app.feeds, workers, app.config.Display.Interval, app.logger, opts...)
	reason := loop.Run(ctx)
	app.logger.Info("All workers stopped", zap.String("reason", reason))
	return nil
}

func (app *Application) Cleanup() {
	if app.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.server.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
			app.logger.Warn("HTTP server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	// Workers close their own source once started.
	if !app.started {
		for _, c := range app.captures {
			c.Close()
		}
		for _, f := range app.feeds {
			f.Slot.Close()
		}
	}
	if app.publisher != nil {
		app.publisher.Close()
	}
	if app.notifier != nil {
		app.notifier.Close()
	}
	_ = app.logger.Sync()
}
