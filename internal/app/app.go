package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"cashwatch/internal/camera"
	"cashwatch/internal/config"
	"cashwatch/internal/detector"
	"cashwatch/internal/feed"
	"cashwatch/internal/logger"
	"cashwatch/internal/notify"
	"cashwatch/internal/watch"
)

// App wires configuration, the detector, the notification sink, the
// optional event feed, and the poll loop controller together.
type App struct {
	cfg        *config.Config
	logger     *logger.Logger
	detector   *detector.Detector
	hub        *feed.Hub
	controller *watch.Controller
}

// New builds the application. A model-load failure is returned here, before
// any poll cycle runs; it is the one unrecoverable startup error.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.LogDirectory)
	if err != nil {
		return nil, err
	}

	det, err := detector.New(cfg.ModelPath, cfg.ModelLabels, float32(cfg.NMSThreshold))
	if err != nil {
		return nil, fmt.Errorf("model loading failed: %w", err)
	}
	log.Info("✅ Detection model loaded from %s", cfg.ModelPath)

	var notifier watch.Notifier = notify.Nop{}
	if cfg.MailEnabled() {
		notifier = notify.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom, cfg.EmailTo, cfg.EmailPass)
	} else {
		log.Warning("Email settings incomplete; alerts will be logged only")
	}

	var publisher watch.Publisher = feed.Nop{}
	var hub *feed.Hub
	if cfg.ListenAddr != "" {
		hub = feed.NewHub(log)
		publisher = hub
	}

	cameras := make([]watch.Camera, 0, len(cfg.Cameras))
	for _, name := range cfg.CameraNames() {
		cameras = append(cameras, watch.Camera{Name: name, Address: cfg.Cameras[name]})
	}

	controller := watch.NewController(
		watch.Settings{
			Cameras:       cameras,
			TargetLabel:   cfg.TargetLabel,
			ConfThreshold: float32(cfg.ConfThreshold),
			PollInterval:  cfg.PollInterval,
			Cooldown:      cfg.Cooldown,
			SnapshotDir:   cfg.SnapshotDir,
		},
		camera.NewGrabber(cfg.CaptureTimeout),
		det,
		notifier,
		publisher,
		log,
	)

	return &App{
		cfg:        cfg,
		logger:     log,
		detector:   det,
		hub:        hub,
		controller: controller,
	}, nil
}

// Run starts the poll loop and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.detector.Close()

	if a.hub != nil {
		go a.hub.Run()
		go func() {
			if err := a.hub.Serve(a.cfg.ListenAddr); err != nil {
				a.logger.Error("Event feed server failed: %v", err)
			}
		}()
		a.logger.Info("📡 Event feed listening on %s", a.cfg.ListenAddr)
	}

	a.logger.Info("🚀 Starting %s detection on %d camera(s), polling every %s",
		a.cfg.TargetLabel, len(a.cfg.Cameras), a.cfg.PollInterval)

	return a.controller.Run(ctx)
}
