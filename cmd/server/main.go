package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"lanmeet/control"
	"lanmeet/internal"
	"lanmeet/media"
	"lanmeet/observability"
	"lanmeet/protocol"
	"lanmeet/runtime/workers"
	"lanmeet/services"
	"lanmeet/session"
	"lanmeet/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components and manages the server lifecycle. Keeping
// it separate from main ensures the defers (database close, listener close)
// execute before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Meeting state & collaborators
	registry := session.NewRegistry()
	arbiter := session.NewPresenterArbiter()
	timer := session.NewMeetingTimer()
	stats := observability.NewRelayStats()
	chatRepository := storage.NewChatRepository(db, log)
	fileCatalog := services.NewFileCatalog()

	// 4. Media endpoints
	audioServer := media.NewAudioServer(log, registry, stats, config.MixInterval, config.JitterDepth)
	videoServer := media.NewVideoServer(log, registry, stats)
	latencyServer := media.NewLatencyServer(log, stats, config.PreSharedKey)

	// 5. Control plane
	hub := control.NewHub(log, registry, stats)
	controlService := control.NewService(log, control.Config{
		HandshakeTimeout: config.HandshakeTimeout,
		SendBufferSize:   config.SendBufferSize,
		ChatReplayLimit:  config.ChatHistoryLimit,
		PreSharedKey:     config.PreSharedKey,
		MediaPorts: protocol.MediaPorts{
			VideoPort:   config.VideoPort,
			AudioPort:   config.AudioPort,
			ScreenPort:  config.ScreenPort,
			LatencyPort: config.LatencyPort,
		},
	}, registry, arbiter, timer, hub, chatRepository, fileCatalog, stats,
		audioServer, videoServer)

	screenServer := media.NewScreenServer(log, arbiter, hub, stats, config.ScreenIdleTimeout)

	// 6. Bind every listener before accepting anyone, so a port clash fails
	// startup instead of surfacing as a half-working meeting.
	if err := controlService.Listen(config.Host, config.ControlPort); err != nil {
		return err
	}
	if err := screenServer.Listen(config.Host, config.ScreenPort); err != nil {
		return err
	}
	if err := audioServer.Listen(config.Host, config.AudioPort); err != nil {
		return err
	}
	if err := videoServer.Listen(config.Host, config.VideoPort); err != nil {
		return err
	}
	if err := latencyServer.Listen(config.Host, config.LatencyPort); err != nil {
		return err
	}

	// 7. Background workers
	watchdog := workers.NewWatchdog(log, registry, controlService,
		config.HeartbeatSweep, config.HeartbeatTimeout)
	timekeeper := workers.NewTimekeeper(log, registry, timer, hub, controlService)
	telemetry := workers.NewTelemetry(log, registry, stats, config.TelemetryInterval)

	// 8. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting meeting relay",
		"host", config.Host,
		"control_port", config.ControlPort,
		"screen_port", config.ScreenPort,
		"video_port", config.VideoPort,
		"audio_port", config.AudioPort,
		"latency_port", config.LatencyPort)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(controlService, screenServer, audioServer, videoServer, latencyServer,
		watchdog, timekeeper, telemetry).
		Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
