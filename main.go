package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/semgw/meter"
	"i4.energy/across/semgw/store"
	"i4.energy/across/semgw/wisun"
)

func main() {
	configFile := flag.String("config", "", "Path to a TOML configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the Wi-SUN module")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.Duration("idle-timeout", time.Second, "Serial read timeout")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("routeb-id", "", "Route-B authentication id")
	flag.String("routeb-password", "", "Route-B password")
	flag.Int("scan-duration", 6, "Active scan duration code (1-14)")
	flag.Duration("poll-interval", time.Minute, "Interval between power readings")
	flag.Duration("renew-interval", 12*time.Hour, "Interval between session renewals")
	flag.String("db-path", "semgw.db", "SQLite database for readings")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err == nil {
		err = config.Validate()
	}
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, config.DBPath)
	if err != nil {
		logger.Error("Failed to open readings database", "error", err, "path", config.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	radioConfig, err := wisun.NewConfigBuilder().
		WithCommandTimeout(5 * time.Second).
		WithJoinTimeout(20 * time.Second).
		WithLogger(logger.With("component", "wisun")).
		WithDialer(wisun.SerialDialer{
			PortName:    config.SerialPort,
			BaudRate:    config.BaudRate,
			IdleTimeout: config.IdleTimeout,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create module config", "error", err)
		os.Exit(1)
	}

	radio, err := wisun.New(ctx, radioConfig)
	if err != nil {
		logger.Error("Failed to open Wi-SUN module", "error", err)
		os.Exit(1)
	}

	m, err := meter.New(radio, meter.Config{
		RouteBID:      config.RouteBID,
		Password:      config.RouteBPassword,
		ScanDuration:  uint8(config.ScanDuration),
		PollInterval:  config.PollInterval,
		RenewInterval: config.RenewInterval,
		Logger:        logger.With("component", "meter"),
	})
	if err != nil {
		logger.Error("Failed to create meter", "error", err)
		os.Exit(1)
	}

	hub := NewHub(logger.With("component", "hub"))
	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			History: db,
			Hub:     hub,
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	loopDone := make(chan error, 1)
	go func() { loopDone <- radio.Loop(ctx) }()

	runDone := make(chan error, 1)
	go func() {
		logger.Info("Starting meter reader", "serial_port", config.SerialPort)
		runDone <- m.Run(ctx, meter.Sinks{db, hub})
	}()

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
	case err := <-runDone:
		logger.Error("Meter reader stopped", "error", err)
		exitCode = 1
	case err := <-loopDone:
		if !errors.Is(err, context.Canceled) {
			logger.Error("Module loop stopped", "error", err)
			exitCode = 1
		}
	}
	cancel()

	logger.Info("Closing module connection")
	if err := radio.Close(); err != nil && !errors.Is(err, wisun.ErrAlreadyClosed) {
		logger.Error("Failed to close module", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		exitCode = 1
	}

	if exitCode != 0 {
		db.Close()
		os.Exit(exitCode)
	}
}
