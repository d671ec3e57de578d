package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"i4.energy/across/cellat/capability"
	"i4.energy/across/cellat/lowpower"
	"i4.energy/across/cellat/metrics"
	"i4.energy/across/cellat/modem"
	"i4.energy/across/cellat/uart"

	_ "i4.energy/across/cellat/capability/bg96"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(parser, &opts))
	if err != nil {
		os.Stderr.WriteString("Failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := newLogger(config.LogLevel)
	if err != nil {
		os.Stderr.WriteString("Failed to create logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()
	lowpower.SetLogger(logger.Named("lowpower"))

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(config.ATTimeout).
		WithInitTimeout(30 * time.Second).
		WithVariant(config.Variant).
		WithDeviceID(config.DeviceID).
		WithSimPIN(config.SimPIN).
		WithLogger(logger.Named("modem")).
		WithURCHandler(func(u capability.URC) {
			logger.Info("URC", zap.String("name", u.Name), zap.String("line", u.Line))
		}).
		WithDialer(uart.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		logger.Fatal("Failed to create modem config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Fatal("Failed to create modem", zap.Error(err))
	}

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- m.Loop(ctx)
	}()

	if err := m.Init(ctx); err != nil {
		m.Close()
		logger.Fatal("Failed to initialize modem", zap.Error(err))
	}
	logger.Info("Starting cellular AT gateway", zap.String("variant", m.Variant()), zap.String("device", m.DeviceID()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		metrics.NewExporter(m),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.Named("server"),
			Modem:   m,
			Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			Token:   config.APIToken,
		},
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal or the modem going away
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-loopDone:
		logger.Error("Modem loop stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", zap.Error(err))
	}

	logger.Info("Closing modem connection")
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", zap.Error(err))
	}
}
