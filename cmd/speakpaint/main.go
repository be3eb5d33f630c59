package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/env"
	"github.com/ekisa-team/speakpaint/internal/hostenv"
	"github.com/ekisa-team/speakpaint/internal/logger"
	"github.com/ekisa-team/speakpaint/internal/model"
	grpcserver "github.com/ekisa-team/speakpaint/internal/server/grpc"
	httpserver "github.com/ekisa-team/speakpaint/internal/server/http"
	"github.com/ekisa-team/speakpaint/internal/service"
	"github.com/ekisa-team/speakpaint/internal/storage"
	"github.com/ekisa-team/speakpaint/internal/telemetry"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	var (
		flagHTTPPort    = flag.Int("http-port", config.DefaultHTTPPort(), "HTTP port to listen on")
		flagGRPCPort    = flag.Int("grpc-port", config.DefaultGRPCPort(), "gRPC health port to listen on (0 disables)")
		flagConfigPath  = flag.String("config", filepath.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath  = flag.String("schema", "", "Path to schema file (embedded schema when empty)")
		flagExitOnFail  = flag.Bool("exit-on-load-failure", true, "Exit when the models fail to load at startup")
		flagLogLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		flagLogToFile   = flag.Bool("log-to-file", false, "Also write logs to a rotated file")
		flagLogFilePath = flag.String("log-file", "logs/speakpaint.log", "Path of the rotated log file")
		flagLogMaxSize  = flag.Int("log-max-size", 50, "Rotate the log file after this many megabytes")
		flagLogBackups  = flag.Int("log-max-backups", 5, "Number of rotated log files to keep")
		flagLogMaxAge   = flag.Int("log-max-age", 28, "Days to keep rotated log files")
	)
	flag.Parse()

	environment := env.FromEnv()

	// Production always keeps a rotated file next to the JSON console output.
	slog.SetDefault(
		logger.New(environment,
			logger.WithLevel(logger.ParseLevel(*flagLogLevel)),
			logger.WithLogToFile(*flagLogToFile || environment.IsProduction()),
			logger.WithLogFile(*flagLogFilePath),
			logger.WithRotation(*flagLogMaxSize, *flagLogBackups, *flagLogMaxAge),
		),
	)

	if err := run(*flagHTTPPort, *flagGRPCPort, *flagConfigPath, *flagSchemaPath, *flagExitOnFail); err != nil {
		slog.Error("speakpaint stopped", "error", err)
		os.Exit(1)
	}
}

func run(httpPort, grpcPort int, configPath, schemaPath string, exitOnLoadFailure bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, fromFile, err := config.LoadOrDefault(configPath, schemaPath)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", configPath, err)
	}
	config.ApplyEnv(cfg, os.LookupEnv)

	if fromFile {
		slog.Info("Config loaded", "config", configPath)
	} else {
		slog.Info("No config file found, using built-in defaults", "config", configPath)
	}

	checker := hostenv.NewChecker()
	hasFFmpeg := checker.CheckFFmpeg(ctx)

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	var health *grpcserver.HealthServer
	observers := []model.Option{
		model.WithDeviceDetector(checker),
		model.WithStateObserver(func(s model.State) {
			metrics.SetModelsReady(s == model.StateReady)
		}),
	}
	if grpcPort > 0 {
		health = grpcserver.NewHealthServer()
		observers = append(observers, model.WithStateObserver(health.Observe))
	}

	servers := backend.NewServerManager()
	defer servers.StopAll()

	manager := model.NewManager(model.NativeBackends(servers, hasFFmpeg), observers...)

	store, err := storage.NewLocalStore(cfg.Server.GeneratedDir)
	if err != nil {
		return fmt.Errorf("failed to prepare generated folder: %w", err)
	}

	stt := service.NewSTT(manager, metrics)
	translator := service.NewTranslation(manager, metrics)
	images := service.NewImage(manager, metrics, cfg.Generation)

	router := httpserver.NewRouter(httpserver.Options{
		Transcriber:       service.NewTranscription(stt, translator, cfg.Server.TempDir),
		Images:            service.NewGeneration(images, translator, store, metrics),
		Status:            manager,
		Metrics:           metrics,
		GeneratedDir:      store.Root(),
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		Version:           version,
	})

	errCh := make(chan error, 3)

	httpAddr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(httpPort))
	httpSrv := httpserver.NewServer(httpAddr, router)
	go func() {
		slog.Info("HTTP server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if health != nil {
		grpcAddr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(grpcPort))
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		go func() {
			slog.Info("gRPC health server listening", "addr", grpcAddr)
			if err := health.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		defer health.Stop()
	}

	go func() {
		if err := manager.Load(ctx, cfg); err != nil && exitOnLoadFailure && ctx.Err() == nil {
			errCh <- fmt.Errorf("failed to load models: %w", err)
		}
	}()

	if fromFile {
		watcher, err := config.NewWatcher(configPath, schemaPath, func(next *config.Config, err error) {
			if err != nil {
				slog.Error("Failed to reload config", "error", err)
				return
			}
			config.ApplyEnv(next, os.LookupEnv)

			slog.Info("Config changed, reloading models")
			if err := manager.Load(ctx, next); err != nil {
				slog.Error("Failed to reload models", "error", err)
			}
		})
		if err != nil {
			slog.Warn("Config hot reload disabled", "error", err)
		} else {
			defer watcher.Close()
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutdown requested")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := manager.Close(shutdownCtx); err != nil {
		slog.Warn("Failed to unload models", "error", err)
	}

	return runErr
}
