// Command fetchmodels downloads every configured model so the server can
// start without network access.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/env"
	"github.com/ekisa-team/speakpaint/internal/logger"
	"github.com/ekisa-team/speakpaint/internal/model"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	var (
		flagConfigPath = flag.String("config", filepath.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath = flag.String("schema", "", "Path to schema file (embedded schema when empty)")
	)
	flag.Parse()

	slog.SetDefault(logger.New(env.FromEnv()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, fromFile, err := config.LoadOrDefault(*flagConfigPath, *flagSchemaPath)
	if err != nil {
		slog.Error("Failed to load config", "config", *flagConfigPath, "error", err)
		os.Exit(1)
	}
	config.ApplyEnv(cfg, os.LookupEnv)
	if !fromFile {
		slog.Info("No config file found, fetching the default models")
	}

	slog.Info("Fetching models", "models_path", model.ModelsPath(cfg))

	fetched, err := model.Fetch(ctx, cfg)
	if err != nil {
		slog.Error("Failed to fetch models", "error", err)
		os.Exit(1)
	}

	var total int64
	for _, m := range fetched {
		total += m.Size
		fmt.Printf("%-12s %-28s %10s  %s\n", m.Service, m.ID, humanize.Bytes(uint64(m.Size)), m.Path)
	}
	fmt.Printf("%d models, %s on disk\n", len(fetched), humanize.Bytes(uint64(total)))
}
