// Command reconcile runs one orphan sweep over the pending blob prefix and
// prints the summary as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papercast/internal/util"
	"papercast/services/upload/internal/app"
	"papercast/services/upload/internal/config"
	"papercast/services/upload/internal/wiring"
)

func main() {
	configPath := flag.String("config", config.Path(), "path to config file")
	olderThan := flag.Duration("older-than", 0, "minimum blob age to treat as orphaned (default: orphanMaxAge from config)")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall sweep deadline")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	age := *olderThan
	if age <= 0 {
		age = cfg.OrphanMaxAge.Std()
	}

	os.Exit(run(cfg, age, *timeout))
}

func run(cfg config.FileConfig, age, timeout time.Duration) int {
	logger := slog.Default()
	if err := checkStoreDriver(cfg); err != nil {
		logger.Error("refusing to sweep", "err", err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deps, err := wiring.Open(cfg)
	if err != nil {
		logger.Error("failed to init dependencies", "err", err)
		return 1
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close dependencies", "err", err)
		}
	}()

	appCore, err := app.New(app.Config{
		Store:   deps.Store,
		Objects: deps.Objects,
	})
	if err != nil {
		logger.Error("failed to init app", "err", err)
		return 1
	}

	summary, err := appCore.SweepOrphans(ctx, age)
	if err != nil {
		logger.Error("orphan sweep failed", "err", err)
		return 1
	}
	logger.Info("orphan sweep finished",
		"scanned", summary.Scanned,
		"orphaned", summary.Orphaned,
		"deleted", summary.Deleted,
		"failed", summary.Failed,
		"older_than", age.String(),
	)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Error("failed to write summary", "err", err)
		return 1
	}
	if summary.Failed > 0 {
		return 2
	}
	return 0
}

// checkStoreDriver rejects stores this process cannot share with the running
// service. A fresh in-memory store knows no records, so every pending blob
// would look orphaned.
func checkStoreDriver(cfg config.FileConfig) error {
	if cfg.StoreDriver == config.StoreDriverMemory {
		return errors.New("orphan sweep needs the shared postgres store; storeDriver is memory")
	}
	return nil
}
