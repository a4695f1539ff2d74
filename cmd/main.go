package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/lessonlens/lessonlens/internal/config"
	"github.com/lessonlens/lessonlens/internal/httpapi"
	"github.com/lessonlens/lessonlens/internal/jobs"
	"github.com/lessonlens/lessonlens/internal/library"
	"github.com/lessonlens/lessonlens/internal/persistence"
	"github.com/lessonlens/lessonlens/internal/service"
	"github.com/lessonlens/lessonlens/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	// settings saved from the web UI override the environment
	settingsPath := config.RuntimeSettingsFilePath(cfg.Data.Dir)
	if saved, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		cfg, err = config.NewFromEnv(config.WithRuntimeSettings(saved))
		if err != nil {
			log.Fatal("Failed to load configuration: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Warn("Ignoring unreadable settings file %s: %v", settingsPath, err)
	}

	log.InitLogger(log.ParseLevel(cfg.LogLevel))

	store, err := persistence.NewSQLiteStore(cfg.Data.DatabasePath())
	if err != nil {
		log.Fatal("Failed to open database at %s: %v", cfg.Data.DatabasePath(), err)
	}
	defer store.Close()

	scanner := library.NewScanner(library.SourcesFromDirs(cfg.Library.LessonDirs))
	queue := jobs.NewQueue(cfg.Library.ImportWorkers, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cronRunner := cron.New()
	svc := service.New(scanner, queue, store, cronRunner, cfg.Library.ScanCronExpr)
	if err := svc.Schedule(ctx); err != nil {
		log.Fatal("Failed to schedule library rescan: %v", err)
	}

	importer := service.NewImporter(store)
	queue.Start(importer.Execute)
	cronRunner.Start()

	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		log.Fatal("Failed to initialize runtime settings: %v", err)
	}

	server := httpapi.NewServer(scanner, queue, store,
		httpapi.WithUI(cfg.Server.UIDir, cfg.Server.UIDir != ""),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			return svc.ApplyRuntimeSettings(ctx, next)
		}),
		httpapi.WithRescanTrigger(func() { svc.Rescan(ctx, "scan") }),
		httpapi.WithScanCronExpr(svc.ScanCronExpr),
	)

	go func() {
		log.Info("Listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed: %v", err)
		}
	}()

	// initial import pass so a fresh install does not wait for the cron tick
	go svc.Rescan(ctx, "startup")

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down HTTP server: %v", err)
	}

	cronCtx := cronRunner.Stop()
	<-cronCtx.Done()
	queue.Stop()
}
