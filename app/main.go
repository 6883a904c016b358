package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/research-comb/app/api"
	"github.com/lysyi3m/research-comb/app/cfg"
	"github.com/lysyi3m/research-comb/app/database"
	"github.com/lysyi3m/research-comb/app/fetch"
	"github.com/lysyi3m/research-comb/app/monitor"
	"github.com/lysyi3m/research-comb/app/research"
	"github.com/lysyi3m/research-comb/app/search"
	"github.com/lysyi3m/research-comb/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Research Comb server", "version", appCfg.Version, "timezone", appCfg.Timezone)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	slog.Debug("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	configCache := monitor.NewConfigCache(appCfg.MonitorsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load monitor configurations", "dir", appCfg.MonitorsDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Monitor configurations loaded", "count", configCache.GetConfigCount())

	queryRepo := database.NewQueryRepository(db)
	resultRepo := database.NewResultRepository(db)
	archiveRepo := database.NewArchiveRepository(db)
	monitorRepo := database.NewMonitorRepository(db)

	fetcher := fetch.NewFetcher(appCfg.UserAgent)
	fetchOpts := fetch.Options{MaxSizeBytes: appCfg.FetchMaxSize, Timeout: appCfg.FetchTimeout}

	bing := search.NewBingClient(appCfg.BingEndpoint, appCfg.BingAPIKey, appCfg.SearchRate)
	if appCfg.BingAPIKey == "" {
		slog.Warn("BING_API_KEY not set, web and news searches return sample results")
	}

	quota := research.NewQuota(queryRepo, monitorRepo)
	service := research.NewService(queryRepo, resultRepo, quota,
		search.NewWebProvider(bing),
		search.NewNewsProvider(bing),
		search.NewFeedProvider(fetcher, fetchOpts),
	)
	archiver := research.NewArchiver(fetcher, fetchOpts, resultRepo, archiveRepo, research.WaybackOptions{
		Enabled:  appCfg.WaybackEnabled,
		Endpoint: appCfg.WaybackEndpoint,
	})

	scheduler := tasks.NewScheduler(configCache, monitorRepo, service, quota, archiver, monitor.NewFilterer())
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval)

	if !appCfg.NoWatch {
		watcher, err := monitor.NewWatcher(appCfg.MonitorsDir, scheduler)
		if err != nil {
			slog.Error("Failed to create monitor watcher", "error", err)
			os.Exit(1)
		}

		watchCtx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()

		if err := watcher.Start(watchCtx); err != nil {
			slog.Error("Failed to start monitor watcher", "dir", appCfg.MonitorsDir, "error", err)
			os.Exit(1)
		}
		defer watcher.Stop()
		slog.Info("Watching monitor configurations", "dir", appCfg.MonitorsDir)
	}

	handler := api.NewHandler(queryRepo, resultRepo, archiveRepo, monitorRepo, configCache, service, quota, scheduler)
	server := api.NewServer(handler, appCfg.APIAccessKey, appCfg.Version)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "api_enabled", appCfg.APIAccessKey != "")

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}
