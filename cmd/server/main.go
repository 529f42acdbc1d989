package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/amazon-promo-bot/internal/ai"
	"github.com/pauljones0/amazon-promo-bot/internal/browser"
	"github.com/pauljones0/amazon-promo-bot/internal/config"
	"github.com/pauljones0/amazon-promo-bot/internal/filter"
	"github.com/pauljones0/amazon-promo-bot/internal/fingerprint"
	"github.com/pauljones0/amazon-promo-bot/internal/models"
	"github.com/pauljones0/amazon-promo-bot/internal/notifier"
	"github.com/pauljones0/amazon-promo-bot/internal/pacing"
	"github.com/pauljones0/amazon-promo-bot/internal/processor"
	"github.com/pauljones0/amazon-promo-bot/internal/scraper"
	"github.com/pauljones0/amazon-promo-bot/internal/settings"
	"github.com/pauljones0/amazon-promo-bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("Starting Amazon promotion bot server...", "driver", cfg.BrowserDriver, "base_url", cfg.AmazonBaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	store, err := storage.New(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Critical error initializing Firestore client", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	settingsMgr := settings.NewManager(store, models.NotificationSettings{})
	if err := settingsMgr.Load(ctx); err != nil {
		slog.Warn("Failed to load notification settings, using defaults", "error", err)
	}

	factory := browser.NewFactory(newDriver(cfg), fingerprint.NewProvisioner(fingerprint.Options{
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
		Locale:    cfg.Locale,
		Timezone:  cfg.Timezone,
	}))
	defer func() {
		if err := factory.Close(); err != nil {
			slog.Warn("Failed to stop browser driver", "error", err)
		}
	}()

	pacer := pacing.New(cfg.NavigationsPerMinute)
	s, err := scraper.New(cfg, factory, pacer, scraper.LoadConfig(cfg.SelectorsConfigPath))
	if err != nil {
		slog.Error("Critical error building scraper", "error", err)
		os.Exit(1)
	}
	pipeline := processor.NewPipeline(store, s, filter.New(store, settingsMgr, cfg.RecentWindow()), pacer, cfg)

	var cleaner processor.TitleCleaner
	aiClient, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		slog.Warn("Gemini unavailable, titles will not be cleaned", "error", err)
	} else if aiClient != nil {
		cleaner = aiClient
	}

	n := notifier.New(cfg.DiscordWebhookURL, cfg.DiscordBotToken, cfg.AmazonAffiliateTag)
	p := processor.New(pipeline, n, settingsMgr, cleaner, store, cfg.RecentWindow())

	srv := NewServer(ctx, p, settingsMgr, store, store)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening on port", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
		srv.Wait()
		return nil
	})
	if cfg.ScrapeInterval > 0 {
		g.Go(func() error {
			srv.Schedule(gctx, cfg.ScrapeInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= processor.LevelCritical {
					a.Value = slog.StringValue("CRITICAL")
				}
			}
			return a
		},
	}))
}

func newDriver(cfg *config.Config) browser.Driver {
	opts := browser.Options{ProfileDir: cfg.BrowserProfileDir, Headless: cfg.Headless}
	if cfg.BrowserDriver == config.DriverChromedp {
		return browser.NewChromedpDriver(opts)
	}
	return browser.NewPlaywrightDriver(opts)
}
