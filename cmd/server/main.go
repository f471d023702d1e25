// Command server runs the media notification bridge: it ingests Radarr and
// Sonarr webhook events, dedups and routes them to subscribed chat users,
// and exposes the search-and-request API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-media-notify/internal/arr"
	"github.com/tbourn/go-media-notify/internal/chat"
	"github.com/tbourn/go-media-notify/internal/config"
	httpapi "github.com/tbourn/go-media-notify/internal/http"
	"github.com/tbourn/go-media-notify/internal/notify"
	"github.com/tbourn/go-media-notify/internal/observability"
	"github.com/tbourn/go-media-notify/internal/repo"
	"github.com/tbourn/go-media-notify/internal/services"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Optional .env for local development; env vars win.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// In-memory routing index, rebuilt from the store at startup.
	index := notify.NewSubscriptionIndex()
	if err := index.Rebuild(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("subscription index rebuild failed")
	}

	// Outbound chat gateway.
	messenger := chat.NewDiscordClient(chat.DiscordOptions{
		Token:         cfg.Chat.Token,
		APIBase:       cfg.Chat.APIBase,
		ApplicationID: cfg.Chat.ApplicationID,
		SendRPS:       cfg.Chat.SendRPS,
		SendBurst:     cfg.Chat.SendBurst,
		Timeout:       cfg.Chat.RequestTimeout,
	})

	// Slash commands give chat users an entry point into the request
	// workflow. Registration is idempotent on the gateway side; a failure
	// only degrades chat UX, so the server still starts.
	if cfg.Chat.Token != "" && cfg.Chat.ApplicationID != "" {
		for _, spec := range []chat.CommandSpec{
			{Name: "request", Description: "Search for a movie or series and request it"},
			{Name: "unsubscribe", Description: "Stop notifications for a tracked title"},
		} {
			if err := messenger.RegisterCommand(ctx, spec); err != nil {
				log.Warn().Err(err).Str("command", spec.Name).Msg("slash command registration failed")
			}
		}
	}

	dispatcher := notify.NewDispatcher(messenger, db, notify.DispatcherOptions{
		Workers:     cfg.Delivery.Workers,
		QueueSize:   cfg.Delivery.QueueSize,
		MaxRetries:  cfg.Delivery.MaxRetries,
		BackoffBase: cfg.Delivery.BackoffBase,
		SendTimeout: cfg.Chat.RequestTimeout,
	})
	dispatcher.Start()

	router := &notify.Router{
		DB:             db,
		Index:          index,
		DefaultChannel: cfg.Chat.DefaultChannel,
	}
	pipeline := &notify.Pipeline{
		DB:         db,
		Filter:     notify.NewDedupFilter(cfg.Delivery.DedupTTL),
		Router:     router,
		Dispatcher: dispatcher,
		ReceiptTTL: cfg.Delivery.DedupTTL,
	}
	if err := pipeline.WarmFilter(ctx); err != nil {
		log.Warn().Err(err).Msg("dedup filter warm-up failed; starting cold")
	}

	// Media backends; nil when not configured. A failed probe is logged but
	// not fatal: the backend may come up later and the breaker handles it.
	var radarr, sonarr arr.Backend
	if cfg.Radarr.Enabled() {
		radarr = arr.NewRadarrClient(cfg.Radarr.URL, cfg.Radarr.APIKey, cfg.Radarr.RootFolder, cfg.Radarr.QualityProfile)
		probeBackend(ctx, "radarr", radarr)
	}
	if cfg.Sonarr.Enabled() {
		sonarr = arr.NewSonarrClient(cfg.Sonarr.URL, cfg.Sonarr.APIKey, cfg.Sonarr.RootFolder, cfg.Sonarr.QualityProfile)
		probeBackend(ctx, "sonarr", sonarr)
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		Ingest:  pipeline,
		ReqSvc:  services.NewRequestService(db, radarr, sonarr, index),
		PrefSvc: services.NewPreferenceService(db, index),
		Catalog: services.NewCatalogService(db),
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		// Keep the receipt table bounded while the process runs; startup
		// only prunes once.
		if err := pipeline.RunReceiptPruner(gctx, time.Hour); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}

		// Drain in-flight deliveries before exiting.
		dispatcher.Stop(cfg.Delivery.GracePeriod)

		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("otel shutdown failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("server stopped")
}

// probeBackend pings a media backend at startup so misconfiguration shows
// up in the logs immediately.
func probeBackend(ctx context.Context, name string, b arr.Backend) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := b.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("backend", name).Msg("media backend unreachable at startup")
		return
	}
	log.Info().Str("backend", name).Msg("media backend reachable")
}

// setupLogger configures the global zerolog logger from config: level,
// timestamp format, and optional pretty console output for development.
func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
