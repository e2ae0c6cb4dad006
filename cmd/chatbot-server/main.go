// chatbot-server is the webhook-driven bot server: it reconciles configured
// bot accounts into the database, registers their webhooks, and serves the
// webhook ingress plus the read-only operator API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/londkevich/go-chatbot/internal/config"
	"github.com/londkevich/go-chatbot/internal/domain"
	httpapi "github.com/londkevich/go-chatbot/internal/http"
	"github.com/londkevich/go-chatbot/internal/observability"
	"github.com/londkevich/go-chatbot/internal/repo"
	"github.com/londkevich/go-chatbot/internal/services"
	"github.com/londkevich/go-chatbot/internal/sysutil"
	"github.com/londkevich/go-chatbot/internal/tasks"
)

const version = "1.0.0"

// dispatchTimeout bounds one update's processing on a queue worker.
const dispatchTimeout = 30 * time.Second

// shutdownTimeout bounds the graceful drain of in-flight HTTP requests.
const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store := services.GormStore{}

	botConfigs := make([]services.BotConfig, 0, len(cfg.Bots))
	for _, b := range cfg.Bots {
		botConfigs = append(botConfigs, services.BotConfig{Name: b.Name, Token: b.Token})
	}
	bots, err := services.SyncBots(ctx, db, store, botConfigs, cfg.TelegramAPIURL)
	if err != nil {
		log.Fatal().Err(err).Msg("sync bots")
	}
	if cfg.WebhookDomain != "" {
		if err := services.RegisterWebhooks(ctx, bots, cfg.WebhookDomain, cfg.WebhookSecret); err != nil {
			log.Fatal().Err(err).Msg("register webhooks")
		}
		log.Info().Int("bots", len(bots)).Str("domain", cfg.WebhookDomain).Msg("webhooks registered")
	} else {
		log.Warn().Msg("WEBHOOK_DOMAIN not set, skipping webhook registration")
	}

	formRegistry, handlerRegistry := setupBot(cfg)

	dispatcher := &services.Dispatcher{
		DB:       db,
		Updates:  services.NewUpdateService(db, store),
		Resolver: services.NewFormResolver(db, store),
		Store:    store,
		Audit:    store,
		Handlers: handlerRegistry,
		Forms:    formRegistry,
		Log:      log.Logger,
	}

	queue := tasks.NewQueue(cfg.QueueWorkers, cfg.QueueSize, log.Logger)
	queue.Start(ctx)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.WebhookDeps{
		Bots:  bots,
		Queue: queue,
		Dispatch: func(ctx context.Context, bot *domain.Bot, client services.TelegramAPI, raw []byte) error {
			dctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
			defer cancel()
			return dispatcher.Dispatch(dctx, bot, client, raw)
		},
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	queue.Stop()
	log.Info().Msg("bye")
}
