// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/config"
	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/http/handlers"
	"github.com/londkevich/go-chatbot/internal/http/middleware"
	"github.com/londkevich/go-chatbot/internal/repo"
	"github.com/londkevich/go-chatbot/internal/search"
	"github.com/londkevich/go-chatbot/internal/services"
)

// maxSearchDocs bounds how many messages one search indexes.
const maxSearchDocs = 1000

// botSvcShim adapts the repository free functions to the handlers.BotService
// interface. This keeps handlers decoupled from the concrete repo package
// while reusing existing functions.
type botSvcShim struct{ db *gorm.DB }

// List proxies repo.ListBots.
func (s botSvcShim) List(ctx context.Context) ([]domain.Bot, error) {
	return repo.ListBots(ctx, s.db)
}

// chatSvcShim adapts the chat repository functions to handlers.ChatService.
type chatSvcShim struct{ db *gorm.DB }

// ListPage combines repo.CountChats and repo.ListChatsPage.
func (s chatSvcShim) ListPage(ctx context.Context, botID uint, page, pageSize int) ([]domain.Chat, int64, error) {
	total, err := repo.CountChats(ctx, s.db, botID)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListChatsPage(ctx, s.db, botID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// msgSvcShim adapts the message repository functions to
// handlers.MessageService, including the in-memory search.
type msgSvcShim struct{ db *gorm.DB }

// ListPage combines repo.CountMessages and repo.ListMessagesPage.
func (s msgSvcShim) ListPage(ctx context.Context, chatID uint, page, pageSize int) ([]domain.Message, int64, error) {
	total, err := repo.CountMessages(ctx, s.db, chatID)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListMessagesPage(ctx, s.db, chatID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Search builds a throwaway index over the chat's messages and ranks them.
// Chats are small; indexing per request keeps results consistent with the
// database without cache invalidation machinery.
func (s msgSvcShim) Search(ctx context.Context, chatID uint, query string, k int) ([]handlers.MessageHit, error) {
	msgs, err := repo.ListMessagesPage(ctx, s.db, chatID, 0, maxSearchDocs)
	if err != nil {
		return nil, err
	}
	docs := make([]search.Document, 0, len(msgs))
	for _, m := range msgs {
		docs = append(docs, search.Document{Ref: m.ID, Text: m.Text})
	}
	results := search.NewIndex(docs).TopK(query, k)
	hits := make([]handlers.MessageHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, handlers.MessageHit{MessageID: r.Ref, Snippet: r.Snippet, Score: r.Score})
	}
	return hits, nil
}

// formSvcShim adapts the form repository functions to handlers.FormService.
type formSvcShim struct{ db *gorm.DB }

// ListPage combines repo.CountFormStates and repo.ListFormStatesPage.
func (s formSvcShim) ListPage(ctx context.Context, activeOnly bool, page, pageSize int) ([]domain.FormState, int64, error) {
	total, err := repo.CountFormStates(ctx, s.db, activeOnly)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListFormStatesPage(ctx, s.db, activeOnly, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Get combines repo.GetFormState and repo.ListFieldStates.
func (s formSvcShim) Get(ctx context.Context, id uint) (*domain.FormState, []domain.FieldState, error) {
	fs, err := repo.GetFormState(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	fields, err := repo.ListFieldStates(ctx, s.db, fs.ID)
	if err != nil {
		return nil, nil, err
	}
	return fs, fields, nil
}

// WebhookDeps carries the webhook wiring built at startup.
type WebhookDeps struct {
	// Bots maps token slug to managed bot.
	Bots map[string]*services.ManagedBot
	// Queue decouples webhook acknowledgment from dispatch.
	Queue handlers.Enqueuer
	// Dispatch processes one raw delivery on a queue worker.
	Dispatch handlers.DispatchFunc
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: the webhook ingress, the read-only operator API under /api/v1, and
// the health and metrics endpoints.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with token/PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per webhook slug / client IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, wh WebhookDeps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per bot slug / client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByBotOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Webhook ingress: secret verification is scoped to this route only.
	webhook := handlers.NewWebhook(wh.Bots, wh.Queue, wh.Dispatch)
	r.POST("/webhook/:slug", middleware.SecretToken(cfg.WebhookSecret), webhook.Receive)

	// Dependency injection: handlers ← repo shims over the shared db handle.
	h := handlers.New(db, botSvcShim{db: db}, chatSvcShim{db: db}, msgSvcShim{db: db}, formSvcShim{db: db})

	// Operator API (read-only, compressed)
	api := r.Group("/api/v1", gzip.Gzip(gzip.DefaultCompression))
	{
		// Bots and chats
		api.GET("/bots", h.ListBots)
		api.GET("/bots/:id/chats", h.ListChats)

		// Messages
		api.GET("/chats/:id/messages", h.ListMessages)
		api.GET("/chats/:id/messages/search", h.SearchMessages)

		// Conversation state
		api.GET("/forms", h.ListForms)
		api.GET("/forms/:id", h.GetForm)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
