// Webhook ingress.
//
// This file exposes the single endpoint the messaging platform delivers to:
//
//	POST /webhook/{slug}
//
// The handler is deliberately minimal: resolve the bot behind the slug, read
// the raw delivery, hand it to the background queue, and acknowledge. All
// parsing, persistence, and routing happens in the dispatcher on a worker;
// holding the platform's HTTP connection open for that work would invite
// timeouts and redeliveries.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/http/middleware"
	"github.com/londkevich/go-chatbot/internal/services"
	"github.com/londkevich/go-chatbot/internal/tasks"
)

// maxWebhookBody caps the accepted delivery size. Platform updates are small;
// anything above this is not an update.
const maxWebhookBody = 1 << 20 // 1 MiB

// DispatchFunc processes one raw webhook delivery for a bot.
type DispatchFunc func(ctx context.Context, bot *domain.Bot, client services.TelegramAPI, raw []byte) error

// Enqueuer is the background queue contract used by the webhook handler.
type Enqueuer interface {
	Enqueue(job tasks.Job) bool
}

// Webhook handles platform deliveries for all managed bots.
type Webhook struct {
	// Bots maps token slug to the managed bot it belongs to.
	Bots map[string]*services.ManagedBot
	// Queue decouples acknowledgment from processing.
	Queue Enqueuer
	// Dispatch runs on a queue worker for each delivery.
	Dispatch DispatchFunc
}

// NewWebhook constructs the webhook handler.
func NewWebhook(bots map[string]*services.ManagedBot, queue Enqueuer, dispatch DispatchFunc) *Webhook {
	return &Webhook{Bots: bots, Queue: queue, Dispatch: dispatch}
}

// Receive accepts one webhook delivery.
//
// Responses:
//   - 200 {"ok":true}   delivery accepted and queued
//   - 404 unknown_bot   no bot registered under the slug
//   - 400 bad_request   unreadable or non-JSON body
//   - 503 enqueue_failed queue full; the platform retries unacknowledged
//     deliveries, and the update_id dedupe makes the retry safe
func (h *Webhook) Receive(c *gin.Context) {
	slug := c.Param("slug")
	mb, found := h.Bots[slug]
	if !found {
		fail(c, http.StatusNotFound, ErrCodeUnknownBot, "no bot registered under this path")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}
	if len(raw) == 0 || !json.Valid(raw) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be a JSON update")
		return
	}

	lg := middleware.LoggerFrom(c)
	bot, client := mb.Bot, mb.Client
	queued := h.Queue.Enqueue(func(ctx context.Context) error {
		return h.Dispatch(ctx, bot, client, raw)
	})
	if !queued {
		// Not acknowledged: the platform redelivers later.
		fail(c, http.StatusServiceUnavailable, ErrCodeEnqueueFailed, "queue full, retry later")
		return
	}

	lg.Debug().Str("bot", bot.Name).Int("bytes", len(raw)).Msg("update queued")
	ok(c, http.StatusOK, gin.H{"ok": true})
}
