// Bot and chat HTTP handlers.
//
// This file exposes the read-only operator endpoints for bot accounts and
// their conversations:
//   - GET /bots                 (list configured bots)
//   - GET /bots/{id}/chats      (list chats, paginated, ETag support)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/repo"
	"github.com/londkevich/go-chatbot/internal/utils"
)

//
// Service contracts (context-aware)
//

// BotService lists the configured bot accounts.
type BotService interface {
	List(ctx context.Context) ([]domain.Bot, error)
}

// ChatService defines chat retrieval operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// ListPage returns a page of a bot's chats and the total count.
	ListPage(ctx context.Context, botID uint, page, pageSize int) ([]domain.Chat, int64, error)
}

// MessageService defines message retrieval operations.
type MessageService interface {
	// ListPage returns a page of messages within a chat and the total count.
	ListPage(ctx context.Context, chatID uint, page, pageSize int) ([]domain.Message, int64, error)
	// Search ranks a chat's messages against a free-text query.
	Search(ctx context.Context, chatID uint, query string, k int) ([]MessageHit, error)
}

// FormService defines conversation-state retrieval operations.
type FormService interface {
	// ListPage returns a page of form states, optionally only unfinished ones.
	ListPage(ctx context.Context, activeOnly bool, page, pageSize int) ([]domain.FormState, int64, error)
	// Get returns one form state with its per-field rows.
	Get(ctx context.Context, id uint) (*domain.FormState, []domain.FieldState, error)
}

//
// Handler wiring
//

// Handlers groups the operator API endpoints for bots, chats, messages, and
// form states. It depends on abstract service interfaces to keep transport
// concerns separate from business logic. DB, when set, enables cheap ETag
// pre-checks from aggregate stats.
type Handlers struct {
	db      *gorm.DB
	botSvc  BotService
	chatSvc ChatService
	msgSvc  MessageService
	formSvc FormService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(db *gorm.DB, botSvc BotService, chatSvc ChatService, msgSvc MessageService, formSvc FormService) *Handlers {
	return &Handlers{db: db, botSvc: botSvc, chatSvc: chatSvc, msgSvc: msgSvc, formSvc: formSvc}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListBotsResponse wraps the configured bot accounts.
type ListBotsResponse struct {
	Bots []domain.Bot `json:"bots"`
}

// ListChatsResponse wraps a page of chats and pagination information.
type ListChatsResponse struct {
	Chats      []domain.Chat `json:"chats"`
	Pagination Pagination    `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// pathID parses a numeric path parameter, failing the request with 400 when
// it is not a positive integer.
func pathID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || v == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return uint(v), true
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// ListBots returns every configured bot account. Tokens are never serialized
// (the model excludes them from JSON).
func (h *Handlers) ListBots(c *gin.Context) {
	bots, err := h.botSvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListBotsResponse{Bots: bots})
}

// ListChats returns a page of a bot's chats. Supports weak ETag via
// If-None-Match and may return 304.
func (h *Handlers) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	botID, okID := pathID(c, "id")
	if !okID {
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if h.db != nil {
		count, maxTS, err := repo.ChatsStats(ctx, h.db, botID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"chats:%d:%d:%d"`, botID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.chatSvc.ListPage(ctx, botID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListChatsResponse{
		Chats:      items,
		Pagination: paginate(page, pageSize, total),
	})
}
