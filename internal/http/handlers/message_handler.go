// Message HTTP handlers.
//
// This file exposes REST endpoints for chat messages:
//   - GET /chats/{id}/messages          (list paginated messages for a chat)
//   - GET /chats/{id}/messages/search   (rank a chat's messages against a query)
//
// Handlers are transport-thin:
//   - validate & normalize inputs
//   - delegate to application services (MessageService)
//   - implement conditional responses (ETag)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/repo"
	"github.com/londkevich/go-chatbot/internal/utils"
)

//
// DTOs
//

// ListMessagesResponse contains a page of chat messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// MessageHit is one ranked search result.
type MessageHit struct {
	MessageID uint    `json:"message_id"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
}

// SearchMessagesResponse contains ranked hits for a message search.
type SearchMessagesResponse struct {
	Query string       `json:"query"`
	Hits  []MessageHit `json:"hits"`
}

//
// Handlers
//

// ListMessages returns a page of a chat's messages in chronological order.
// Supports weak ETag via If-None-Match and may return 304.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chatID, okID := pathID(c, "id")
	if !okID {
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if h.db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, h.db, chatID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%d:%d:%d"`, chatID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.msgSvc.ListPage(ctx, chatID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginate(page, pageSize, total),
	})
}

// SearchMessages ranks a chat's messages against the q query parameter.
// k bounds the number of hits (default 5, max 50).
func (h *Handlers) SearchMessages(c *gin.Context) {
	ctx := c.Request.Context()
	chatID, okID := pathID(c, "id")
	if !okID {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q query parameter required")
		return
	}
	k := utils.AtoiDefault(c.Query("k"), 5)
	if k < 1 {
		k = 1
	}
	if k > 50 {
		k = 50
	}

	hits, err := h.msgSvc.Search(ctx, chatID, query, k)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		return
	}
	if hits == nil {
		hits = []MessageHit{}
	}
	ok(c, http.StatusOK, SearchMessagesResponse{Query: query, Hits: hits})
}
