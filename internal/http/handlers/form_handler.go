// Form state HTTP handlers.
//
// This file exposes the operator endpoints for conversation state:
//   - GET /forms        (list form states, paginated, ?active=true filter)
//   - GET /forms/{id}   (one form state with its per-field rows)
//
// These endpoints are read-only; form rows are written exclusively by the
// dispatcher while conversations run.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/londkevich/go-chatbot/internal/domain"
	"github.com/londkevich/go-chatbot/internal/repo"
)

//
// DTOs
//

// ListFormsResponse wraps a page of form states and pagination information.
type ListFormsResponse struct {
	Forms      []domain.FormState `json:"forms"`
	Pagination Pagination         `json:"pagination"`
}

// FormDetailResponse is one form state with its field decomposition.
type FormDetailResponse struct {
	Form   *domain.FormState  `json:"form"`
	Fields []domain.FieldState `json:"fields"`
}

//
// Handlers
//

// ListForms returns a page of form states, newest first. Passing
// ?active=true restricts the page to unfinished conversations.
func (h *Handlers) ListForms(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)
	activeOnly := c.Query("active") == "true"

	items, total, err := h.formSvc.ListPage(ctx, activeOnly, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, ListFormsResponse{
		Forms:      items,
		Pagination: paginate(page, pageSize, total),
	})
}

// GetForm returns one form state with its field rows.
func (h *Handlers) GetForm(c *gin.Context) {
	ctx := c.Request.Context()
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	form, fields, err := h.formSvc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "form state not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	ok(c, http.StatusOK, FormDetailResponse{Form: form, Fields: fields})
}
