package engagement

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulselive/backend/internal/middleware"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/response"
)

// Handler exposes the engagement ledger over HTTP.
type Handler struct {
	ledger *Ledger
}

// NewHandler creates an engagement handler.
func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// ChatRequest is the body for POST /streams/:id/chat.
type ChatRequest struct {
	Text string          `json:"text" binding:"required"`
	Type models.ChatType `json:"type"`
}

// PostChat handles POST /streams/:id/chat.
func (h *Handler) PostChat(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	msg, err := h.ledger.AppendChat(c.Request.Context(), streamID, userID, req.Text, req.Type)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// ListChat handles GET /streams/:id/chat with optional since/until/user_id/
// type/limit/offset/sort query parameters.
func (h *Handler) ListChat(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	q, err := parseChatQuery(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msgs, err := h.ledger.ListChat(c.Request.Context(), streamID, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	response.OK(c, msgs)
}

// ReactionRequest is the body for POST /streams/:id/reactions.
type ReactionRequest struct {
	Type models.ReactionType `json:"type" binding:"required"`
}

// AddReaction handles POST /streams/:id/reactions.
func (h *Handler) AddReaction(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	reaction, err := h.ledger.AddReaction(c.Request.Context(), streamID, userID, req.Type)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reaction)
}

// RemoveReaction handles DELETE /streams/:id/reactions.
func (h *Handler) RemoveReaction(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if err := h.ledger.RemoveReaction(c.Request.Context(), streamID, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListReactions handles GET /streams/:id/reactions.
func (h *Handler) ListReactions(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	reactions, err := h.ledger.ListReactions(c.Request.Context(), streamID)
	if err != nil {
		response.Error(c, err)
		return
	}
	counts, err := h.ledger.ReactionCounts(c.Request.Context(), streamID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	response.OK(c, gin.H{"reactions": reactions, "counts": counts})
}

func parseChatQuery(c *gin.Context) (ChatQuery, error) {
	var q ChatQuery
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errInvalidParam("since")
		}
		q.Since = &t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, errInvalidParam("until")
		}
		q.Until = &t
	}
	if v := c.Query("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return q, errInvalidParam("user_id")
		}
		q.UserID = &id
	}
	if v := c.Query("type"); v != "" {
		t := models.ChatType(v)
		if !models.ValidChatType(t) {
			return q, errInvalidParam("type")
		}
		q.Type = &t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, errInvalidParam("limit")
		}
		q.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, errInvalidParam("offset")
		}
		q.Offset = n
	}
	q.SortAsc = c.Query("sort") == "asc"
	return q, nil
}

type paramError struct{ name string }

func (e paramError) Error() string { return "invalid query parameter: " + e.name }

func errInvalidParam(name string) error { return paramError{name: name} }
