package polls

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulselive/backend/internal/middleware"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/response"
)

// Handler exposes the poll engine over HTTP.
type Handler struct {
	engine *Engine
}

// NewHandler creates a polls handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// CreateRequest is the body for POST /streams/:id/polls.
type CreateRequest struct {
	Question      string   `json:"question" binding:"required"`
	Options       []string `json:"options" binding:"required"`
	AllowMultiple bool     `json:"allow_multiple"`
}

// Create handles POST /streams/:id/polls (owner-only).
func (h *Handler) Create(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	poll, options, err := h.engine.CreatePoll(c.Request.Context(), streamID, userID, req.Question, req.Options, req.AllowMultiple)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"poll": poll, "options": options})
}

// VoteRequest is the body for POST /polls/:id/vote.
type VoteRequest struct {
	OptionIDs []uuid.UUID `json:"option_ids" binding:"required"`
}

// Vote handles POST /polls/:id/vote.
func (h *Handler) Vote(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	vote, err := h.engine.Vote(c.Request.Context(), pollID, userID, req.OptionIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, vote)
}

// Close handles POST /polls/:id/close (owner-only).
func (h *Handler) Close(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	poll, err := h.engine.ClosePoll(c.Request.Context(), pollID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, poll)
}

// Stats handles GET /polls/:id/stats.
func (h *Handler) Stats(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	stats, err := h.engine.GetStats(c.Request.Context(), pollID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// ListByStream handles GET /streams/:id/polls.
func (h *Handler) ListByStream(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	list, err := h.engine.ListByStream(c.Request.Context(), streamID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []models.Poll{}
	}
	response.OK(c, list)
}
