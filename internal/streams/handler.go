package streams

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pulselive/backend/internal/middleware"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/response"
)

// Handler exposes the registry over HTTP.
type Handler struct {
	registry *Registry
}

// NewHandler creates a streams handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// CreateRequest is the body for POST /streams.
type CreateRequest struct {
	ChannelID uuid.UUID `json:"channel_id" binding:"required"`
	Title     string    `json:"title" binding:"required"`
}

// Create handles POST /streams.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	s, err := h.registry.Create(c.Request.Context(), userID, req.ChannelID, req.Title)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, s)
}

// Get handles GET /streams/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	s, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	// the ingest key is owner-only
	if callerID, ok := c.Get(middleware.ContextUserID); !ok || callerID.(uuid.UUID) != s.OwnerID {
		s.StreamKey = ""
	}
	response.OK(c, s)
}

// ListLive handles GET /streams.
func (h *Handler) ListLive(c *gin.Context) {
	list, err := h.registry.ListLive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	for i := range list {
		list[i].StreamKey = ""
	}
	response.OK(c, list)
}

// Start handles POST /streams/:id/start.
func (h *Handler) Start(c *gin.Context) { h.transition(c, h.registry.Start) }

// Stop handles POST /streams/:id/stop.
func (h *Handler) Stop(c *gin.Context) { h.transition(c, h.registry.Stop) }

// Pause handles POST /streams/:id/pause.
func (h *Handler) Pause(c *gin.Context) { h.transition(c, h.registry.Pause) }

// Resume handles POST /streams/:id/resume.
func (h *Handler) Resume(c *gin.Context) { h.transition(c, h.registry.Resume) }

// Cancel handles POST /streams/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) { h.transition(c, h.registry.Cancel) }

// ViewersRequest is the body for PUT /streams/:id/viewers.
type ViewersRequest struct {
	Count      int        `json:"count"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// UpdateViewers handles PUT /streams/:id/viewers. Called by the presence
// collaborator; the hub audience callback feeds the same path.
func (h *Handler) UpdateViewers(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	var req ViewersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	at := time.Now().UTC()
	if req.ObservedAt != nil {
		at = *req.ObservedAt
	}
	s, err := h.registry.UpdateViewerCount(c.Request.Context(), id, req.Count, at)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"viewer_count": s.ViewerCount, "peak_viewer_count": s.PeakViewerCount})
}

// ChatToggleRequest is the body for PATCH /streams/:id/chat.
type ChatToggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetChatEnabled handles PATCH /streams/:id/chat.
func (h *Handler) SetChatEnabled(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	var req ChatToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	s, err := h.registry.SetChatEnabled(c.Request.Context(), id, userID, *req.Enabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"id": s.ID, "chat_enabled": s.ChatEnabled})
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, id, callerID uuid.UUID) (*models.LiveStream, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	s, err := fn(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, s)
}
