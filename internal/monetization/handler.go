package monetization

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/middleware"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/response"
)

// Handler exposes the monetization endpoints.
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

// NewHandler creates a monetization handler.
func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// DonationRequest is the body for POST /streams/:id/donations.
type DonationRequest struct {
	AmountCents int64           `json:"amount_cents"`
	Currency    models.Currency `json:"currency"`
	Message     string          `json:"message"`
	Anonymous   bool            `json:"anonymous"`
}

// Donate handles POST /streams/:id/donations.
func (h *Handler) Donate(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req DonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	d, entry, err := h.engine.ProcessDonation(c.Request.Context(), streamID, userID, req.AmountCents, req.Currency, req.Message, req.Anonymous)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"donation": d, "revenue_entry": entry})
}

// SuperChatRequest is the body for POST /streams/:id/superchats.
type SuperChatRequest struct {
	AmountCents int64           `json:"amount_cents"`
	Currency    models.Currency `json:"currency"`
	Message     string          `json:"message"`
}

// SuperChat handles POST /streams/:id/superchats.
func (h *Handler) SuperChat(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req SuperChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	sc, entry, err := h.engine.ProcessSuperChat(c.Request.Context(), streamID, userID, req.AmountCents, req.Currency, req.Message)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"super_chat": sc, "revenue_entry": entry})
}

// SubscribeRequest is the body for POST /streams/:id/subscriptions.
type SubscribeRequest struct {
	Tier     models.SubscriptionTier `json:"tier"`
	Currency models.Currency         `json:"currency"`
	GiftTo   *uuid.UUID              `json:"gift_to"`
}

// Subscribe handles POST /streams/:id/subscriptions.
func (h *Handler) Subscribe(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	sub, entry, err := h.engine.ProcessSubscription(c.Request.Context(), streamID, userID, req.Tier, req.Currency, req.GiftTo)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"subscription": sub, "revenue_entry": entry})
}

// Revenue handles GET /streams/:id/revenue.
func (h *Handler) Revenue(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}

	q, err := parseRevenueQuery(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	breakdown, err := h.engine.GetRevenue(c.Request.Context(), streamID, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, breakdown)
}

func parseRevenueQuery(c *gin.Context) (RevenueQuery, error) {
	var q RevenueQuery
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, fmt.Errorf("invalid since timestamp")
		}
		q.Since = &t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return q, fmt.Errorf("invalid until timestamp")
		}
		q.Until = &t
	}
	if v := c.Query("type"); v != "" {
		t := models.RevenueType(v)
		q.EntryType = &t
	}
	if v := c.Query("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return q, fmt.Errorf("invalid user_id")
		}
		q.UserID = &id
	}
	if v := c.Query("min_amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, fmt.Errorf("invalid min_amount")
		}
		q.MinAmount = &n
	}
	if v := c.Query("max_amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, fmt.Errorf("invalid max_amount")
		}
		q.MaxAmount = &n
	}
	return q, nil
}
