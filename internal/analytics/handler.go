package analytics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/pkg/response"
)

// Handler exposes the analytics endpoints.
type Handler struct {
	agg    *Aggregator
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(agg *Aggregator, logger *zap.Logger) *Handler {
	return &Handler{agg: agg, logger: logger}
}

// Snapshots handles GET /streams/:id/analytics/snapshots.
func (h *Handler) Snapshots(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}
	q, err := parseSnapshotQuery(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	snaps, err := h.agg.ListSnapshots(c.Request.Context(), streamID, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"snapshots": snaps, "count": len(snaps)})
}

// Report handles GET /streams/:id/analytics/report.
func (h *Handler) Report(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}

	q, err := parseSnapshotQuery(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	report, err := h.agg.GenerateStreamReport(c.Request.Context(), streamID, Window{Since: q.Since, Until: q.Until})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// Export handles POST /streams/:id/analytics/export.
func (h *Handler) Export(c *gin.Context) {
	streamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid stream id")
		return
	}

	exported, err := h.agg.ExportReport(c.Request.Context(), streamID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exported)
}

func parseSnapshotQuery(c *gin.Context) (SnapshotQuery, error) {
	var q SnapshotQuery
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
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("invalid limit")
		}
		q.Limit = n
	}
	return q, nil
}
