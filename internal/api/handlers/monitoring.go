package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evalabs/opswatch/internal/db"
	"github.com/evalabs/opswatch/internal/monitor"
)

const servicesCacheKey = "opswatch:services"

type servicesResponse struct {
	Services  []monitor.ServiceStatusItem `json:"services"`
	CheckedAt time.Time                   `json:"checked_at"`
}

func itemsFromResults(results []monitor.CheckResult) []monitor.ServiceStatusItem {
	items := make([]monitor.ServiceStatusItem, len(results))
	for i, r := range results {
		items[i] = monitor.ResultItem(r)
	}
	return items
}

func latestCheckedAt(items []monitor.ServiceStatusItem) time.Time {
	var latest time.Time
	for _, item := range items {
		if item.CheckedAt != nil && item.CheckedAt.After(latest) {
			latest = *item.CheckedAt
		}
	}
	if latest.IsZero() {
		return time.Now().UTC()
	}
	return latest
}

// GetServices serves the dashboard snapshot, refreshing out-of-band when
// the snapshot is stale. Without a configured store it serves a live,
// unpersisted cycle: the caller always gets a full list of known checks.
func (h *Handler) GetServices(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		var cached servicesResponse
		if ok, err := h.cache.GetJSON(ctx, servicesCacheKey, &cached); err == nil && ok {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	var items []monitor.ServiceStatusItem
	if h.repo == nil {
		items = itemsFromResults(h.engine.RunCycleOnce(ctx))
	} else {
		snapshot, err := h.engine.LatestSnapshot(ctx)
		if err != nil {
			// Store briefly unreachable: run a live, unpersisted cycle
			// rather than returning nothing.
			h.logger.Error("failed to load monitoring snapshot", zap.Error(err))
			items = itemsFromResults(h.engine.RunLiveChecks(ctx))
		} else {
			items = snapshot
			if h.engine.ShouldRefresh(items) && h.refresh.Allow() {
				items = itemsFromResults(h.engine.RunCycleOnce(ctx))
			}
		}
	}

	resp := servicesResponse{Services: items, CheckedAt: latestCheckedAt(items)}

	if h.cache != nil {
		if err := h.cache.SetJSON(ctx, servicesCacheKey, resp, h.snapshotTTL); err != nil {
			h.logger.Warn("failed to cache services snapshot", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetOverview(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusOK, db.Overview{})
		return
	}

	overview, err := h.repo.OverviewCounts(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load monitoring overview", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (h *Handler) ListIssues(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusOK, []*db.Issue{})
		return
	}

	issues, err := h.repo.ListIssues(c.Request.Context(), c.Query("status"), c.Query("severity"))
	if err != nil {
		h.logger.Error("failed to list issues", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, issues)
}

func (h *Handler) ListChecks(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusOK, []*db.CheckRow{})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	checks, err := h.repo.ListChecks(c.Request.Context(), c.Query("service"), limit)
	if err != nil {
		h.logger.Error("failed to list checks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, checks)
}

// AcknowledgeIssue and ResolveIssue are manual operator overrides,
// bypassing the probe-driven rules; the next failing cycle may
// legitimately reopen a manually resolved issue.

func (h *Handler) AcknowledgeIssue(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Monitoring store is not configured"})
		return
	}

	issue, err := h.repo.AcknowledgeIssue(c.Request.Context(), c.Param("id"), time.Now().UTC())
	switch {
	case errors.Is(err, db.ErrIssueNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		return
	case errors.Is(err, db.ErrIssueAlreadyResolved):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Issue is already resolved"})
		return
	case err != nil:
		h.logger.Error("failed to acknowledge issue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, issue)
}

func (h *Handler) ResolveIssue(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Monitoring store is not configured"})
		return
	}

	issue, err := h.repo.ResolveIssue(c.Request.Context(), c.Param("id"), time.Now().UTC())
	switch {
	case errors.Is(err, db.ErrIssueNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Issue not found"})
		return
	case err != nil:
		h.logger.Error("failed to resolve issue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, issue)
}
