package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/research-comb/app/database"
	"github.com/lysyi3m/research-comb/app/fetch"
	"github.com/lysyi3m/research-comb/app/monitor"
	"github.com/lysyi3m/research-comb/app/research"
	"github.com/lysyi3m/research-comb/app/tasks"
)

const defaultQueryListLimit = 50

func NewHandler(queryRepo database.QueryRepository, resultRepo database.ResultRepository,
	archiveRepo database.ArchiveRepository, monitorRepo database.MonitorRepository,
	configCache *monitor.ConfigCache, searcher SearchService, usage UsageService,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		queryRepo:   queryRepo,
		resultRepo:  resultRepo,
		archiveRepo: archiveRepo,
		monitorRepo: monitorRepo,
		configCache: configCache,
		searcher:    searcher,
		usage:       usage,
		generator:   monitor.NewGenerator(),
		scheduler:   scheduler,
	}
}

func (h *Handler) GetMonitorFeed(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	monitorConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Monitor configuration not found", "monitor", name, "error", err)
		c.Status(http.StatusNotFound)
		return
	}

	stored, err := h.monitorRepo.GetMonitor(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_monitor", "monitor", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	if stored == nil {
		slog.Error("Monitor not found in database", "monitor", name)
		c.Status(http.StatusNotFound)
		return
	}

	results, err := h.resultRepo.GetVisibleMonitorResults(name, monitorConfig.Settings.MaxResults)
	if err != nil {
		slog.Error("Database error", "operation", "get_results", "monitor", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(*stored, results)
	if err != nil {
		slog.Error("RSS generation error", "monitor", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Monitor-Results", strconv.Itoa(len(results)))
	c.Header("X-Monitor-Name", name)
	c.Header("X-Last-Updated", stored.UpdatedAt.Format(time.RFC3339))

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if monitorCount, err := h.monitorRepo.GetMonitorCount(); err == nil {
		health["monitors"] = monitorCount
	}

	health["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIValidateURL(c *gin.Context) {
	var req validateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	outcome := fetch.Validate(req.URL)
	response := gin.H{"valid": outcome.Valid}
	if outcome.Valid {
		response["url"] = outcome.URL.String()
	} else {
		response["reason"] = string(outcome.Reason)
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) APICreateSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	outcome, err := h.searcher.ExecuteSearch(c.Request.Context(), research.Options{
		UserID:         req.UserID,
		Tier:           req.Tier,
		QueryText:      req.Query,
		Mode:           req.Mode,
		SearchType:     req.SearchType,
		Sources:        req.Sources,
		FeedURLs:       req.FeedURLs,
		DateRangeStart: req.DateRangeStart,
		DateRangeEnd:   req.DateRangeEnd,
		Jurisdiction:   req.Jurisdiction,
		ProjectID:      req.ProjectID,
		MaxResults:     req.MaxResults,
	})
	if err != nil {
		h.searchError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"query_id":   outcome.QueryID,
		"fetched":    outcome.Fetched,
		"duplicates": outcome.Duplicates,
		"filtered":   outcome.Filtered,
		"results":    newResultResponses(outcome.Results),
	})
}

func (h *Handler) searchError(c *gin.Context, err error) {
	var quotaErr *research.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		response := gin.H{"error": quotaErr.Reason, "limits": quotaErr.Limits}
		if quotaErr.Usage != nil {
			response["usage"] = quotaErr.Usage
		}
		c.JSON(http.StatusForbidden, response)
	case errors.Is(err, research.ErrInvalidOptions):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("Search failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed", "details": err.Error()})
	}
}

func (h *Handler) APIGetSearch(c *gin.Context) {
	id := c.Param("id")

	query, err := h.queryRepo.GetQuery(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_query", "query_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if query == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Search not found"})
		return
	}

	results, err := h.resultRepo.GetQueryResults(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_query_results", "query_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"search":  newQueryResponse(*query),
		"results": newResultResponses(results),
	})
}

func (h *Handler) APIListSearches(c *gin.Context) {
	userID := c.Query("user")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user parameter"})
		return
	}

	limit := defaultQueryListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	queries, err := h.queryRepo.ListQueries(userID, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_queries", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	searches := make([]queryResponse, 0, len(queries))
	for _, query := range queries {
		searches = append(searches, newQueryResponse(query))
	}

	c.JSON(http.StatusOK, gin.H{
		"searches": searches,
		"total":    len(searches),
	})
}

func (h *Handler) APIGetUsage(c *gin.Context) {
	userID := c.Param("user")

	stats, err := h.usage.UsageStats(userID, c.Query("tier"))
	if err != nil {
		slog.Error("Database error", "operation", "usage_stats", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIGetResult(c *gin.Context) {
	id := c.Param("id")

	result, err := h.resultRepo.GetResult(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_result", "result_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Result not found"})
		return
	}

	c.JSON(http.StatusOK, newResultResponse(*result))
}

func (h *Handler) APISaveResult(c *gin.Context) {
	id := c.Param("id")

	var req saveResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.searcher.SaveResult(req.UserID, id, req.ProjectID, req.Notes, req.Tags)
	if err != nil {
		h.resultError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, newResultResponse(*result))
}

func (h *Handler) APIArchiveResult(c *gin.Context) {
	id := c.Param("id")

	var req archiveResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.resultRepo.GetResult(id)
	if err != nil {
		h.resultError(c, id, err)
		return
	}
	if result == nil {
		h.resultError(c, id, research.ErrResultNotFound)
		return
	}
	if result.UserID != req.UserID {
		h.resultError(c, id, research.ErrNotOwner)
		return
	}

	if outcome := fetch.Validate(result.SourceURL); !outcome.Valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": string(outcome.Reason)})
		return
	}

	taskID, err := h.scheduler.ArchiveResult(req.UserID, id)
	if err != nil {
		slog.Error("Error enqueueing archive task", "result_id", id, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue archive task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"result_id": id,
		"task": gin.H{
			"id":   taskID,
			"type": tasks.TaskTypeArchiveResult,
		},
	})
}

func (h *Handler) resultError(c *gin.Context, id string, err error) {
	switch {
	case errors.Is(err, research.ErrResultNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Result not found"})
	case errors.Is(err, research.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Result belongs to another user"})
	default:
		slog.Error("Database error", "operation", "result", "result_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
	}
}

func (h *Handler) APIGetArchive(c *gin.Context) {
	id := c.Param("id")

	archive, err := h.archiveRepo.GetArchive(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_archive", "archive_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            archive.ID,
		"user_id":       archive.UserID,
		"result_id":     archive.ResultID,
		"original_url":  archive.OriginalURL,
		"final_url":     archive.FinalURL,
		"canonical_url": archive.CanonicalURL,
		"title":         archive.Title,
		"content_type":  archive.ContentType,
		"content_hash":  archive.ContentHash,
		"markdown":      archive.Markdown,
		"content":       archive.Content,
		"created_at":    archive.CreatedAt,
	})
}

func (h *Handler) APIListMonitors(c *gin.Context) {
	configs := h.configCache.GetConfigs()

	monitors := make([]map[string]interface{}, 0, len(configs))

	for _, monitorConfig := range configs {
		monitorInfo := map[string]interface{}{
			"name":        monitorConfig.Name,
			"user_id":     monitorConfig.UserID,
			"query":       monitorConfig.Query,
			"sources":     monitorConfig.Sources,
			"frequency":   monitorConfig.Frequency,
			"enabled":     monitorConfig.Settings.Enabled,
			"max_results": monitorConfig.Settings.MaxResults,
			"filters":     len(monitorConfig.Filters),
			"active":      false,
		}

		if stored, err := h.monitorRepo.GetMonitor(monitorConfig.Name); err == nil && stored != nil {
			monitorInfo["active"] = stored.IsActive
			monitorInfo["last_run_at"] = stored.LastRunAt
			monitorInfo["next_run_at"] = stored.NextRunAt
			monitorInfo["new_results"] = stored.NewResults
			monitorInfo["updated_at"] = stored.UpdatedAt
		}

		monitors = append(monitors, monitorInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"monitors": monitors,
		"total":    len(monitors),
	})
}

func (h *Handler) APIGetMonitorDetails(c *gin.Context) {
	name := c.Param("name")

	monitorConfig, err := h.configCache.GetConfig(name)
	if err != nil {
		slog.Error("Monitor configuration not found", "monitor", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor configuration not found"})
		return
	}

	stored, err := h.monitorRepo.GetMonitor(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_monitor", "monitor", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if stored == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor not found in database"})
		return
	}

	details := map[string]interface{}{
		"name":        name,
		"user_id":     monitorConfig.UserID,
		"tier":        monitorConfig.Tier,
		"query":       monitorConfig.Query,
		"sources":     monitorConfig.Sources,
		"feeds":       monitorConfig.Feeds,
		"frequency":   monitorConfig.Frequency,
		"enabled":     monitorConfig.Settings.Enabled,
		"max_results": monitorConfig.Settings.MaxResults,
		"timeout":     (time.Duration(monitorConfig.Settings.Timeout) * time.Second).String(),
		"filters":     monitorConfig.Filters,
	}

	details["database"] = map[string]interface{}{
		"active":        stored.IsActive,
		"last_run_at":   stored.LastRunAt,
		"next_run_at":   stored.NextRunAt,
		"total_results": stored.TotalResults,
		"new_results":   stored.NewResults,
		"last_query_id": stored.LastQueryID,
		"created_at":    stored.CreatedAt,
		"updated_at":    stored.UpdatedAt,
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) APIRunMonitor(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.configCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor configuration not found"})
		return
	}

	taskID, err := h.scheduler.RunMonitor(name)
	if err != nil {
		slog.Error("Error enqueueing run task", "monitor", name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue run task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"monitor": name,
		"task": gin.H{
			"id":   taskID,
			"type": tasks.TaskTypeRunMonitor,
		},
	})
}

func (h *Handler) APIReloadMonitor(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.configCache.GetConfig(name); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Monitor configuration not found"})
		return
	}

	if err := h.scheduler.ReloadMonitor(name); err != nil {
		slog.Error("Error reloading configuration", "monitor", name, "error", err)

		status := http.StatusBadRequest
		if errors.Is(err, tasks.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	monitorConfig, _ := h.configCache.GetConfig(name)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and sync task enqueued successfully",
		"monitor": gin.H{
			"name":    name,
			"query":   monitorConfig.Query,
			"enabled": monitorConfig.Settings.Enabled,
		},
	})
}
