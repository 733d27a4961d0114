package rules

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mailgate/internal/constants"
	"mailgate/internal/logger"
	"mailgate/pkg/cel"
	"mailgate/pkg/errors"
)

type Handler struct {
	service Service
	logger  logger.Logger
}

func NewHandler(service Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  log,
	}
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	filters := admin.Group("/filters")
	{
		filters.GET("", h.ListRules)
		filters.POST("", h.CreateRule)
		filters.GET("/examples", h.QueryExamples)
		filters.GET("/:id", h.GetRule)
		filters.PATCH("/:id", h.UpdateRule)
		filters.DELETE("/:id", h.DeleteRule)
	}

	admin.GET("/audit", h.GetAuditLogs)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

// ListRules returns every stored rule in evaluation order.
func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.service.ListFilterRules(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req CreateFilterRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.service.CreateFilterRule(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) GetRule(c *gin.Context) {
	id := c.Param("id")
	rule, err := h.service.GetFilterRule(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

func (h *Handler) UpdateRule(c *gin.Context) {
	id := c.Param("id")
	var req UpdateFilterRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	rule, err := h.service.UpdateFilterRule(c.Request.Context(), id, req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, rule)
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.DeleteFilterRule(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// QueryExamples serves the sample queries the dashboard shows next to
// the rule editor.
func (h *Handler) QueryExamples(c *gin.Context) {
	c.JSON(http.StatusOK, cel.QueryExamples)
}

func (h *Handler) GetAuditLogs(c *gin.Context) {
	ruleID := c.Query("rule_id")
	limit := parseLimit(c.Query("limit"))

	var ruleIDPtr *string
	if ruleID != "" {
		ruleIDPtr = &ruleID
	}

	logs, err := h.service.GetAuditLogs(c.Request.Context(), ruleIDPtr, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultEventLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 {
		return constants.DefaultEventLimit
	}
	if parsed > constants.MaxEventLimit {
		return constants.MaxEventLimit
	}
	return parsed
}
