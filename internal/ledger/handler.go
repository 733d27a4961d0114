package ledger

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mailgate/internal/constants"
	"mailgate/internal/logger"
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
	admin.GET("/events", h.ListEvents)
}

// ListEvents returns the most recent ledger entries, newest first.
func (h *Handler) ListEvents(c *gin.Context) {
	limit := constants.DefaultEventLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
				errors.ErrValidation.WithDetail("message", "limit must be a positive integer")))
			return
		}
		limit = parsed
	}

	events, err := h.service.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
		c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
		return
	}

	c.JSON(http.StatusOK, events)
}
