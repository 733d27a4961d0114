package actions

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailgate/internal/logger"
	"mailgate/pkg/errors"
)

type Handler struct {
	dispatcher *Dispatcher
	logger     logger.Logger
}

func NewHandler(dispatcher *Dispatcher, log logger.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		logger:     log,
	}
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	actions := admin.Group("/actions")
	{
		actions.POST("/:action", h.TriggerAction)
		actions.GET("/watch-status", h.GetWatchStatus)
	}
}

// TriggerAction accepts a maintenance action by name. Known actions are
// acknowledged with 202 and run out-of-band; progress shows up on the
// event ledger rather than in the response.
func (h *Handler) TriggerAction(c *gin.Context) {
	action := c.Param("action")

	result, err := h.dispatcher.Trigger(c.Request.Context(), action)
	if err != nil {
		h.logger.ErrorwCtx(c.Request.Context(), "Action trigger rejected",
			"action", action,
			"error", err,
		)
		c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
		return
	}

	c.JSON(http.StatusAccepted, result)
}

func (h *Handler) GetWatchStatus(c *gin.Context) {
	status, err := h.dispatcher.WatchStatus(c.Request.Context())
	if err != nil {
		c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, status)
}
