package evaluator

import (
	"mailgate/internal/config_handler"
	"mailgate/internal/logger"
	"mailgate/pkg/models"
)

type Handler = config_handler.Handler

func NewHandler(service *Service, log logger.Logger) *Handler {
	return config_handler.NewHandler(
		models.EventTypeFilterRuleUpdated,
		service,
		log,
	)
}
