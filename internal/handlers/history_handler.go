package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/models"
	"github.com/consometers/sge-tiers-proxy/internal/service"
	"github.com/consometers/sge-tiers-proxy/internal/utils"
)

// HistoryHandler serves one-shot history queries.
type HistoryHandler struct {
	history *service.HistoryService
	logger  *logrus.Logger
}

// NewHistoryHandler creates a new HistoryHandler instance.
func NewHistoryHandler(history *service.HistoryService, logger *logrus.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// GetHistory handles POST /api/v1/get_history
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	var req models.GetHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	data, err := h.history.GetHistory(c.Request.Context(), req.User, req.Identifier, req.StartTime, req.EndTime)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	payload, err := data.XML()
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	utils.SendOKResponse(c, models.GetHistoryResponse{
		Identifier: req.Identifier,
		Data:       string(payload),
	})
}
