package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/metadata"
	"github.com/consometers/sge-tiers-proxy/internal/models"
	"github.com/consometers/sge-tiers-proxy/internal/service"
	"github.com/consometers/sge-tiers-proxy/internal/utils"
)

// SubscriptionHandler serves standing data requests.
type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	logger        *logrus.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler instance.
func NewSubscriptionHandler(subscriptions *service.SubscriptionService, logger *logrus.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, logger: logger}
}

// Subscribe handles POST /api/v1/subscribe
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req models.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	usagePointID, series, err := metadata.ParseIdentifier(req.Identifier)
	if err != nil {
		utils.SendBadRequestError(c, err.Error(), "")
		return
	}
	if series == "" {
		utils.SendBadRequestError(c, "identifier does not name a series", "")
		return
	}

	subID, err := h.subscriptions.Subscribe(c.Request.Context(), req.User, usagePointID, series)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	utils.SendOKResponse(c, models.SubscribeResponse{
		SubscriptionID: subID,
		Identifier:     req.Identifier,
	})
}

// Unsubscribe handles POST /api/v1/unsubscribe. A bare usage point
// identifier removes every series the user subscribed on it.
func (h *SubscriptionHandler) Unsubscribe(c *gin.Context) {
	var req models.UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	usagePointID, series, err := metadata.ParseIdentifier(req.Identifier)
	if err != nil {
		utils.SendBadRequestError(c, err.Error(), "")
		return
	}

	var seriesName *string
	if series != "" {
		seriesName = &series
	}

	deleted, err := h.subscriptions.Unsubscribe(c.Request.Context(), req.User, usagePointID, seriesName)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	removed := make([]string, 0, len(deleted))
	for i := range deleted {
		removed = append(removed, metadata.RecordName(deleted[i].UsagePointID, deleted[i].SeriesName))
	}

	utils.SendOKResponse(c, models.UnsubscribeResponse{Removed: removed})
}
