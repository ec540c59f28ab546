package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/service"
	"github.com/consometers/sge-tiers-proxy/internal/sge"
	"github.com/consometers/sge-tiers-proxy/internal/utils"
)

// handleServiceError translates service-layer errors to the API error
// taxonomy: authorization refusals to 403, client mistakes to 400, DSO
// refusals to 502 with the vendor code, everything else to 500.
func handleServiceError(c *gin.Context, logger *logrus.Logger, err error) {
	var notAuthorized *service.NotAuthorizedError
	if errors.As(err, &notAuthorized) {
		utils.SendNotAuthorizedError(c, notAuthorized.Error())
		return
	}

	var badRequest *service.BadRequestError
	if errors.As(err, &badRequest) {
		utils.SendBadRequestError(c, badRequest.Message, "")
		return
	}

	var upstream *sge.Error
	if errors.As(err, &upstream) {
		utils.SendUpstreamError(c, upstream.Code, upstream.Message)
		return
	}

	if errors.Is(err, dao.ErrNotFound) {
		utils.SendNotFoundError(c, err.Error())
		return
	}

	logger.WithError(err).WithField("request_id", utils.GetRequestIDFromContext(c)).
		Error("Request failed")
	utils.SendInternalServerError(c, "internal error")
}
