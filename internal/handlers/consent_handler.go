package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/models"
	"github.com/consometers/sge-tiers-proxy/internal/service"
	"github.com/consometers/sge-tiers-proxy/internal/utils"
)

// ConsentHandler administers the consent ledger: user registration,
// consent records and scope extensions.
type ConsentHandler struct {
	consents *service.ConsentService
	logger   *logrus.Logger
}

// NewConsentHandler creates a new ConsentHandler instance.
func NewConsentHandler(consents *service.ConsentService, logger *logrus.Logger) *ConsentHandler {
	return &ConsentHandler{consents: consents, logger: logger}
}

// RegisterUser handles POST /api/v1/users
func (h *ConsentHandler) RegisterUser(c *gin.Context) {
	var req models.RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	if err := h.consents.RegisterUser(c.Request.Context(), req.BareJID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	utils.SendCreatedResponse(c, models.User{BareJID: req.BareJID})
}

// CreateConsent handles POST /api/v1/consents
func (h *ConsentHandler) CreateConsent(c *gin.Context) {
	var req models.CreateConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	if req.IssuerType != models.IssuerIndividual && req.IssuerType != models.IssuerCompany {
		utils.SendBadRequestError(c, "issuer_type must be INDIVIDUAL or COMPANY", "")
		return
	}
	if !req.ExpiresAt.After(req.BeginsAt) {
		utils.SendBadRequestError(c, "expires_at must be after begins_at", "")
		return
	}

	consent := &models.Consent{
		IssuerName: req.IssuerName,
		IssuerType: req.IssuerType,
		IsOpen:     req.IsOpen,
		BeginsAt:   req.BeginsAt,
		ExpiresAt:  req.ExpiresAt,
	}

	id, err := h.consents.CreateConsent(c.Request.Context(), consent, req.Users, req.UsagePoints)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	utils.SendCreatedResponse(c, models.CreateConsentResponse{ID: id})
}

// AddUsagePoint handles POST /api/v1/consents/:id/usage_points
func (h *ConsentHandler) AddUsagePoint(c *gin.Context) {
	consentID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		utils.SendBadRequestError(c, "Invalid consent id", c.Param("id"))
		return
	}

	var req models.AddUsagePointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	if err := h.consents.AddUsagePoint(c.Request.Context(), consentID, req.UsagePointID, req.Comment); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}

	utils.SendNoContentResponse(c)
}
