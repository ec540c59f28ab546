package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consometers/sge-tiers-proxy/internal/models"
)

// SendSuccessResponse sends a successful JSON response
func SendSuccessResponse(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// SendErrorResponse sends an error JSON response
func SendErrorResponse(c *gin.Context, statusCode int, errCode, message, details string) {
	c.JSON(statusCode, models.ErrorResponse{
		Code:    errCode,
		Message: message,
		Details: details,
	})
}

// SendCreatedResponse sends a 201 Created response
func SendCreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// SendOKResponse sends a 200 OK response
func SendOKResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendNoContentResponse sends a 204 No Content response
func SendNoContentResponse(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// SendBadRequestError sends a 400 Bad Request error
func SendBadRequestError(c *gin.Context, message, details string) {
	SendErrorResponse(c, http.StatusBadRequest, models.ErrCodeBadRequest, message, details)
}

// SendNotAuthorizedError sends a 403 Forbidden error carrying the
// refusal reason.
func SendNotAuthorizedError(c *gin.Context, message string) {
	SendErrorResponse(c, http.StatusForbidden, models.ErrCodeNotAuthorized, message, "")
}

// SendNotFoundError sends a 404 Not Found error
func SendNotFoundError(c *gin.Context, message string) {
	SendErrorResponse(c, http.StatusNotFound, models.ErrCodeNotFound, message, "")
}

// SendUpstreamError sends a 502 Bad Gateway error carrying the DSO
// issuer and vendor code verbatim.
func SendUpstreamError(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadGateway, models.ErrorResponse{
		Code:    models.ErrCodeUpstreamError,
		Message: message,
		Upstream: &models.UpstreamError{
			Issuer: models.UpstreamIssuer,
			Code:   code,
		},
	})
}

// SendInternalServerError sends a 500 Internal Server Error
func SendInternalServerError(c *gin.Context, message string) {
	SendErrorResponse(c, http.StatusInternalServerError, models.ErrCodeInternalError, message, "")
}

// GetRequestIDFromContext extracts the request correlation id set by
// the router middleware.
func GetRequestIDFromContext(c *gin.Context) string {
	requestID, exists := c.Get("requestID")
	if !exists {
		return ""
	}
	return requestID.(string)
}
