package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/models"
	"github.com/consometers/sge-tiers-proxy/internal/service"
	"github.com/consometers/sge-tiers-proxy/internal/sge"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func translate(t *testing.T, err error) (*httptest.ResponseRecorder, models.ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/get_history", nil)

	handleServiceError(c, testLogger(), err)

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHandleServiceErrorNotAuthorized(t *testing.T) {
	w, body := translate(t, &service.NotAuthorizedError{
		Reason:       service.ReasonExpired,
		UserID:       "alice@example.fr",
		UsagePointID: "30001444398081",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, models.ErrCodeNotAuthorized, body.Code)
	assert.Contains(t, body.Message, "consent expired")
}

func TestHandleServiceErrorBadRequest(t *testing.T) {
	w, body := translate(t, &service.BadRequestError{Message: "end_time must be after start_time"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeBadRequest, body.Code)
}

func TestHandleServiceErrorUpstreamCarriesVendorCode(t *testing.T) {
	w, body := translate(t, &sge.Error{Code: "SGT4H8", Message: "période non autorisée"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, models.ErrCodeUpstreamError, body.Code)
	require.NotNil(t, body.Upstream)
	assert.Equal(t, models.UpstreamIssuer, body.Upstream.Issuer)
	assert.Equal(t, "SGT4H8", body.Upstream.Code)
}

func TestHandleServiceErrorNotFound(t *testing.T) {
	w, body := translate(t, fmt.Errorf("usage point 30001444398081: %w", dao.ErrNotFound))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrCodeNotFound, body.Code)
}

func TestHandleServiceErrorFallsBackToInternal(t *testing.T) {
	w, body := translate(t, errors.New("connection reset"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.ErrCodeInternalError, body.Code)
	assert.NotContains(t, body.Message, "connection reset")
}
