package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-key-api/internal/service"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
	"github.com/noah-isme/campus-key-api/pkg/response"
)

// QRHandler exposes handoff token issue and scan endpoints.
type QRHandler struct {
	service *service.QRService
}

// NewQRHandler constructs a QR handler.
func NewQRHandler(svc *service.QRService) *QRHandler {
	return &QRHandler{service: svc}
}

type scanPayload struct {
	Token string `json:"token" binding:"required"`
}

type keyIDPayload struct {
	KeyID string `json:"key_id" binding:"required"`
}

// GenerateRequest godoc
// @Summary Generate a take handoff token
// @Tags Handoff
// @Accept json
// @Produce json
// @Param payload body object true "Key ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /qr/request-token [post]
func (h *QRHandler) GenerateRequest(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload keyIDPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "key_id required"))
		return
	}
	token, err := h.service.GenerateRequestToken(c.Request.Context(), payload.KeyID, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// GenerateReturn godoc
// @Summary Generate a return handoff token
// @Tags Handoff
// @Accept json
// @Produce json
// @Param payload body object true "Key ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /qr/return-token [post]
func (h *QRHandler) GenerateReturn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload keyIDPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "key_id required"))
		return
	}
	token, err := h.service.GenerateReturnToken(c.Request.Context(), payload.KeyID, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// GenerateBatchReturn godoc
// @Summary Generate a batch return handoff token
// @Tags Handoff
// @Accept json
// @Produce json
// @Param payload body object true "Key IDs"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /qr/batch-return-token [post]
func (h *QRHandler) GenerateBatchReturn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		KeyIDs []string `json:"key_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	token, err := h.service.GenerateBatchReturnToken(c.Request.Context(), payload.KeyIDs, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// Cancel godoc
// @Summary Cancel an issued handoff token
// @Tags Handoff
// @Produce json
// @Param id path string true "Token ID"
// @Success 204
// @Router /qr/tokens/{id} [delete]
func (h *QRHandler) Cancel(c *gin.Context) {
	h.service.CancelToken(c.Request.Context(), c.Param("id"))
	response.NoContent(c)
}

// Validate godoc
// @Summary Validate a handoff token without consuming it
// @Tags Handoff
// @Accept json
// @Produce json
// @Param payload body object true "Token"
// @Success 200 {object} response.Envelope
// @Router /qr/validate [post]
func (h *QRHandler) Validate(c *gin.Context) {
	var payload scanPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "token required"))
		return
	}
	response.JSON(c, http.StatusOK, h.service.Validate(payload.Token), nil)
}

// ScanRequest godoc
// @Summary Scan a take token
// @Description Consume a request token and take the key for its owner
// @Tags Handoff
// @Accept json
// @Produce json
// @Param payload body object true "Token"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /qr/scan/request [post]
func (h *QRHandler) ScanRequest(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload scanPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "token required"))
		return
	}
	key, err := h.service.ScanRequest(c.Request.Context(), payload.Token, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// ScanReturn godoc
// @Summary Scan a return token
// @Description Consume a return token and release the key for its owner
// @Tags Handoff
// @Accept json
// @Produce json
// @Param payload body object true "Token"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /qr/scan/return [post]
func (h *QRHandler) ScanReturn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload scanPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "token required"))
		return
	}
	key, err := h.service.ScanReturn(c.Request.Context(), payload.Token, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// ScanBatchReturn godoc
// @Summary Scan a batch return token
// @Description Consume a batch token and release each key, reporting per-key outcomes
// @Tags Handoff
// @Accept json
// @Produce json
// @Param payload body object true "Token"
// @Success 200 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /qr/scan/batch-return [post]
func (h *QRHandler) ScanBatchReturn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload scanPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "token required"))
		return
	}
	result, err := h.service.ScanBatchReturn(c.Request.Context(), payload.Token, claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
