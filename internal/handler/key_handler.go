package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-key-api/internal/models"
	"github.com/noah-isme/campus-key-api/internal/service"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
	"github.com/noah-isme/campus-key-api/pkg/response"
)

// KeyHandler handles key inventory and transition endpoints.
type KeyHandler struct {
	service *service.KeyService
}

// NewKeyHandler constructs a key handler.
func NewKeyHandler(svc *service.KeyService) *KeyHandler {
	return &KeyHandler{service: svc}
}

// List godoc
// @Summary List keys
// @Tags Keys
// @Produce json
// @Param block query string false "Filter by block"
// @Param category query string false "Filter by category"
// @Param status query string false "Filter by status (AVAILABLE or UNAVAILABLE)"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /keys [get]
func (h *KeyHandler) List(c *gin.Context) {
	var filter models.KeyFilter
	filter.Block = c.Query("block")
	filter.Category = c.Query("category")
	filter.Status = models.KeyStatus(strings.ToUpper(c.Query("status")))
	filter.Search = strings.TrimSpace(c.Query("search"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	keys, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, keys, pagination)
}

// Get godoc
// @Summary Get key by id
// @Tags Keys
// @Produce json
// @Param id path string true "Key ID"
// @Success 200 {object} response.Envelope
// @Router /keys/{id} [get]
func (h *KeyHandler) Get(c *gin.Context) {
	key, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// MyTaken godoc
// @Summary List keys held by the current user
// @Tags Keys
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /keys/my-taken [get]
func (h *KeyHandler) MyTaken(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	keys, err := h.service.MyTaken(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, keys, nil)
}

// Take godoc
// @Summary Take a key
// @Description Assign an available key to the current user
// @Tags Keys
// @Produce json
// @Param id path string true "Key ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /keys/{id}/take [post]
func (h *KeyHandler) Take(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	key, err := h.service.Take(c.Request.Context(), c.Param("id"), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// Return godoc
// @Summary Return a key
// @Description Release a key currently held
// @Tags Keys
// @Produce json
// @Param id path string true "Key ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /keys/{id}/return [post]
func (h *KeyHandler) Return(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	key, err := h.service.Return(c.Request.Context(), c.Param("id"), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// CollectiveReturn godoc
// @Summary Return a key on behalf of an absent holder
// @Tags Keys
// @Accept json
// @Produce json
// @Param id path string true "Key ID"
// @Param payload body object false "Optional reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /keys/{id}/collective-return [post]
func (h *KeyHandler) CollectiveReturn(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	key, err := h.service.CollectiveReturn(c.Request.Context(), c.Param("id"), claims.Actor(), payload.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// ToggleFrequent godoc
// @Summary Toggle the frequently-used flag
// @Tags Keys
// @Produce json
// @Param id path string true "Key ID"
// @Success 200 {object} response.Envelope
// @Router /keys/{id}/toggle-frequent [post]
func (h *KeyHandler) ToggleFrequent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	key, err := h.service.ToggleFrequent(c.Request.Context(), c.Param("id"), claims.Actor())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// Create godoc
// @Summary Create key
// @Tags Keys
// @Accept json
// @Produce json
// @Param payload body service.CreateKeyRequest true "Key payload"
// @Success 201 {object} response.Envelope
// @Router /keys [post]
func (h *KeyHandler) Create(c *gin.Context) {
	var req service.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	key, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, key)
}

// Update godoc
// @Summary Update key
// @Tags Keys
// @Accept json
// @Produce json
// @Param id path string true "Key ID"
// @Param payload body service.UpdateKeyRequest true "Key payload"
// @Success 200 {object} response.Envelope
// @Router /keys/{id} [put]
func (h *KeyHandler) Update(c *gin.Context) {
	var req service.UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	key, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, key, nil)
}

// Delete godoc
// @Summary Delete key
// @Tags Keys
// @Produce json
// @Param id path string true "Key ID"
// @Success 204
// @Router /keys/{id} [delete]
func (h *KeyHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
