package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-key-api/internal/realtime"
	"github.com/noah-isme/campus-key-api/internal/service"
	appErrors "github.com/noah-isme/campus-key-api/pkg/errors"
	"github.com/noah-isme/campus-key-api/pkg/response"
)

// WSHandler upgrades authenticated clients onto the event channel.
type WSHandler struct {
	hub  *realtime.Hub
	auth *service.AuthService
}

// NewWSHandler constructs a websocket handler.
func NewWSHandler(hub *realtime.Hub, auth *service.AuthService) *WSHandler {
	return &WSHandler{hub: hub, auth: auth}
}

// Connect godoc
// @Summary Open the realtime event stream
// @Description Upgrade to websocket; the token comes from the query string
// @Description because browser websocket clients cannot set headers.
// @Tags Realtime
// @Param token query string false "Access token"
// @Success 101
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *WSHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = parts[1]
		}
	}
	if token == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.hub.ServeWS(c.Writer, c.Request, claims)
}
