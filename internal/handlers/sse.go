package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/internal/utils"
	"github.com/grantflow/backend/pkg/contract"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/grantflow/backend/pkg/response"
)

// SSEHandler streams workflow notices to admin dashboards.
type SSEHandler struct {
	hub *services.NoticeHub
}

func NewSSEHandler(hub *services.NoticeHub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// StreamNotices handles SSE connections. EventSource cannot set headers, so
// the token may also come as ?token=.
// GET /api/v1/admin/events
func (h *SSEHandler) StreamNotices(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}
	if claims.Role != string(contract.RoleAdmin) {
		response.Forbidden(c, "admin access required")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	notices := h.hub.Subscribe(clientID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case n, ok := <-notices:
			if !ok {
				return false
			}
			data, err := json.Marshal(n)
			if err != nil {
				logger.Error().Err(err).Msg("SSE marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}
