package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/htyf-mp-community/Thread-Rest/internal/middleware"
	"github.com/htyf-mp-community/Thread-Rest/internal/service"
	"go.uber.org/zap"
)

type ChannelHandler struct {
	svc    *service.MessageService
	logger *zap.Logger
}

func NewChannelHandler(svc *service.MessageService, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{svc: svc, logger: logger}
}

// List handles GET /v1/channels
func (h *ChannelHandler) List(c *gin.Context) {
	channels, err := h.svc.ListChannels(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": channels})
}
