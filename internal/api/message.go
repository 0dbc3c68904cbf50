package api

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/middleware"
	"github.com/htyf-mp-community/Thread-Rest/internal/service"
	"go.uber.org/zap"
)

type MessageHandler struct {
	svc       *service.MessageService
	maxUpload int64
	logger    *zap.Logger
}

func NewMessageHandler(svc *service.MessageService, maxUpload int64, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, maxUpload: maxUpload, logger: logger}
}

// sendMessageRequest binds from JSON or from a multipart form with zero or
// more "media" files.
type sendMessageRequest struct {
	Content string                  `form:"content" json:"content"`
	Media   []*multipart.FileHeader `form:"media" json:"-"`
}

// Send handles POST /v1/messages/:receiverId
func (h *MessageHandler) Send(c *gin.Context) {
	receiverID, err := userParam(c, "receiverId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	var req sendMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	res, err := h.svc.Send(c.Request.Context(), service.SendInput{
		SenderID:   middleware.GetUserID(c),
		ReceiverID: receiverID,
		Content:    req.Content,
		Media:      uploads(req.Media),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

// List handles GET /v1/messages/:receiverId?lastOffset=&pageSize=
func (h *MessageHandler) List(c *gin.Context) {
	otherID, err := userParam(c, "receiverId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	cursor, pageSize := pageQuery(c)
	page, err := h.svc.List(c.Request.Context(), middleware.GetUserID(c), otherID, cursor, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// MarkRead handles POST /v1/messages/:receiverId/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	otherID, err := userParam(c, "receiverId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.svc.MarkAllRead(c.Request.Context(), middleware.GetUserID(c), otherID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "all messages marked as read"})
}

func uploads(files []*multipart.FileHeader) []media.Upload {
	out := make([]media.Upload, 0, len(files))
	for _, fh := range files {
		out = append(out, media.FromFileHeader(fh))
	}
	return out
}
