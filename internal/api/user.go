package api

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/middleware"
	"github.com/htyf-mp-community/Thread-Rest/internal/service"
	"go.uber.org/zap"
)

type UserHandler struct {
	users     *service.UserService
	posts     *service.PostService
	maxUpload int64
	logger    *zap.Logger
}

func NewUserHandler(users *service.UserService, posts *service.PostService, maxUpload int64, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, posts: posts, maxUpload: maxUpload, logger: logger}
}

type avatarRequest struct {
	File *multipart.FileHeader `form:"profile_picture"`
}

// Me handles GET /v1/users/me
func (h *UserHandler) Me(c *gin.Context) {
	h.respondProfile(c, middleware.GetUserID(c))
}

// Get handles GET /v1/users/:userId
func (h *UserHandler) Get(c *gin.Context) {
	userID, err := userParam(c, "userId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respondProfile(c, userID)
}

func (h *UserHandler) respondProfile(c *gin.Context, userID uuid.UUID) {
	profile, err := h.users.Profile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SetAvatar handles PUT /v1/users/me/avatar with a multipart
// "profile_picture" file.
func (h *UserHandler) SetAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	var req avatarRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	var up *media.Upload
	if req.File != nil {
		u := media.FromFileHeader(req.File)
		up = &u
	}

	profile, err := h.users.SetAvatar(c.Request.Context(), middleware.GetUserID(c), up)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Posts handles GET /v1/users/:userId/posts?post_type=thread|repost
func (h *UserHandler) Posts(c *gin.Context) {
	authorID, err := userParam(c, "userId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	cursor, pageSize := pageQuery(c)
	page, err := h.posts.ListByUser(c.Request.Context(), middleware.GetUserID(c), authorID, c.Query("post_type"), cursor, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
