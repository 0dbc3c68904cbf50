package api

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/htyf-mp-community/Thread-Rest/internal/middleware"
	"github.com/htyf-mp-community/Thread-Rest/internal/service"
	"go.uber.org/zap"
)

type PostHandler struct {
	posts      *service.PostService
	engagement *service.EngagementService
	maxUpload  int64
	logger     *zap.Logger
}

func NewPostHandler(posts *service.PostService, engagement *service.EngagementService, maxUpload int64, logger *zap.Logger) *PostHandler {
	return &PostHandler{posts: posts, engagement: engagement, maxUpload: maxUpload, logger: logger}
}

// createPostRequest binds from JSON or multipart. postId is the repost
// target.
type createPostRequest struct {
	Content  string                  `form:"content" json:"content"`
	Hashtags []string                `form:"hashtags" json:"hashtags"`
	IsRepost bool                    `form:"isRepost" json:"isRepost"`
	PostID   *int64                  `form:"postId" json:"postId"`
	Media    []*multipart.FileHeader `form:"media" json:"-"`
}

type commentRequest struct {
	Content string `json:"content"`
}

// Create handles POST /v1/posts
func (h *PostHandler) Create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	var req createPostRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	post, err := h.posts.Create(c.Request.Context(), service.CreatePostInput{
		UserID:   middleware.GetUserID(c),
		Content:  req.Content,
		Hashtags: splitHashtags(req.Hashtags),
		Media:    uploads(req.Media),
		IsRepost: req.IsRepost,
		RepostID: req.PostID,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, post)
}

// List handles GET /v1/posts?lastOffset=&pageSize=
func (h *PostHandler) List(c *gin.Context) {
	cursor, pageSize := pageQuery(c)
	page, err := h.posts.List(c.Request.Context(), middleware.GetUserID(c), cursor, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// Like handles POST /v1/posts/:postId/like
func (h *PostHandler) Like(c *gin.Context) {
	postID, err := postParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.engagement.Like(c.Request.Context(), middleware.GetUserID(c), postID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Unlike handles POST /v1/posts/:postId/unlike
func (h *PostHandler) Unlike(c *gin.Context) {
	postID, err := postParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.engagement.Unlike(c.Request.Context(), middleware.GetUserID(c), postID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Comment handles POST /v1/posts/:postId/comments
func (h *PostHandler) Comment(c *gin.Context) {
	postID, err := postParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	reply, err := h.engagement.Comment(c.Request.Context(), middleware.GetUserID(c), postID, req.Content)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, reply)
}

// ListComments handles GET /v1/posts/:postId/comments?lastOffset=&pageSize=
func (h *PostHandler) ListComments(c *gin.Context) {
	postID, err := postParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	cursor, pageSize := pageQuery(c)
	page, err := h.engagement.ListComments(c.Request.Context(), postID, cursor, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// Delete handles DELETE /v1/posts/:postId
func (h *PostHandler) Delete(c *gin.Context) {
	postID, err := postParam(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.posts.Delete(c.Request.Context(), middleware.GetUserID(c), postID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
}

// splitHashtags accepts both repeated fields and a single comma-separated
// value.
func splitHashtags(raw []string) []string {
	var out []string
	for _, r := range raw {
		out = append(out, strings.Split(r, ",")...)
	}
	return out
}
