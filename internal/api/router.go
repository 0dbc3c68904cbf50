package api

import (
	"github.com/gin-gonic/gin"
	"github.com/htyf-mp-community/Thread-Rest/internal/middleware"
	"github.com/htyf-mp-community/Thread-Rest/internal/observ"
	"github.com/htyf-mp-community/Thread-Rest/internal/realtime"
	"go.uber.org/zap"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth     *AuthHandler
	Messages *MessageHandler
	Channels *ChannelHandler
	Posts    *PostHandler
	Users    *UserHandler
	Health   *HealthHandler
	Hub      *realtime.Hub
}

// NewRouter wires every route under /v1. Health, auth and the WebSocket
// endpoint are public; the WebSocket authenticates with ?token= itself.
func NewRouter(h Handlers, jwtSecret string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(observ.RequestLogger(logger), gin.Recovery())

	public := r.Group("/v1")
	public.GET("/health", h.Health.Live)
	public.GET("/ready", h.Health.Ready)
	public.POST("/auth/signup", h.Auth.Signup)
	public.POST("/auth/login", h.Auth.Login)
	public.GET("/ws", realtime.ServeWS(h.Hub, jwtSecret, logger))

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtSecret))

	v1.POST("/messages/:receiverId", h.Messages.Send)
	v1.GET("/messages/:receiverId", h.Messages.List)
	v1.POST("/messages/:receiverId/read", h.Messages.MarkRead)
	v1.GET("/channels", h.Channels.List)

	v1.POST("/posts", h.Posts.Create)
	v1.GET("/posts", h.Posts.List)
	v1.DELETE("/posts/:postId", h.Posts.Delete)
	v1.POST("/posts/:postId/like", h.Posts.Like)
	v1.POST("/posts/:postId/unlike", h.Posts.Unlike)
	v1.POST("/posts/:postId/comments", h.Posts.Comment)
	v1.GET("/posts/:postId/comments", h.Posts.ListComments)

	v1.GET("/users/me", h.Users.Me)
	v1.PUT("/users/me/avatar", h.Users.SetAvatar)
	v1.GET("/users/:userId", h.Users.Get)
	v1.GET("/users/:userId/posts", h.Users.Posts)

	return r
}
