package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appErrors "github.com/htyf-mp-community/Thread-Rest/pkg/errors"
	"go.uber.org/zap"
)

// respondError writes the client-safe message for err. Only server-side
// failures are logged here; the access log already records the status.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusOf(appErrors.CodeOf(err))
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": appErrors.MessageOf(err)})
}

func statusOf(code appErrors.Code) int {
	switch code {
	case appErrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case appErrors.CodeNotFound:
		return http.StatusNotFound
	case appErrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case appErrors.CodeAlreadyExists:
		return http.StatusConflict
	case appErrors.CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// respondBindError answers a request whose body could not be decoded. The
// decoder's text names Go types and struct fields, so it only goes to the
// debug log; the client gets a fixed message.
func respondBindError(c *gin.Context, logger *zap.Logger, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, logger, appErrors.ErrBodyTooLarge)
		return
	}
	logger.Debug("failed to bind request",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	respondError(c, logger, appErrors.ErrInvalidBody)
}

func userParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, appErrors.ErrInvalidUserID
	}
	return id, nil
}

func postParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("postId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.ErrInvalidPostID
	}
	return id, nil
}

// pageQuery reads ?lastOffset=&pageSize=. A malformed pageSize falls back
// to the default like a missing one.
func pageQuery(c *gin.Context) (cursor string, pageSize int) {
	pageSize, _ = strconv.Atoi(c.Query("pageSize"))
	return c.Query("lastOffset"), pageSize
}
