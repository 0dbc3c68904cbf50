package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/events"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	appErrors "github.com/htyf-mp-community/Thread-Rest/pkg/errors"
	"go.uber.org/zap"
)

// EngagementService records likes and comments. Each write and its post
// counter change commit together in the store.
type EngagementService struct {
	users   repository.UserRepository
	likes   repository.LikeRepository
	replies repository.ReplyRepository
	view    viewer
	events  events.Publisher
	logger  *zap.Logger
}

func NewEngagementService(
	users repository.UserRepository,
	likes repository.LikeRepository,
	replies repository.ReplyRepository,
	resolver *media.Resolver,
	publisher events.Publisher,
	logger *zap.Logger,
) *EngagementService {
	return &EngagementService{
		users:   users,
		likes:   likes,
		replies: replies,
		view:    viewer{resolver: resolver},
		events:  publisher,
		logger:  logger,
	}
}

// LikeResult says whether the call changed anything. Message is what the
// client is told either way.
type LikeResult struct {
	Changed bool   `json:"changed"`
	Message string `json:"message"`
}

const (
	msgLiked          = "post liked"
	msgAlreadyLiked   = "post is already liked"
	msgUnliked        = "post un-liked"
	msgAlreadyUnliked = "post is already un-liked"
)

// Like is idempotent: liking twice leaves one like and one increment. The
// change is committed before Like returns.
func (s *EngagementService) Like(ctx context.Context, userID uuid.UUID, postID int64) (*LikeResult, error) {
	if err := validEngagement(userID, postID); err != nil {
		return nil, err
	}

	added, err := s.likes.Like(ctx, postID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrPostNotFound
		}
		return nil, appErrors.ErrStorage(err)
	}
	if !added {
		return &LikeResult{Changed: false, Message: msgAlreadyLiked}, nil
	}

	s.publish(ctx, events.SubjectPostLiked, events.PostLiked{PostID: postID, UserID: userID, Timestamp: now()})
	return &LikeResult{Changed: true, Message: msgLiked}, nil
}

// Unlike succeeds without touching the counter when there is no like.
func (s *EngagementService) Unlike(ctx context.Context, userID uuid.UUID, postID int64) (*LikeResult, error) {
	if err := validEngagement(userID, postID); err != nil {
		return nil, err
	}

	removed, err := s.likes.Unlike(ctx, postID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrPostNotFound
		}
		return nil, appErrors.ErrStorage(err)
	}
	if !removed {
		return &LikeResult{Changed: false, Message: msgAlreadyUnliked}, nil
	}
	return &LikeResult{Changed: true, Message: msgUnliked}, nil
}

func (s *EngagementService) Comment(ctx context.Context, userID uuid.UUID, postID int64, content string) (*ReplyView, error) {
	if err := validEngagement(userID, postID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, appErrors.ErrEmptyComment
	}

	author, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	if author == nil {
		return nil, appErrors.ErrUserNotFound
	}

	reply := &models.Reply{PostID: postID, UserID: userID, Content: content}
	if err := s.replies.Create(ctx, reply); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrPostNotFound
		}
		return nil, appErrors.ErrStorage(err)
	}
	reply.Author = author

	s.publish(ctx, events.SubjectPostCommented, events.PostCommented{
		PostID:    postID,
		ReplyID:   reply.ID,
		UserID:    userID,
		Timestamp: reply.CreatedAt,
	})

	view, err := s.view.reply(ctx, *reply)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	return &view, nil
}

// ListComments pages through a post's replies in ascending id order.
func (s *EngagementService) ListComments(ctx context.Context, postID int64, cursor string, pageSize int) (*Page[ReplyView], error) {
	if postID <= 0 {
		return nil, appErrors.ErrInvalidPostID
	}
	after, err := parseIDCursor(cursor)
	if err != nil {
		return nil, err
	}
	pageSize = PageSize(pageSize)

	replies, err := s.replies.ListByPost(ctx, postID, after, pageSize)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}

	views := make([]ReplyView, 0, len(replies))
	for _, r := range replies {
		v, err := s.view.reply(ctx, r)
		if err != nil {
			return nil, appErrors.ErrStorage(err)
		}
		views = append(views, v)
	}
	return newPage(views, pageSize, func(r ReplyView) string { return formatID(r.ID) }), nil
}

func (s *EngagementService) publish(ctx context.Context, subject string, event any) {
	publish(ctx, s.events, s.logger, subject, event)
}

func validEngagement(userID uuid.UUID, postID int64) error {
	if userID == uuid.Nil {
		return appErrors.ErrInvalidUserID
	}
	if postID <= 0 {
		return appErrors.ErrInvalidPostID
	}
	return nil
}
