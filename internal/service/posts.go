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

// Post types accepted by ListByUser.
const (
	PostTypeThread = "thread"
	PostTypeRepost = "repost"
)

type PostService struct {
	users     repository.UserRepository
	posts     repository.PostRepository
	likes     repository.LikeRepository
	processor *media.Processor
	view      viewer
	events    events.Publisher
	logger    *zap.Logger
}

func NewPostService(
	users repository.UserRepository,
	posts repository.PostRepository,
	likes repository.LikeRepository,
	processor *media.Processor,
	resolver *media.Resolver,
	publisher events.Publisher,
	logger *zap.Logger,
) *PostService {
	return &PostService{
		users:     users,
		posts:     posts,
		likes:     likes,
		processor: processor,
		view:      viewer{resolver: resolver},
		events:    publisher,
		logger:    logger,
	}
}

type CreatePostInput struct {
	UserID   uuid.UUID
	Content  string
	Hashtags []string
	Media    []media.Upload
	IsRepost bool
	RepostID *int64
}

// Create stores a thread or a repost. A repost needs an existing target
// and may carry its own content; a thread needs content or media.
func (s *PostService) Create(ctx context.Context, in CreatePostInput) (*PostView, error) {
	if in.UserID == uuid.Nil {
		return nil, appErrors.ErrInvalidUserID
	}
	content := strings.TrimSpace(in.Content)
	if in.IsRepost && in.RepostID == nil {
		return nil, appErrors.ErrMissingRepostID
	}
	if !in.IsRepost && content == "" && len(in.Media) == 0 {
		return nil, appErrors.ErrEmptyPost
	}

	author, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	if author == nil {
		return nil, appErrors.ErrUserNotFound
	}

	var target *models.Post
	if in.IsRepost {
		target, err = s.posts.GetByID(ctx, *in.RepostID)
		if err != nil {
			return nil, appErrors.ErrStorage(err)
		}
		if target == nil {
			return nil, appErrors.ErrPostNotFound
		}
	}

	items, err := s.processor.StoreAll(ctx, media.PostDirs(in.UserID), in.Media)
	if err != nil {
		return nil, appErrors.ErrMediaUpload(err)
	}

	post := &models.Post{
		UserID:   in.UserID,
		Content:  content,
		Hashtags: normalizeHashtags(in.Hashtags),
		Media:    items,
		IsRepost: in.IsRepost,
	}
	if in.IsRepost {
		post.RepostID = in.RepostID
	}
	if err := s.posts.Create(ctx, post); err != nil {
		s.processor.Discard(ctx, items)
		return nil, appErrors.ErrStorage(err)
	}
	post.Author = author

	s.publish(ctx, events.SubjectPostCreated, events.PostCreated{
		PostID:    post.ID,
		AuthorID:  post.UserID,
		IsRepost:  post.IsRepost,
		RepostID:  post.RepostID,
		Hashtags:  post.Hashtags,
		Timestamp: post.CreatedAt,
	})

	view, err := s.view.post(ctx, *post, false)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	if target != nil {
		tv, err := s.view.post(ctx, *target, false)
		if err != nil {
			return nil, appErrors.ErrStorage(err)
		}
		view.Repost = &tv
	}
	return &view, nil
}

// List pages through the feed in ascending id order, starting after cursor.
func (s *PostService) List(ctx context.Context, viewerID uuid.UUID, cursor string, pageSize int) (*Page[PostView], error) {
	after, err := parseIDCursor(cursor)
	if err != nil {
		return nil, err
	}
	pageSize = PageSize(pageSize)

	posts, err := s.posts.List(ctx, after, pageSize)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	return s.page(ctx, viewerID, posts, pageSize)
}

// ListByUser is List restricted to one author's threads or reposts.
func (s *PostService) ListByUser(ctx context.Context, viewerID, authorID uuid.UUID, postType, cursor string, pageSize int) (*Page[PostView], error) {
	if authorID == uuid.Nil {
		return nil, appErrors.ErrInvalidUserID
	}
	var reposts bool
	switch postType {
	case "", PostTypeThread:
	case PostTypeRepost:
		reposts = true
	default:
		return nil, appErrors.ErrInvalidPostType
	}
	after, err := parseIDCursor(cursor)
	if err != nil {
		return nil, err
	}
	pageSize = PageSize(pageSize)

	posts, err := s.posts.ListByUser(ctx, authorID, reposts, after, pageSize)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	return s.page(ctx, viewerID, posts, pageSize)
}

// page expands reposts and likes with one batched query each.
func (s *PostService) page(ctx context.Context, viewerID uuid.UUID, posts []models.Post, pageSize int) (*Page[PostView], error) {
	ids := make([]int64, 0, len(posts))
	var targetIDs []int64
	for _, p := range posts {
		ids = append(ids, p.ID)
		if p.IsRepost && p.RepostID != nil {
			targetIDs = append(targetIDs, *p.RepostID)
		}
	}

	targets, err := s.posts.GetByIDs(ctx, targetIDs)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	liked, err := s.likes.LikedPostIDs(ctx, viewerID, append(ids, targetIDs...))
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}

	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		v, err := s.view.post(ctx, p, liked[p.ID])
		if err != nil {
			return nil, appErrors.ErrStorage(err)
		}
		if p.IsRepost && p.RepostID != nil {
			if t, ok := targets[*p.RepostID]; ok {
				tv, err := s.view.post(ctx, t, liked[t.ID])
				if err != nil {
					return nil, appErrors.ErrStorage(err)
				}
				v.Repost = &tv
			}
		}
		views = append(views, v)
	}
	return newPage(views, pageSize, func(p PostView) string { return formatID(p.ID) }), nil
}

// Delete removes userID's post together with its likes and replies, then
// drops the post's media from the blob store.
func (s *PostService) Delete(ctx context.Context, userID uuid.UUID, postID int64) error {
	if postID <= 0 {
		return appErrors.ErrInvalidPostID
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return appErrors.ErrStorage(err)
	}
	if post == nil {
		return appErrors.ErrPostNotFound
	}
	if post.UserID != userID {
		return appErrors.ErrNotPostOwner
	}

	if err := s.posts.Delete(ctx, postID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.ErrPostNotFound
		}
		return appErrors.ErrStorage(err)
	}
	s.processor.Discard(ctx, post.Media)

	s.publish(ctx, events.SubjectPostDeleted, events.PostDeleted{
		PostID:    postID,
		UserID:    userID,
		Timestamp: now(),
	})
	return nil
}

func (s *PostService) publish(ctx context.Context, subject string, event any) {
	publish(ctx, s.events, s.logger, subject, event)
}

// normalizeHashtags trims tags, drops the leading '#', lower-cases them and
// removes empties and duplicates while keeping order.
func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
