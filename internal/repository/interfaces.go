package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
)

// Lookups by id return nil, nil when the row does not exist. Mutations that
// target a missing row return ErrNotFound so the caller can tell "nothing to
// do" from "nothing there".
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique key is already taken.
var ErrConflict = errors.New("conflict")

// ErrInvalidCursor is returned when a pagination cursor is not an id the
// store can understand.
var ErrInvalidCursor = errors.New("invalid cursor")

// UserRepository handles user accounts.
type UserRepository interface {
	// Create inserts a user and fills ID and CreatedAt. Returns ErrConflict
	// when the email or username is taken.
	Create(ctx context.Context, u *models.User) error

	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)

	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// SetProfilePicture stores a new storage key for the user's avatar.
	SetProfilePicture(ctx context.Context, userID uuid.UUID, key string) error
}

// ChannelRepository stores two-party channels and their unread counters.
type ChannelRepository interface {
	// FindByPair returns the channel for the unordered pair, or nil, nil.
	FindByPair(ctx context.Context, a, b uuid.UUID) (*models.Channel, error)

	// CreatePair inserts the channel and both members at unread 0. A
	// concurrent insert for the same pair is not an error: the existing
	// channel is returned instead.
	CreatePair(ctx context.Context, a, b uuid.UUID) (*models.Channel, error)

	// IncrementUnread bumps userID's counter in the channel by one.
	IncrementUnread(ctx context.Context, channelID, userID uuid.UUID) error

	// SetLastMessage points the channel at its newest message.
	SetLastMessage(ctx context.Context, channelID uuid.UUID, messageID string) error

	// ResetUnread zeroes userID's counter in the channel shared with
	// otherID. Returns ErrNotFound when there is no such channel.
	ResetUnread(ctx context.Context, userID, otherID uuid.UUID) error

	// ListByUser returns every channel userID belongs to with both members
	// and their users loaded, most recently active first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Channel, error)
}

// MessageRepository persists direct messages.
type MessageRepository interface {
	// Create fills ID and CreatedAt.
	Create(ctx context.Context, m *models.Message) error

	// ListBetween returns messages exchanged by a and b, newest first.
	// before is the id of the last message of the previous page, or "" for
	// the first page.
	ListBetween(ctx context.Context, a, b uuid.UUID, before string, limit int) ([]models.Message, error)

	// GetByIDs returns the messages that exist among ids, keyed by id.
	GetByIDs(ctx context.Context, ids []string) (map[string]models.Message, error)
}

// PostRepository persists posts. List methods load Author.
type PostRepository interface {
	// Create fills ID and CreatedAt.
	Create(ctx context.Context, p *models.Post) error

	GetByID(ctx context.Context, postID int64) (*models.Post, error)

	// GetByIDs returns the posts that exist among ids, keyed by id.
	GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Post, error)

	// List returns posts with id > after in ascending id order.
	List(ctx context.Context, after int64, limit int) ([]models.Post, error)

	// ListByUser is List restricted to one author and to either their
	// reposts or their own threads.
	ListByUser(ctx context.Context, userID uuid.UUID, reposts bool, after int64, limit int) ([]models.Post, error)

	// Delete removes the post with its replies and likes as one unit.
	// Returns ErrNotFound when the post does not exist.
	Delete(ctx context.Context, postID int64) error
}

// LikeRepository keeps likes and the posts.likes counter consistent.
type LikeRepository interface {
	// Like records userID's like and increments the counter. Returns false
	// when the like already existed, ErrNotFound when the post does not.
	Like(ctx context.Context, postID int64, userID uuid.UUID) (bool, error)

	// Unlike removes the like and decrements the counter, never below
	// zero. Returns false when there was nothing to remove.
	Unlike(ctx context.Context, postID int64, userID uuid.UUID) (bool, error)

	// LikedPostIDs reports which of postIDs userID has liked.
	LikedPostIDs(ctx context.Context, userID uuid.UUID, postIDs []int64) (map[int64]bool, error)
}

// ReplyRepository keeps replies and the posts.replies counter consistent.
type ReplyRepository interface {
	// Create inserts the reply, increments the counter and fills ID and
	// CreatedAt. Returns ErrNotFound when the post does not exist.
	Create(ctx context.Context, r *models.Reply) error

	// ListByPost returns replies with id > after in ascending order,
	// with Author loaded.
	ListByPost(ctx context.Context, postID int64, after int64, limit int) ([]models.Reply, error)
}
