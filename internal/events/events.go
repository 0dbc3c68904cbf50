// Package events publishes domain events for other services (notification
// fan-out, search indexing) to consume. Publishing is best effort: a lost
// event never fails the request that produced it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subjects.
const (
	SubjectMessageSent   = "message.sent"
	SubjectPostCreated   = "post.created"
	SubjectPostLiked     = "post.liked"
	SubjectPostCommented = "post.commented"
	SubjectPostDeleted   = "post.deleted"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

type MessageSent struct {
	MessageID  string    `json:"message_id"`
	ChannelID  uuid.UUID `json:"channel_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Outcome    string    `json:"outcome"`
	Timestamp  time.Time `json:"timestamp"`
}

type PostCreated struct {
	PostID    int64     `json:"post_id"`
	AuthorID  uuid.UUID `json:"author_id"`
	IsRepost  bool      `json:"is_repost"`
	RepostID  *int64    `json:"repost_id,omitempty"`
	Hashtags  []string  `json:"hashtags"`
	Timestamp time.Time `json:"timestamp"`
}

type PostLiked struct {
	PostID    int64     `json:"post_id"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type PostCommented struct {
	PostID    int64     `json:"post_id"`
	ReplyID   int64     `json:"reply_id"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type PostDeleted struct {
	PostID    int64     `json:"post_id"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
