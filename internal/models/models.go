package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Everything in this package is the persisted shape. Storage keys stay
// storage keys here; signed URLs only ever appear in response views.

// User is an account. ProfilePicture is a blob storage key, empty when the
// user never uploaded one.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	Fullname       string    `json:"fullname"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"-"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// MediaItem points at an uploaded file. MediaURL and Thumbnail are storage
// keys, not browsable URLs.
type MediaItem struct {
	MediaType string `json:"media_type" bson:"media_type"`
	MediaURL  string `json:"media_url" bson:"media_url"`
	Thumbnail string `json:"thumbnail,omitempty" bson:"thumbnail,omitempty"`
}

// Message is a direct message. ID is the hex form of the MongoDB ObjectID,
// which also serves as the pagination cursor.
type Message struct {
	ID         string      `json:"id"`
	Content    string      `json:"content,omitempty"`
	SenderID   uuid.UUID   `json:"sender"`
	ReceiverID uuid.UUID   `json:"receiver"`
	Media      []MediaItem `json:"media"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Channel is the durable record of a two-party conversation. MemberLow and
// MemberHigh hold the pair in byte order so that one row exists per
// unordered pair.
type Channel struct {
	ID            uuid.UUID       `json:"id"`
	MemberLow     uuid.UUID       `json:"-"`
	MemberHigh    uuid.UUID       `json:"-"`
	Members       []ChannelMember `json:"members"`
	LastMessageID string          `json:"last_message_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ChannelMember is one side of a channel with its unread counter.
type ChannelMember struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	UserID      uuid.UUID `json:"user_id"`
	UnreadCount int       `json:"unread_count"`
	User        *User     `json:"-"`
}

// Member returns the entry for userID, or nil.
func (c *Channel) Member(userID uuid.UUID) *ChannelMember {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

// OrderedPair returns a and b sorted by their bytes.
func OrderedPair(a, b uuid.UUID) (low, high uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// Post is a thread or a repost. Likes and Replies are denormalized counters
// kept in step with the likes and replies tables.
type Post struct {
	ID        int64       `json:"id"`
	UserID    uuid.UUID   `json:"user_id"`
	Content   string      `json:"content"`
	Hashtags  []string    `json:"hashtags"`
	Media     []MediaItem `json:"media"`
	Likes     int         `json:"likes"`
	Replies   int         `json:"replies"`
	IsRepost  bool        `json:"isRepost"`
	RepostID  *int64      `json:"repost_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`

	// Author is filled by list queries that join users.
	Author *User `json:"-"`
}

type Like struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"postId"`
	UserID    uuid.UUID `json:"userId"`
	CreatedAt time.Time `json:"created_at"`
}

// Reply is a comment on a post. Replies are only removed together with
// their post.
type Reply struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"postId"`
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	Author *User `json:"-"`
}
