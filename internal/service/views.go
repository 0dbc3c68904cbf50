package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
)

// Views are what handlers serialize. They carry signed URLs and are built
// fresh from the persisted models on every read.

type UserView struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Fullname       string    `json:"fullname"`
	Bio            string    `json:"bio"`
	ProfilePicture string    `json:"profile_picture"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessageView struct {
	ID        string       `json:"id"`
	Content   string       `json:"content,omitempty"`
	Sender    uuid.UUID    `json:"sender"`
	Receiver  uuid.UUID    `json:"receiver"`
	Media     []media.View `json:"media"`
	CreatedAt time.Time    `json:"created_at"`
}

type MemberView struct {
	User        UserView `json:"user"`
	UnreadCount int      `json:"unread_count"`
}

type ChannelView struct {
	ID          uuid.UUID    `json:"id"`
	Members     []MemberView `json:"members"`
	LastMessage *MessageView `json:"lastMessage"`
	CreatedAt   time.Time    `json:"created_at"`
}

type PostView struct {
	ID        int64        `json:"id"`
	Content   string       `json:"content"`
	Hashtags  []string     `json:"hashtags"`
	Media     []media.View `json:"media"`
	User      *UserView    `json:"user"`
	Likes     int          `json:"likes"`
	Replies   int          `json:"replies"`
	IsRepost  bool         `json:"isRepost"`
	IsLiked   bool         `json:"isLiked"`
	Repost    *PostView    `json:"Repost,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type ReplyView struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"postId"`
	Content   string    `json:"content"`
	User      *UserView `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// viewer builds views. It only reads the models it is handed.
type viewer struct {
	resolver *media.Resolver
}

func (v viewer) user(ctx context.Context, u *models.User) (*UserView, error) {
	if u == nil {
		return nil, nil
	}
	picture, err := v.resolver.Sign(ctx, u.ProfilePicture)
	if err != nil {
		return nil, err
	}
	return &UserView{
		ID:             u.ID,
		Username:       u.Username,
		Fullname:       u.Fullname,
		Bio:            u.Bio,
		ProfilePicture: picture,
		CreatedAt:      u.CreatedAt,
	}, nil
}

func (v viewer) message(ctx context.Context, m models.Message) (MessageView, error) {
	items, err := v.resolver.Views(ctx, m.Media)
	if err != nil {
		return MessageView{}, err
	}
	return MessageView{
		ID:        m.ID,
		Content:   m.Content,
		Sender:    m.SenderID,
		Receiver:  m.ReceiverID,
		Media:     items,
		CreatedAt: m.CreatedAt,
	}, nil
}

func (v viewer) post(ctx context.Context, p models.Post, liked bool) (PostView, error) {
	items, err := v.resolver.Views(ctx, p.Media)
	if err != nil {
		return PostView{}, err
	}
	author, err := v.user(ctx, p.Author)
	if err != nil {
		return PostView{}, err
	}
	hashtags := p.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	return PostView{
		ID:        p.ID,
		Content:   p.Content,
		Hashtags:  hashtags,
		Media:     items,
		User:      author,
		Likes:     p.Likes,
		Replies:   p.Replies,
		IsRepost:  p.IsRepost,
		IsLiked:   liked,
		CreatedAt: p.CreatedAt,
	}, nil
}

func (v viewer) reply(ctx context.Context, r models.Reply) (ReplyView, error) {
	author, err := v.user(ctx, r.Author)
	if err != nil {
		return ReplyView{}, err
	}
	return ReplyView{
		ID:        r.ID,
		PostID:    r.PostID,
		Content:   r.Content,
		User:      author,
		CreatedAt: r.CreatedAt,
	}, nil
}
