package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/events"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/realtime"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	appErrors "github.com/htyf-mp-community/Thread-Rest/pkg/errors"
	"go.uber.org/zap"
)

type MessageService struct {
	users     repository.UserRepository
	channels  repository.ChannelRepository
	messages  repository.MessageRepository
	directory *Directory
	processor *media.Processor
	view      viewer
	presence  realtime.Presence
	events    events.Publisher
	logger    *zap.Logger
}

func NewMessageService(
	users repository.UserRepository,
	channels repository.ChannelRepository,
	messages repository.MessageRepository,
	processor *media.Processor,
	resolver *media.Resolver,
	presence realtime.Presence,
	publisher events.Publisher,
	logger *zap.Logger,
) *MessageService {
	return &MessageService{
		users:     users,
		channels:  channels,
		messages:  messages,
		directory: NewDirectory(channels),
		processor: processor,
		view:      viewer{resolver: resolver},
		presence:  presence,
		events:    publisher,
		logger:    logger,
	}
}

type SendInput struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Content    string
	Media      []media.Upload
}

type SendResult struct {
	Message   MessageView      `json:"message"`
	ChannelID uuid.UUID        `json:"channel_id"`
	Outcome   realtime.Outcome `json:"-"`
}

// Send stores a direct message and delivers it.
//
// Media is uploaded before the message is written; if the write fails the
// uploads are removed again. After the write the receiver either gets a
// live push or one more unread, and then the channel is pointed at the new
// message whatever the delivery outcome.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Media) == 0 {
		return nil, appErrors.ErrEmptyMessage
	}
	if in.SenderID == uuid.Nil || in.ReceiverID == uuid.Nil {
		return nil, appErrors.ErrInvalidUserID
	}
	if in.SenderID == in.ReceiverID {
		return nil, appErrors.ErrSelfMessage
	}

	receiver, err := s.users.GetByID(ctx, in.ReceiverID)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}
	if receiver == nil {
		return nil, appErrors.ErrUserNotFound
	}

	channel, err := s.directory.GetOrCreate(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}

	items, err := s.processor.StoreAll(ctx, media.MessageDirs(in.SenderID, in.ReceiverID), in.Media)
	if err != nil {
		return nil, appErrors.ErrMediaUpload(err)
	}

	msg := &models.Message{
		Content:    content,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Media:      items,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.processor.Discard(ctx, items)
		return nil, appErrors.ErrStorage(err)
	}

	// A message that cannot be signed cannot be pushed; the receiver will
	// see it on their next list.
	view, viewErr := s.view.message(ctx, *msg)
	outcome := realtime.Queued
	if viewErr == nil {
		outcome = realtime.Deliver(s.presence, in.SenderID, in.ReceiverID, realtime.EventNewMessage, view)
	}
	if outcome == realtime.Queued {
		if err := s.channels.IncrementUnread(ctx, channel.ID, in.ReceiverID); err != nil {
			s.logger.Error("failed to increment unread count",
				zap.String("channel_id", channel.ID.String()),
				zap.String("user_id", in.ReceiverID.String()),
				zap.Error(err),
			)
		}
	}

	if err := s.channels.SetLastMessage(ctx, channel.ID, msg.ID); err != nil {
		s.logger.Error("failed to set last message",
			zap.String("channel_id", channel.ID.String()),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}

	s.publish(ctx, events.SubjectMessageSent, events.MessageSent{
		MessageID:  msg.ID,
		ChannelID:  channel.ID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Outcome:    outcome.String(),
		Timestamp:  msg.CreatedAt,
	})

	if viewErr != nil {
		return nil, appErrors.ErrStorage(viewErr)
	}
	return &SendResult{Message: view, ChannelID: channel.ID, Outcome: outcome}, nil
}

// List returns the conversation between userID and otherID, newest first.
// cursor is the id of the last message of the previous page.
func (s *MessageService) List(ctx context.Context, userID, otherID uuid.UUID, cursor string, pageSize int) (*Page[MessageView], error) {
	if userID == uuid.Nil || otherID == uuid.Nil {
		return nil, appErrors.ErrInvalidUserID
	}
	pageSize = PageSize(pageSize)

	msgs, err := s.messages.ListBetween(ctx, userID, otherID, cursor, pageSize)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, appErrors.ErrInvalidCursor
		}
		return nil, appErrors.ErrStorage(err)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		v, err := s.view.message(ctx, m)
		if err != nil {
			return nil, appErrors.ErrStorage(err)
		}
		views = append(views, v)
	}
	return newPage(views, pageSize, func(m MessageView) string { return m.ID }), nil
}

// MarkAllRead zeroes userID's unread counter in the channel shared with
// otherID.
func (s *MessageService) MarkAllRead(ctx context.Context, userID, otherID uuid.UUID) error {
	if userID == uuid.Nil || otherID == uuid.Nil {
		return appErrors.ErrInvalidUserID
	}
	if err := s.channels.ResetUnread(ctx, userID, otherID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.ErrChannelNotFound
		}
		return appErrors.ErrStorage(err)
	}
	return nil
}

// ListChannels returns userID's conversations, most recently active first,
// with both members' profiles and the last message expanded.
func (s *MessageService) ListChannels(ctx context.Context, userID uuid.UUID) ([]ChannelView, error) {
	channels, err := s.channels.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}

	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.LastMessageID != "" {
			ids = append(ids, ch.LastMessageID)
		}
	}
	last, err := s.messages.GetByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.ErrStorage(err)
	}

	views := make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		cv := ChannelView{ID: ch.ID, Members: make([]MemberView, 0, len(ch.Members)), CreatedAt: ch.CreatedAt}
		for _, m := range ch.Members {
			u, err := s.view.user(ctx, m.User)
			if err != nil {
				return nil, appErrors.ErrStorage(err)
			}
			mv := MemberView{UnreadCount: m.UnreadCount}
			if u != nil {
				mv.User = *u
			} else {
				mv.User = UserView{ID: m.UserID}
			}
			cv.Members = append(cv.Members, mv)
		}
		if msg, ok := last[ch.LastMessageID]; ok {
			mv, err := s.view.message(ctx, msg)
			if err != nil {
				return nil, appErrors.ErrStorage(err)
			}
			cv.LastMessage = &mv
		}
		views = append(views, cv)
	}
	return views, nil
}

func (s *MessageService) publish(ctx context.Context, subject string, event any) {
	publish(ctx, s.events, s.logger, subject, event)
}

func publish(ctx context.Context, pub events.Publisher, logger *zap.Logger, subject string, event any) {
	if err := pub.Publish(ctx, subject, event); err != nil {
		logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

func now() time.Time { return time.Now().UTC() }
