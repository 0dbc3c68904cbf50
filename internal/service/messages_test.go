package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/events"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/realtime"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	appErrors "github.com/htyf-mp-community/Thread-Rest/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	tests := []struct {
		name string
		in   SendInput
		want error
	}{
		{"no content and no media", SendInput{SenderID: alice, ReceiverID: bob}, appErrors.ErrEmptyMessage},
		{"whitespace only", SendInput{SenderID: alice, ReceiverID: bob, Content: "  \n"}, appErrors.ErrEmptyMessage},
		{"to self", SendInput{SenderID: alice, ReceiverID: alice, Content: "hi"}, appErrors.ErrSelfMessage},
		{"missing receiver id", SendInput{SenderID: alice, Content: "hi"}, appErrors.ErrInvalidUserID},
		{"unknown receiver", SendInput{SenderID: alice, ReceiverID: uuid.New(), Content: "hi"}, appErrors.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.messages.Send(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, f.db.CountChannels())
}

func TestSend_ReusesChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	first, err := f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"})
	require.NoError(t, err)
	second, err := f.messages.Send(ctx, SendInput{SenderID: bob, ReceiverID: alice, Content: "hey"})
	require.NoError(t, err)

	assert.Equal(t, first.ChannelID, second.ChannelID)
	assert.Equal(t, 1, f.db.CountChannels())
	assert.Equal(t, second.Message.ID, f.channel(t, alice, bob).LastMessageID)
}

func TestSend_ConcurrentFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := SendInput{SenderID: alice, ReceiverID: bob, Content: "hi"}
			if i%2 == 1 {
				in.SenderID, in.ReceiverID = bob, alice
			}
			res, err := f.messages.Send(ctx, in)
			if assert.NoError(t, err) {
				ids <- res.ChannelID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	var first uuid.UUID
	for id := range ids {
		if first == uuid.Nil {
			first = id
		}
		assert.Equal(t, first, id)
	}
	assert.Equal(t, 1, f.db.CountChannels())
}

func TestSend_UnreadBookkeeping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	const n = 5
	for i := 0; i < n; i++ {
		res, err := f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Content: "ping"})
		require.NoError(t, err)
		assert.Equal(t, realtime.Queued, res.Outcome)
	}

	ch := f.channel(t, alice, bob)
	assert.Equal(t, n, ch.Member(bob).UnreadCount)
	assert.Equal(t, 0, ch.Member(alice).UnreadCount)
	assert.Empty(t, f.presence.pushesTo(bob))

	require.NoError(t, f.messages.MarkAllRead(ctx, bob, alice))
	assert.Equal(t, 0, f.channel(t, alice, bob).Member(bob).UnreadCount)

	t.Run("mark read only touches the caller", func(t *testing.T) {
		_, err := f.messages.Send(ctx, SendInput{SenderID: bob, ReceiverID: alice, Content: "pong"})
		require.NoError(t, err)
		require.NoError(t, f.messages.MarkAllRead(ctx, bob, alice))
		assert.Equal(t, 1, f.channel(t, alice, bob).Member(alice).UnreadCount)
	})
}

func TestSend_LiveDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	f.presence.setOnline(alice, true)
	f.presence.setOnline(bob, true)

	res, err := f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Content: "live"})
	require.NoError(t, err)

	assert.Equal(t, realtime.Delivered, res.Outcome)
	assert.Equal(t, 0, f.channel(t, alice, bob).Member(bob).UnreadCount)

	toBob := f.presence.pushesTo(bob)
	require.Len(t, toBob, 1)
	assert.Equal(t, realtime.EventNewMessage, toBob[0].event)
	assert.Equal(t, res.Message, toBob[0].payload)
	assert.Len(t, f.presence.pushesTo(alice), 1)

	assert.Equal(t, []string{events.SubjectMessageSent}, f.events.Subjects())
	assert.Equal(t, "delivered", f.events.Events()[0].Event.(events.MessageSent).Outcome)
}

func TestSend_MediaKeysStayKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	res, err := f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Media: []media.Upload{image(), video()}})
	require.NoError(t, err)
	require.Len(t, res.Message.Media, 2)

	stored, err := f.db.Messages().GetByIDs(ctx, []string{res.Message.ID})
	require.NoError(t, err)
	msg := stored[res.Message.ID]
	require.Len(t, msg.Media, 2)

	prefix := "messages/" + alice.String() + "/" + bob.String() + "/"
	for i, item := range msg.Media {
		assert.True(t, strings.HasPrefix(item.MediaURL, prefix), item.MediaURL)
		assert.NotEqual(t, item.MediaURL, res.Message.Media[i].MediaURL)
	}
	assert.True(t, strings.HasPrefix(msg.Media[1].Thumbnail, prefix))
	assert.True(t, strings.HasSuffix(msg.Media[1].Thumbnail, ".jpeg"))
	assert.NotEmpty(t, res.Message.Media[1].Thumbnail)

	body, _, err := f.blobs.Open(res.Message.Media[0].MediaURL)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, body)
}

type failingMessages struct {
	repository.MessageRepository
}

func (failingMessages) Create(context.Context, *models.Message) error {
	return errors.New("mongo down")
}

// recordingChannels logs channel bookkeeping calls in order. at is called
// on each one so a test can snapshot other state at that moment.
type recordingChannels struct {
	repository.ChannelRepository
	mu    sync.Mutex
	calls []string
	at    func(call string)
}

func (r *recordingChannels) record(call string) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	if r.at != nil {
		r.at(call)
	}
}

func (r *recordingChannels) IncrementUnread(ctx context.Context, channelID, userID uuid.UUID) error {
	r.record("increment_unread")
	return r.ChannelRepository.IncrementUnread(ctx, channelID, userID)
}

func (r *recordingChannels) SetLastMessage(ctx context.Context, channelID uuid.UUID, messageID string) error {
	r.record("set_last_message")
	return r.ChannelRepository.SetLastMessage(ctx, channelID, messageID)
}

func TestSend_LastMessageUpdatedAfterDelivery(t *testing.T) {
	ctx := context.Background()
	rec := &recordingChannels{}
	f := newFixture(t, wrapChannelRepo(func(next repository.ChannelRepository) repository.ChannelRepository {
		rec.ChannelRepository = next
		return rec
	}))
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	t.Run("queued", func(t *testing.T) {
		rec.calls = nil
		_, err := f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Content: "offline"})
		require.NoError(t, err)
		assert.Equal(t, []string{"increment_unread", "set_last_message"}, rec.calls)
	})

	t.Run("delivered", func(t *testing.T) {
		f.presence.setOnline(bob, true)
		rec.calls = nil
		pushesAtLast := -1
		rec.at = func(call string) {
			if call == "set_last_message" {
				pushesAtLast = len(f.presence.pushesTo(bob))
			}
		}
		t.Cleanup(func() { rec.at = nil })

		res, err := f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Content: "online"})
		require.NoError(t, err)
		assert.Equal(t, realtime.Delivered, res.Outcome)
		assert.Equal(t, []string{"set_last_message"}, rec.calls)
		assert.Equal(t, 1, pushesAtLast)
		assert.Equal(t, res.Message.ID, f.channel(t, alice, bob).LastMessageID)
	})
}

func TestSend_PersistFailureRemovesUploads(t *testing.T) {
	f := newFixture(t, withMessageRepo(failingMessages{}))
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	_, err := f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: bob, Media: []media.Upload{image(), video()}})
	require.Error(t, err)
	assert.Equal(t, appErrors.CodeInternal, appErrors.CodeOf(err))
	assert.Equal(t, "internal server error", appErrors.MessageOf(err))
	assert.Equal(t, 0, f.blobs.Len())
	assert.Empty(t, f.events.Subjects())
}

func TestList_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	const total = 25
	for i := 0; i < total; i++ {
		from, to := alice, bob
		if i%3 == 0 {
			from, to = bob, alice
		}
		_, err := f.messages.Send(ctx, SendInput{SenderID: from, ReceiverID: to, Content: "m"})
		require.NoError(t, err)
	}
	_, err := f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: carol, Content: "other"})
	require.NoError(t, err)

	seen := make(map[string]bool)
	var sizes []int
	var prev string
	cursor := ""
	for {
		page, err := f.messages.List(ctx, alice, bob, cursor, 10)
		require.NoError(t, err)
		sizes = append(sizes, len(page.Data))
		assert.LessOrEqual(t, len(page.Data), 10)

		for _, m := range page.Data {
			assert.False(t, seen[m.ID], "duplicate %s", m.ID)
			seen[m.ID] = true
			if prev != "" {
				assert.Less(t, m.ID, prev, "newest first")
			}
			prev = m.ID
		}

		if len(page.Data) < 10 {
			assert.Nil(t, page.Meta.LastOffset)
			break
		}
		require.NotNil(t, page.Meta.LastOffset)
		assert.Equal(t, page.Data[len(page.Data)-1].ID, *page.Meta.LastOffset)
		cursor = *page.Meta.LastOffset
	}

	assert.Equal(t, []int{10, 10, 5}, sizes)
	assert.Len(t, seen, total)

	t.Run("invalid cursor", func(t *testing.T) {
		_, err := f.messages.List(ctx, alice, bob, "nope", 10)
		assert.ErrorIs(t, err, appErrors.ErrInvalidCursor)
	})

	t.Run("page size is clamped", func(t *testing.T) {
		page, err := f.messages.List(ctx, alice, bob, "", 0)
		require.NoError(t, err)
		assert.Len(t, page.Data, DefaultPageSize)
		assert.Equal(t, DefaultPageSize, page.Meta.PageSize)
	})
}

func TestMarkAllRead_NoChannel(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.user(t, "alice"), f.user(t, "bob")

	err := f.messages.MarkAllRead(context.Background(), alice, bob)
	assert.ErrorIs(t, err, appErrors.ErrChannelNotFound)
	assert.Equal(t, appErrors.CodeNotFound, appErrors.CodeOf(err))
}

func TestListChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob, carol := f.user(t, "alice"), f.user(t, "bob"), f.user(t, "carol")

	avatar := image()
	_, err := f.users.SetAvatar(ctx, bob, &avatar)
	require.NoError(t, err)

	_, err = f.messages.Send(ctx, SendInput{SenderID: alice, ReceiverID: carol, Content: "to carol"})
	require.NoError(t, err)
	last, err := f.messages.Send(ctx, SendInput{SenderID: bob, ReceiverID: alice, Content: "from bob", Media: []media.Upload{image()}})
	require.NoError(t, err)

	channels, err := f.messages.ListChannels(ctx, alice)
	require.NoError(t, err)
	require.Len(t, channels, 2)

	latest := channels[0]
	require.NotNil(t, latest.LastMessage)
	assert.Equal(t, last.Message.ID, latest.LastMessage.ID)
	assert.Equal(t, "from bob", latest.LastMessage.Content)
	require.Len(t, latest.LastMessage.Media, 1)
	assert.True(t, strings.HasPrefix(latest.LastMessage.Media[0].MediaURL, "memory://"))

	require.Len(t, latest.Members, 2)
	for _, m := range latest.Members {
		switch m.User.ID {
		case bob:
			assert.Equal(t, "bob", m.User.Username)
			assert.True(t, strings.HasPrefix(m.User.ProfilePicture, "memory://"))
			assert.Equal(t, 0, m.UnreadCount)
		case alice:
			assert.Empty(t, m.User.ProfilePicture)
			assert.Equal(t, 1, m.UnreadCount)
		default:
			t.Fatalf("unexpected member %s", m.User.ID)
		}
	}

	others, err := f.messages.ListChannels(ctx, carol)
	require.NoError(t, err)
	assert.Len(t, others, 1)
}
