package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/events"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository/memory"
	"github.com/htyf-mp-community/Thread-Rest/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type push struct {
	userID  uuid.UUID
	event   string
	payload any
}

// presence is a fake push channel with a settable set of online users.
type presence struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	pushes []push
}

func newPresence() *presence {
	return &presence{online: make(map[uuid.UUID]bool)}
}

func (p *presence) setOnline(id uuid.UUID, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[id] = online
}

func (p *presence) IsConnected(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[id]
}

func (p *presence) Push(id uuid.UUID, event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, push{userID: id, event: event, payload: payload})
}

func (p *presence) pushesTo(id uuid.UUID) []push {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []push
	for _, ps := range p.pushes {
		if ps.userID == id {
			out = append(out, ps)
		}
	}
	return out
}

// frameThumbnailer returns a fixed frame and counts how often it ran.
type frameThumbnailer struct {
	mu    sync.Mutex
	calls int
}

func (f *frameThumbnailer) Frame(_ context.Context, video io.Reader) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	_, err := io.Copy(io.Discard, video)
	return []byte("jpeg"), err
}

func (f *frameThumbnailer) frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	db        *memory.DB
	blobs     *storage.MemoryStore
	presence  *presence
	thumbs    *frameThumbnailer
	events    *events.Recorder
	processor *media.Processor

	messages   *MessageService
	posts      *PostService
	engagement *EngagementService
	users      *UserService
}

type fixtureOption func(*fixtureDeps)

type fixtureDeps struct {
	messages repository.MessageRepository
	channels repository.ChannelRepository
}

func withMessageRepo(r repository.MessageRepository) fixtureOption {
	return func(d *fixtureDeps) { d.messages = r }
}

// wrapChannelRepo decorates the fixture's channel repository.
func wrapChannelRepo(wrap func(repository.ChannelRepository) repository.ChannelRepository) fixtureOption {
	return func(d *fixtureDeps) { d.channels = wrap(d.channels) }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := memory.New()
	deps := fixtureDeps{messages: db.Messages(), channels: db.Channels()}
	for _, o := range opts {
		o(&deps)
	}

	logger := zap.NewNop()
	blobs := storage.NewMemoryStore(time.Minute)
	thumbs := &frameThumbnailer{}
	processor := media.NewProcessor(blobs, thumbs, logger)
	resolver := media.NewResolver(blobs)
	pres := newPresence()
	rec := &events.Recorder{}

	return &fixture{
		db:         db,
		blobs:      blobs,
		presence:   pres,
		thumbs:     thumbs,
		events:     rec,
		processor:  processor,
		messages:   NewMessageService(db.Users(), deps.channels, deps.messages, processor, resolver, pres, rec, logger),
		posts:      NewPostService(db.Users(), db.Posts(), db.Likes(), processor, resolver, rec, logger),
		engagement: NewEngagementService(db.Users(), db.Likes(), db.Replies(), resolver, rec, logger),
		users:      NewUserService(db.Users(), processor, resolver, logger),
	}
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u := &models.User{Email: name + "@example.com", Username: name, Fullname: name}
	require.NoError(t, f.db.Users().Create(context.Background(), u))
	return u.ID
}

func (f *fixture) channel(t *testing.T, a, b uuid.UUID) *models.Channel {
	t.Helper()
	ch, err := f.db.Channels().FindByPair(context.Background(), a, b)
	require.NoError(t, err)
	require.NotNil(t, ch)
	return ch
}

func (f *fixture) post(t *testing.T, userID uuid.UUID, content string) *PostView {
	t.Helper()
	p, err := f.posts.Create(context.Background(), CreatePostInput{UserID: userID, Content: content})
	require.NoError(t, err)
	return p
}

func image() media.Upload {
	return media.Upload{
		ContentType: "image/png",
		Size:        int64(len(pngBytes)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(pngBytes)), nil
		},
	}
}

func video() media.Upload {
	body := []byte("fake mp4 body")
	return media.Upload{
		ContentType: "video/mp4",
		Size:        int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		},
	}
}
