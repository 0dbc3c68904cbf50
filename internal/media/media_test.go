package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func upload(contentType string, body []byte) Upload {
	return Upload{
		ContentType: contentType,
		Size:        int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		},
	}
}

type fakeThumbnailer struct {
	frame []byte
	err   error
	calls int
}

func (f *fakeThumbnailer) Frame(_ context.Context, video io.Reader) ([]byte, error) {
	f.calls++
	if _, err := io.ReadAll(video); err != nil {
		return nil, err
	}
	return f.frame, f.err
}

func TestProcessor_Store(t *testing.T) {
	ctx := context.Background()
	sender, receiver := uuid.New(), uuid.New()

	t.Run("image goes under the message directory", func(t *testing.T) {
		store := storage.NewMemoryStore(time.Minute)
		thumbs := &fakeThumbnailer{}
		p := NewProcessor(store, thumbs, zap.NewNop())

		item, err := p.Store(ctx, MessageDirs(sender, receiver), upload("image/png", pngHeader))
		require.NoError(t, err)

		prefix := "messages/" + sender.String() + "/" + receiver.String() + "/"
		assert.True(t, strings.HasPrefix(item.MediaURL, prefix), item.MediaURL)
		assert.True(t, strings.HasSuffix(item.MediaURL, ".png"), item.MediaURL)
		assert.Equal(t, "image/png", item.MediaType)
		assert.Empty(t, item.Thumbnail)
		assert.Zero(t, thumbs.calls)

		got, _, err := store.Get(item.MediaURL)
		require.NoError(t, err)
		assert.Equal(t, pngHeader, got)
	})

	t.Run("video gets a jpeg thumbnail", func(t *testing.T) {
		store := storage.NewMemoryStore(time.Minute)
		thumbs := &fakeThumbnailer{frame: []byte("jpeg-bytes")}
		p := NewProcessor(store, thumbs, zap.NewNop())
		owner := uuid.New()

		item, err := p.Store(ctx, PostDirs(owner), upload("video/mp4", []byte("fake mp4")))
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(item.MediaURL, "posts/"+owner.String()+"/"))
		assert.True(t, strings.HasSuffix(item.MediaURL, ".mp4"))
		assert.True(t, strings.HasPrefix(item.Thumbnail, "thumbnails/"+owner.String()+"/"))
		assert.True(t, strings.HasSuffix(item.Thumbnail, ".jpeg"))

		got, contentType, err := store.Get(item.Thumbnail)
		require.NoError(t, err)
		assert.Equal(t, []byte("jpeg-bytes"), got)
		assert.Equal(t, "image/jpeg", contentType)
	})

	t.Run("thumbnail failure fails the item and removes the video", func(t *testing.T) {
		store := storage.NewMemoryStore(time.Minute)
		p := NewProcessor(store, &fakeThumbnailer{err: errors.New("boom")}, zap.NewNop())

		_, err := p.Store(ctx, PostDirs(uuid.New()), upload("video/mp4", []byte("fake mp4")))
		assert.Error(t, err)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("generic content type is sniffed", func(t *testing.T) {
		store := storage.NewMemoryStore(time.Minute)
		p := NewProcessor(store, &fakeThumbnailer{}, zap.NewNop())

		item, err := p.Store(ctx, AvatarDirs(uuid.New()), upload("application/octet-stream", pngHeader))
		require.NoError(t, err)
		assert.Equal(t, "image/png", item.MediaType)
		assert.True(t, strings.HasPrefix(item.MediaURL, "avatars/"))
	})
}

func TestProcessor_StoreAll(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps upload order", func(t *testing.T) {
		store := storage.NewMemoryStore(time.Minute)
		p := NewProcessor(store, &fakeThumbnailer{frame: []byte("j")}, zap.NewNop())

		items, err := p.StoreAll(ctx, PostDirs(uuid.New()), []Upload{
			upload("image/png", pngHeader),
			upload("video/mp4", []byte("v")),
		})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "image/png", items[0].MediaType)
		assert.Equal(t, "video/mp4", items[1].MediaType)
		assert.Equal(t, 3, store.Len())
	})

	t.Run("failure removes earlier uploads", func(t *testing.T) {
		store := storage.NewMemoryStore(time.Minute)
		p := NewProcessor(store, &fakeThumbnailer{err: errors.New("no frame")}, zap.NewNop())

		_, err := p.StoreAll(ctx, PostDirs(uuid.New()), []Upload{
			upload("image/png", pngHeader),
			upload("video/mp4", []byte("v")),
		})
		assert.Error(t, err)
		assert.Equal(t, 0, store.Len())
	})
}

func TestProcessor_DiscardForgetsSignedURLs(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := storage.NewMemoryStore(time.Minute)
	signer := storage.NewCachedSigner(store, rdb, time.Minute, zap.NewNop())
	p := NewProcessor(store, &fakeThumbnailer{frame: []byte("jpeg")}, zap.NewNop())
	p.ForgetOnDiscard(signer)

	item, err := p.Store(ctx, PostDirs(uuid.New()), upload("video/mp4", []byte("video")))
	require.NoError(t, err)
	for _, key := range []string{item.MediaURL, item.Thumbnail} {
		_, err := signer.Sign(ctx, key)
		require.NoError(t, err)
		require.True(t, mr.Exists("signed_url:"+key))
	}

	p.Discard(ctx, []models.MediaItem{item})

	assert.Equal(t, 0, store.Len())
	assert.False(t, mr.Exists("signed_url:"+item.MediaURL))
	assert.False(t, mr.Exists("signed_url:"+item.Thumbnail))
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(time.Minute)
	for _, k := range []string{"posts/u/a.mp4", "thumbnails/u/a.jpeg"} {
		_, err := store.Put(ctx, k, "", bytes.NewReader([]byte(k)), int64(len(k)))
		require.NoError(t, err)
	}
	r := NewResolver(store)

	item := models.MediaItem{MediaType: "video/mp4", MediaURL: "posts/u/a.mp4", Thumbnail: "thumbnails/u/a.jpeg"}
	v, err := r.View(ctx, item)
	require.NoError(t, err)

	assert.NotEqual(t, item.MediaURL, v.MediaURL)
	assert.NotEqual(t, item.Thumbnail, v.Thumbnail)
	assert.Equal(t, "posts/u/a.mp4", item.MediaURL, "stored item must not change")

	body, _, err := store.Open(v.MediaURL)
	require.NoError(t, err)
	assert.Equal(t, []byte("posts/u/a.mp4"), body)

	empty, err := r.Sign(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = r.Views(ctx, []models.MediaItem{{MediaURL: "missing"}})
	assert.Error(t, err)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".png", extension("image/png"))
	assert.Equal(t, ".mp4", extension("video/mp4"))
	assert.Equal(t, ".x-custom", extension("application/x-custom"))
	assert.Equal(t, ".bin", extension(""))
}
