package media

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/storage"
	"go.uber.org/zap"
)

// Processor uploads files one at a time and records their storage keys.
type Processor struct {
	store  storage.BlobStore
	thumbs Thumbnailer
	forget storage.Forgetter
	logger *zap.Logger
}

func NewProcessor(store storage.BlobStore, thumbs Thumbnailer, logger *zap.Logger) *Processor {
	return &Processor{store: store, thumbs: thumbs, logger: logger}
}

// ForgetOnDiscard makes Discard also drop cached state for each removed key,
// typically a caching signer.
func (p *Processor) ForgetOnDiscard(f storage.Forgetter) {
	p.forget = f
}

// StoreAll stores every upload under dirs. If any upload fails, the files
// already written by this call are removed and the error is returned.
func (p *Processor) StoreAll(ctx context.Context, dirs Dirs, uploads []Upload) ([]models.MediaItem, error) {
	items := make([]models.MediaItem, 0, len(uploads))
	for _, up := range uploads {
		item, err := p.Store(ctx, dirs, up)
		if err != nil {
			p.Discard(ctx, items)
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Store uploads one file. Videos also get a thumbnail; a thumbnail failure
// fails the whole item.
func (p *Processor) Store(ctx context.Context, dirs Dirs, up Upload) (models.MediaItem, error) {
	contentType, err := DetectType(up)
	if err != nil {
		return models.MediaItem{}, err
	}

	name := uuid.NewString()
	key := path.Join(dirs.Media, name+extension(contentType))

	rc, err := up.Open()
	if err != nil {
		return models.MediaItem{}, fmt.Errorf("open upload: %w", err)
	}
	key, err = p.store.Put(ctx, key, contentType, rc, up.Size)
	rc.Close()
	if err != nil {
		return models.MediaItem{}, fmt.Errorf("upload media: %w", err)
	}

	item := models.MediaItem{MediaType: contentType, MediaURL: key}
	if !IsVideo(contentType) {
		return item, nil
	}

	thumb, err := p.thumbnail(ctx, path.Join(dirs.Thumbnails, name+".jpeg"), up)
	if err != nil {
		p.Discard(ctx, []models.MediaItem{item})
		return models.MediaItem{}, err
	}
	item.Thumbnail = thumb
	return item, nil
}

func (p *Processor) thumbnail(ctx context.Context, key string, up Upload) (string, error) {
	rc, err := up.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	frame, err := p.thumbs.Frame(ctx, rc)
	if err != nil {
		return "", fmt.Errorf("generate thumbnail: %w", err)
	}
	key, err = p.store.Put(ctx, key, "image/jpeg", bytes.NewReader(frame), int64(len(frame)))
	if err != nil {
		return "", fmt.Errorf("upload thumbnail: %w", err)
	}
	return key, nil
}

// Discard removes stored files and their thumbnails. Failures are logged,
// never returned.
func (p *Processor) Discard(ctx context.Context, items []models.MediaItem) {
	for _, item := range items {
		for _, key := range []string{item.MediaURL, item.Thumbnail} {
			if key == "" {
				continue
			}
			if err := p.store.Delete(ctx, key); err != nil {
				p.logger.Warn("failed to delete orphaned blob", zap.String("key", key), zap.Error(err))
			}
			if p.forget != nil {
				p.forget.Forget(ctx, key)
			}
		}
	}
}
