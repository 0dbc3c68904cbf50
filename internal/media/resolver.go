package media

import (
	"context"
	"fmt"

	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/storage"
)

// View is a MediaItem as sent to clients: MediaURL and Thumbnail are signed
// URLs.
type View struct {
	MediaType string `json:"media_type"`
	MediaURL  string `json:"media_url"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Resolver signs storage keys for responses. It never touches the items it
// is given.
type Resolver struct {
	signer storage.Signer
}

func NewResolver(signer storage.Signer) *Resolver {
	return &Resolver{signer: signer}
}

func (r *Resolver) View(ctx context.Context, item models.MediaItem) (View, error) {
	url, err := r.signer.Sign(ctx, item.MediaURL)
	if err != nil {
		return View{}, fmt.Errorf("sign media: %w", err)
	}
	v := View{MediaType: item.MediaType, MediaURL: url}
	if item.Thumbnail != "" {
		if v.Thumbnail, err = r.signer.Sign(ctx, item.Thumbnail); err != nil {
			return View{}, fmt.Errorf("sign thumbnail: %w", err)
		}
	}
	return v, nil
}

func (r *Resolver) Views(ctx context.Context, items []models.MediaItem) ([]View, error) {
	views := make([]View, 0, len(items))
	for _, item := range items {
		v, err := r.View(ctx, item)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Sign signs a single key such as a profile picture. An empty key yields an
// empty URL.
func (r *Resolver) Sign(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	url, err := r.signer.Sign(ctx, key)
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", key, err)
	}
	return url, nil
}
