package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
)

// Directory maps a pair of users to their one channel.
type Directory struct {
	channels repository.ChannelRepository
}

func NewDirectory(channels repository.ChannelRepository) *Directory {
	return &Directory{channels: channels}
}

// GetOrCreate returns the channel shared by a and b, creating it with both
// unread counters at zero on first contact. Concurrent first contacts
// converge on the same channel through the store's pair constraint.
func (d *Directory) GetOrCreate(ctx context.Context, a, b uuid.UUID) (*models.Channel, error) {
	ch, err := d.channels.FindByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		return ch, nil
	}
	return d.channels.CreatePair(ctx, a, b)
}
