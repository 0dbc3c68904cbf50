package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChannelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

func (s *ChannelStore) FindByPair(ctx context.Context, a, b uuid.UUID) (*models.Channel, error) {
	low, high := models.OrderedPair(a, b)
	query := `
		SELECT id, member_low, member_high, COALESCE(last_message_id, ''), created_at
		FROM channels
		WHERE member_low = $1 AND member_high = $2`

	var ch models.Channel
	err := s.pool.QueryRow(ctx, query, low, high).Scan(
		&ch.ID,
		&ch.MemberLow,
		&ch.MemberHigh,
		&ch.LastMessageID,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find channel: %w", err)
	}

	members, err := s.listMembers(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	ch.Members = members
	return &ch, nil
}

// CreatePair inserts the channel for {a, b} and both member rows.
//
// Why store the pair as (member_low, member_high)?
//   - A conversation between alice and bob is the same conversation as one
//     between bob and alice. Sorting the two ids before the insert gives
//     every unordered pair exactly one spelling.
//   - With one spelling, UNIQUE (member_low, member_high) is enough to
//     guarantee one channel per pair. No lookup-then-insert race can slip a
//     second row past it, because the database rejects it.
//   - The CHECK (member_low < member_high) constraint catches a caller that
//     forgets to sort, instead of silently creating a mirrored duplicate.
func (s *ChannelStore) CreatePair(ctx context.Context, a, b uuid.UUID) (*models.Channel, error) {
	low, high := models.OrderedPair(a, b)

	// ON CONFLICT DO NOTHING: a concurrent first message between the same
	// pair waits for the other insert, then inserts nothing. Both callers
	// end up reading the same row below.
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var channelID uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO channels (member_low, member_high)
			VALUES ($1, $2)
			ON CONFLICT (member_low, member_high) DO NOTHING
			RETURNING id`, low, high).Scan(&channelID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO channel_members (channel_id, user_id, unread_count)
			VALUES ($1, $2, 0), ($1, $3, 0)`, channelID, low, high)
		if err != nil {
			return fmt.Errorf("insert channel members: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ch, err := s.FindByPair(ctx, low, high)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("channel vanished after insert")
	}
	return ch, nil
}

func (s *ChannelStore) IncrementUnread(ctx context.Context, channelID, userID uuid.UUID) error {
	query := `
		UPDATE channel_members
		SET unread_count = unread_count + 1
		WHERE channel_id = $1 AND user_id = $2`

	tag, err := s.pool.Exec(ctx, query, channelID, userID)
	if err != nil {
		return fmt.Errorf("increment unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *ChannelStore) SetLastMessage(ctx context.Context, channelID uuid.UUID, messageID string) error {
	query := `
		UPDATE channels
		SET last_message_id = $2, updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, channelID, messageID)
	if err != nil {
		return fmt.Errorf("set last message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *ChannelStore) ResetUnread(ctx context.Context, userID, otherID uuid.UUID) error {
	low, high := models.OrderedPair(userID, otherID)
	query := `
		UPDATE channel_members m
		SET unread_count = 0
		FROM channels c
		WHERE m.channel_id = c.id
		  AND c.member_low = $1 AND c.member_high = $2
		  AND m.user_id = $3`

	tag, err := s.pool.Exec(ctx, query, low, high, userID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *ChannelStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Channel, error) {
	// One row per (channel, member). Rows of a channel are adjacent because
	// of the ORDER BY, so grouping is a single pass.
	query := `
		SELECT c.id, c.member_low, c.member_high, COALESCE(c.last_message_id, ''), c.created_at,
		       m.user_id, m.unread_count,
		       u.email, u.username, u.fullname, u.bio, u.profile_picture, u.created_at
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		JOIN users u ON u.id = m.user_id
		WHERE c.member_low = $1 OR c.member_high = $1
		ORDER BY c.updated_at DESC, c.id, m.user_id`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]models.Channel, 0)
	for rows.Next() {
		var (
			ch models.Channel
			m  models.ChannelMember
			u  models.User
		)
		if err := rows.Scan(
			&ch.ID,
			&ch.MemberLow,
			&ch.MemberHigh,
			&ch.LastMessageID,
			&ch.CreatedAt,
			&m.UserID,
			&m.UnreadCount,
			&u.Email,
			&u.Username,
			&u.Fullname,
			&u.Bio,
			&u.ProfilePicture,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		u.ID = m.UserID
		m.ChannelID = ch.ID
		m.User = &u

		if n := len(channels); n > 0 && channels[n-1].ID == ch.ID {
			channels[n-1].Members = append(channels[n-1].Members, m)
			continue
		}
		ch.Members = []models.ChannelMember{m}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}

func (s *ChannelStore) listMembers(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	query := `
		SELECT channel_id, user_id, unread_count
		FROM channel_members
		WHERE channel_id = $1
		ORDER BY user_id`

	rows, err := s.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.ChannelMember, 0, 2)
	for rows.Next() {
		var m models.ChannelMember
		if err := rows.Scan(&m.ChannelID, &m.UserID, &m.UnreadCount); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}
