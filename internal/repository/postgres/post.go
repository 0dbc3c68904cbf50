package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postSelect = `
	SELECT p.id, p.user_id, p.content, p.hashtags, p.media, p.likes, p.replies,
	       p.is_repost, p.repost_id, p.created_at,
	       u.email, u.username, u.fullname, u.bio, u.profile_picture, u.created_at
	FROM posts p
	JOIN users u ON u.id = p.user_id`

type PostStore struct {
	pool *pgxpool.Pool
}

func NewPostStore(pool *pgxpool.Pool) *PostStore {
	return &PostStore{pool: pool}
}

func (s *PostStore) Create(ctx context.Context, p *models.Post) error {
	media, err := json.Marshal(nonNilMedia(p.Media))
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	hashtags := p.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}

	query := `
		INSERT INTO posts (user_id, content, hashtags, media, is_repost, repost_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err = s.pool.QueryRow(ctx, query,
		p.UserID, p.Content, hashtags, media, p.IsRepost, p.RepostID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostStore) GetByID(ctx context.Context, postID int64) (*models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, postSelect+` WHERE p.id = $1`, postID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

func (s *PostStore) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Post, error) {
	out := make(map[int64]models.Post, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	posts, err := s.query(ctx, postSelect+` WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		out[p.ID] = p
	}
	return out, nil
}

// List pages forward through the feed: id > after, ascending.
func (s *PostStore) List(ctx context.Context, after int64, limit int) ([]models.Post, error) {
	query := postSelect + `
		WHERE p.id > $1
		ORDER BY p.id ASC
		LIMIT $2`
	return s.query(ctx, query, after, limit)
}

func (s *PostStore) ListByUser(ctx context.Context, userID uuid.UUID, reposts bool, after int64, limit int) ([]models.Post, error) {
	query := postSelect + `
		WHERE p.user_id = $1 AND p.is_repost = $2 AND p.id > $3
		ORDER BY p.id ASC
		LIMIT $4`
	return s.query(ctx, query, userID, reposts, after, limit)
}

// Delete removes replies, likes and the post in one transaction so no
// reader sees likes or replies pointing at a missing post.
func (s *PostStore) Delete(ctx context.Context, postID int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM replies WHERE post_id = $1`, postID); err != nil {
			return fmt.Errorf("delete replies: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM likes WHERE post_id = $1`, postID); err != nil {
			return fmt.Errorf("delete likes: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID)
		if err != nil {
			return fmt.Errorf("delete post: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (s *PostStore) query(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]models.Post, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func scanPost(row pgx.Row) (*models.Post, error) {
	var (
		p     models.Post
		u     models.User
		media []byte
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Content,
		&p.Hashtags,
		&media,
		&p.Likes,
		&p.Replies,
		&p.IsRepost,
		&p.RepostID,
		&p.CreatedAt,
		&u.Email,
		&u.Username,
		&u.Fullname,
		&u.Bio,
		&u.ProfilePicture,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(media, &p.Media); err != nil {
		return nil, fmt.Errorf("decode media: %w", err)
	}
	u.ID = p.UserID
	p.Author = &u
	return &p, nil
}

func nonNilMedia(items []models.MediaItem) []models.MediaItem {
	if items == nil {
		return []models.MediaItem{}
	}
	return items
}
