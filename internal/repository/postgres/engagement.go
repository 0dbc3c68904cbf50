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

// LikeStore and ReplyStore change a row and the matching post counter in
// the same transaction. The post row is locked first so concurrent likes on
// one post serialize instead of racing on the counter.

type LikeStore struct {
	pool *pgxpool.Pool
}

func NewLikeStore(pool *pgxpool.Pool) *LikeStore {
	return &LikeStore{pool: pool}
}

func (s *LikeStore) Like(ctx context.Context, postID int64, userID uuid.UUID) (bool, error) {
	var liked bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockPost(ctx, tx, postID); err != nil {
			return err
		}

		// The (post_id, user_id) unique key turns a repeated like into a
		// no-op rather than a second row.
		tag, err := tx.Exec(ctx, `
			INSERT INTO likes (post_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (post_id, user_id) DO NOTHING`, postID, userID)
		if err != nil {
			return fmt.Errorf("insert like: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE posts SET likes = likes + 1 WHERE id = $1`, postID); err != nil {
			return fmt.Errorf("increment likes: %w", err)
		}
		liked = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return liked, nil
}

func (s *LikeStore) Unlike(ctx context.Context, postID int64, userID uuid.UUID) (bool, error) {
	var removed bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockPost(ctx, tx, postID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `DELETE FROM likes WHERE post_id = $1 AND user_id = $2`, postID, userID)
		if err != nil {
			return fmt.Errorf("delete like: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, `UPDATE posts SET likes = GREATEST(likes - 1, 0) WHERE id = $1`, postID); err != nil {
			return fmt.Errorf("decrement likes: %w", err)
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (s *LikeStore) LikedPostIDs(ctx context.Context, userID uuid.UUID, postIDs []int64) (map[int64]bool, error) {
	liked := make(map[int64]bool, len(postIDs))
	if len(postIDs) == 0 {
		return liked, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT post_id FROM likes WHERE user_id = $1 AND post_id = ANY($2)`, userID, postIDs)
	if err != nil {
		return nil, fmt.Errorf("list likes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan like: %w", err)
		}
		liked[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate likes: %w", err)
	}
	return liked, nil
}

type ReplyStore struct {
	pool *pgxpool.Pool
}

func NewReplyStore(pool *pgxpool.Pool) *ReplyStore {
	return &ReplyStore{pool: pool}
}

func (s *ReplyStore) Create(ctx context.Context, r *models.Reply) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE posts SET replies = replies + 1 WHERE id = $1`, r.PostID)
		if err != nil {
			return fmt.Errorf("increment replies: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO replies (post_id, user_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, created_at`, r.PostID, r.UserID, r.Content,
		).Scan(&r.ID, &r.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert reply: %w", err)
		}
		return nil
	})
}

func (s *ReplyStore) ListByPost(ctx context.Context, postID int64, after int64, limit int) ([]models.Reply, error) {
	query := `
		SELECT r.id, r.post_id, r.user_id, r.content, r.created_at,
		       u.email, u.username, u.fullname, u.bio, u.profile_picture, u.created_at
		FROM replies r
		JOIN users u ON u.id = r.user_id
		WHERE r.post_id = $1 AND r.id > $2
		ORDER BY r.id ASC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, postID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	defer rows.Close()

	replies := make([]models.Reply, 0)
	for rows.Next() {
		var (
			r models.Reply
			u models.User
		)
		if err := rows.Scan(
			&r.ID,
			&r.PostID,
			&r.UserID,
			&r.Content,
			&r.CreatedAt,
			&u.Email,
			&u.Username,
			&u.Fullname,
			&u.Bio,
			&u.ProfilePicture,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		u.ID = r.UserID
		r.Author = &u
		replies = append(replies, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replies: %w", err)
	}
	return replies, nil
}

// lockPost takes a row lock on the post for the rest of tx.
//
// Why lock the post row instead of relying on the likes unique key?
//   - The unique key stops a duplicate like, but the counter update is a
//     separate statement. Without the lock, a like and an unlike from the
//     same user can interleave so that the row and the counter disagree.
//   - Locking the post serializes every like and unlike on that post, so
//     posts.likes always equals the number of rows in likes. Likes on
//     different posts still run in parallel.
//   - The same SELECT doubles as the existence check: no row means
//     ErrNotFound, before anything is written.
func lockPost(ctx context.Context, tx pgx.Tx, postID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM posts WHERE id = $1 FOR UPDATE`, postID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("lock post: %w", err)
	}
	return nil
}
