// Package memory implements the repository interfaces on top of maps. It
// mirrors the Postgres and MongoDB stores closely enough (unique keys,
// counter floors, ordering, cursors) to back service and handler tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
)

type pairKey struct{ low, high uuid.UUID }

type likeKey struct {
	postID int64
	userID uuid.UUID
}

type channelRow struct {
	channel models.Channel
	touched int64
}

// DB holds every table. Use the accessor methods to get a repository.
type DB struct {
	mu sync.Mutex

	seq int64

	users    map[uuid.UUID]models.User
	channels map[pairKey]*channelRow
	messages []models.Message
	posts    map[int64]models.Post
	likes    map[likeKey]models.Like
	replies  map[int64]models.Reply
}

func New() *DB {
	return &DB{
		users:    make(map[uuid.UUID]models.User),
		channels: make(map[pairKey]*channelRow),
		posts:    make(map[int64]models.Post),
		likes:    make(map[likeKey]models.Like),
		replies:  make(map[int64]models.Reply),
	}
}

func (db *DB) Users() *UserStore       { return &UserStore{db: db} }
func (db *DB) Channels() *ChannelStore { return &ChannelStore{db: db} }
func (db *DB) Messages() *MessageStore { return &MessageStore{db: db} }
func (db *DB) Posts() *PostStore       { return &PostStore{db: db} }
func (db *DB) Likes() *LikeStore       { return &LikeStore{db: db} }
func (db *DB) Replies() *ReplyStore    { return &ReplyStore{db: db} }

// CountLikes returns how many like rows reference postID.
func (db *DB) CountLikes(postID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for k := range db.likes {
		if k.postID == postID {
			n++
		}
	}
	return n
}

// CountReplies returns how many reply rows reference postID.
func (db *DB) CountReplies(postID int64) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, r := range db.replies {
		if r.PostID == postID {
			n++
		}
	}
	return n
}

// CountChannels returns how many channels exist.
func (db *DB) CountChannels() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.channels)
}

func (db *DB) next() int64 {
	db.seq++
	return db.seq
}

func (db *DB) author(id uuid.UUID) *models.User {
	u, ok := db.users[id]
	if !ok {
		return nil
	}
	return &u
}

func key(a, b uuid.UUID) pairKey {
	low, high := models.OrderedPair(a, b)
	return pairKey{low: low, high: high}
}

type UserStore struct{ db *DB }

func (s *UserStore) Create(_ context.Context, u *models.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, existing := range s.db.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return repository.ErrConflict
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = time.Now().UTC()
	s.db.users[u.ID] = *u
	return nil
}

func (s *UserStore) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.author(userID), nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *UserStore) SetProfilePicture(_ context.Context, userID uuid.UUID, k string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u, ok := s.db.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.ProfilePicture = k
	s.db.users[userID] = u
	return nil
}

type ChannelStore struct{ db *DB }

func (s *ChannelStore) FindByPair(_ context.Context, a, b uuid.UUID) (*models.Channel, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	row, ok := s.db.channels[key(a, b)]
	if !ok {
		return nil, nil
	}
	ch := copyChannel(row.channel)
	return &ch, nil
}

func (s *ChannelStore) CreatePair(_ context.Context, a, b uuid.UUID) (*models.Channel, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	k := key(a, b)
	if row, ok := s.db.channels[k]; ok {
		ch := copyChannel(row.channel)
		return &ch, nil
	}
	id := uuid.New()
	row := &channelRow{
		channel: models.Channel{
			ID:         id,
			MemberLow:  k.low,
			MemberHigh: k.high,
			Members: []models.ChannelMember{
				{ChannelID: id, UserID: k.low},
				{ChannelID: id, UserID: k.high},
			},
			CreatedAt: time.Now().UTC(),
		},
		touched: s.db.next(),
	}
	s.db.channels[k] = row
	ch := copyChannel(row.channel)
	return &ch, nil
}

func (s *ChannelStore) IncrementUnread(_ context.Context, channelID, userID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	row := s.db.channelByID(channelID)
	if row == nil {
		return repository.ErrNotFound
	}
	m := row.channel.Member(userID)
	if m == nil {
		return repository.ErrNotFound
	}
	m.UnreadCount++
	return nil
}

func (s *ChannelStore) SetLastMessage(_ context.Context, channelID uuid.UUID, messageID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	row := s.db.channelByID(channelID)
	if row == nil {
		return repository.ErrNotFound
	}
	row.channel.LastMessageID = messageID
	row.touched = s.db.next()
	return nil
}

func (s *ChannelStore) ResetUnread(_ context.Context, userID, otherID uuid.UUID) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	row, ok := s.db.channels[key(userID, otherID)]
	if !ok {
		return repository.ErrNotFound
	}
	m := row.channel.Member(userID)
	if m == nil {
		return repository.ErrNotFound
	}
	m.UnreadCount = 0
	return nil
}

func (s *ChannelStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Channel, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rows := make([]*channelRow, 0)
	for k, row := range s.db.channels {
		if k.low == userID || k.high == userID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].touched > rows[j].touched })

	out := make([]models.Channel, 0, len(rows))
	for _, row := range rows {
		ch := copyChannel(row.channel)
		for i := range ch.Members {
			ch.Members[i].User = s.db.author(ch.Members[i].UserID)
		}
		out = append(out, ch)
	}
	return out, nil
}

func (db *DB) channelByID(id uuid.UUID) *channelRow {
	for _, row := range db.channels {
		if row.channel.ID == id {
			return row
		}
	}
	return nil
}

func copyChannel(ch models.Channel) models.Channel {
	ch.Members = append([]models.ChannelMember(nil), ch.Members...)
	return ch
}

// MessageStore ids are 24 hex digits like ObjectIDs and sort the same way.
type MessageStore struct{ db *DB }

func (s *MessageStore) Create(_ context.Context, m *models.Message) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if m.Media == nil {
		m.Media = []models.MediaItem{}
	}
	m.ID = fmt.Sprintf("%024x", s.db.next())
	m.CreatedAt = time.Now().UTC()
	stored := *m
	stored.Media = append([]models.MediaItem(nil), m.Media...)
	s.db.messages = append(s.db.messages, stored)
	return nil
}

func (s *MessageStore) ListBetween(_ context.Context, a, b uuid.UUID, before string, limit int) ([]models.Message, error) {
	var cursor uint64
	if before != "" {
		c, err := parseMessageID(before)
		if err != nil {
			return nil, repository.ErrInvalidCursor
		}
		cursor = c
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Message, 0, limit)
	for i := len(s.db.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.db.messages[i]
		between := (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
		if !between {
			continue
		}
		if before != "" {
			id, _ := parseMessageID(m.ID)
			if id >= cursor {
				continue
			}
		}
		m.Media = append([]models.MediaItem(nil), m.Media...)
		out = append(out, m)
	}
	return out, nil
}

func (s *MessageStore) GetByIDs(_ context.Context, ids []string) (map[string]models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[string]models.Message, len(ids))
	for _, m := range s.db.messages {
		if want[m.ID] {
			out[m.ID] = m
		}
	}
	return out, nil
}

func parseMessageID(id string) (uint64, error) {
	if len(id) != 24 {
		return 0, repository.ErrInvalidCursor
	}
	return strconv.ParseUint(id[8:], 16, 64)
}

type PostStore struct{ db *DB }

func (s *PostStore) Create(_ context.Context, p *models.Post) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if p.Media == nil {
		p.Media = []models.MediaItem{}
	}
	if p.Hashtags == nil {
		p.Hashtags = []string{}
	}
	p.ID = s.db.next()
	p.CreatedAt = time.Now().UTC()
	stored := *p
	stored.Author = nil
	s.db.posts[p.ID] = stored
	return nil
}

func (s *PostStore) GetByID(_ context.Context, postID int64) (*models.Post, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.posts[postID]
	if !ok {
		return nil, nil
	}
	p.Author = s.db.author(p.UserID)
	return &p, nil
}

func (s *PostStore) GetByIDs(_ context.Context, ids []int64) (map[int64]models.Post, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make(map[int64]models.Post, len(ids))
	for _, id := range ids {
		if p, ok := s.db.posts[id]; ok {
			p.Author = s.db.author(p.UserID)
			out[id] = p
		}
	}
	return out, nil
}

func (s *PostStore) List(_ context.Context, after int64, limit int) ([]models.Post, error) {
	return s.list(func(p models.Post) bool { return p.ID > after }, limit), nil
}

func (s *PostStore) ListByUser(_ context.Context, userID uuid.UUID, reposts bool, after int64, limit int) ([]models.Post, error) {
	return s.list(func(p models.Post) bool {
		return p.UserID == userID && p.IsRepost == reposts && p.ID > after
	}, limit), nil
}

func (s *PostStore) list(keep func(models.Post) bool, limit int) []models.Post {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	ids := make([]int64, 0, len(s.db.posts))
	for id, p := range s.db.posts {
		if keep(p) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]models.Post, 0, len(ids))
	for _, id := range ids {
		p := s.db.posts[id]
		p.Author = s.db.author(p.UserID)
		out = append(out, p)
	}
	return out
}

func (s *PostStore) Delete(_ context.Context, postID int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.posts[postID]; !ok {
		return repository.ErrNotFound
	}
	for id, r := range s.db.replies {
		if r.PostID == postID {
			delete(s.db.replies, id)
		}
	}
	for k := range s.db.likes {
		if k.postID == postID {
			delete(s.db.likes, k)
		}
	}
	delete(s.db.posts, postID)
	for id, p := range s.db.posts {
		if p.RepostID != nil && *p.RepostID == postID {
			p.RepostID = nil
			s.db.posts[id] = p
		}
	}
	return nil
}

type LikeStore struct{ db *DB }

func (s *LikeStore) Like(_ context.Context, postID int64, userID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.posts[postID]
	if !ok {
		return false, repository.ErrNotFound
	}
	k := likeKey{postID: postID, userID: userID}
	if _, exists := s.db.likes[k]; exists {
		return false, nil
	}
	s.db.likes[k] = models.Like{ID: s.db.next(), PostID: postID, UserID: userID, CreatedAt: time.Now().UTC()}
	p.Likes++
	s.db.posts[postID] = p
	return true, nil
}

func (s *LikeStore) Unlike(_ context.Context, postID int64, userID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.posts[postID]
	if !ok {
		return false, repository.ErrNotFound
	}
	k := likeKey{postID: postID, userID: userID}
	if _, exists := s.db.likes[k]; !exists {
		return false, nil
	}
	delete(s.db.likes, k)
	if p.Likes > 0 {
		p.Likes--
	}
	s.db.posts[postID] = p
	return true, nil
}

func (s *LikeStore) LikedPostIDs(_ context.Context, userID uuid.UUID, postIDs []int64) (map[int64]bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := make(map[int64]bool, len(postIDs))
	for _, id := range postIDs {
		if _, ok := s.db.likes[likeKey{postID: id, userID: userID}]; ok {
			out[id] = true
		}
	}
	return out, nil
}

type ReplyStore struct{ db *DB }

func (s *ReplyStore) Create(_ context.Context, r *models.Reply) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.posts[r.PostID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Replies++
	s.db.posts[r.PostID] = p

	r.ID = s.db.next()
	r.CreatedAt = time.Now().UTC()
	stored := *r
	stored.Author = nil
	s.db.replies[r.ID] = stored
	return nil
}

func (s *ReplyStore) ListByPost(_ context.Context, postID int64, after int64, limit int) ([]models.Reply, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]models.Reply, 0)
	for _, r := range s.db.replies {
		if r.PostID == postID && r.ID > after {
			r.Author = s.db.author(r.UserID)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ repository.UserRepository    = (*UserStore)(nil)
	_ repository.ChannelRepository = (*ChannelStore)(nil)
	_ repository.MessageRepository = (*MessageStore)(nil)
	_ repository.PostRepository    = (*PostStore)(nil)
	_ repository.LikeRepository    = (*LikeStore)(nil)
	_ repository.ReplyRepository   = (*ReplyStore)(nil)
)
