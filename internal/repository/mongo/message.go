package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/htyf-mp-community/Thread-Rest/internal/models"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messageCollection = "messages"

type messageDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Content   string             `bson:"content,omitempty"`
	Sender    string             `bson:"sender"`
	Receiver  string             `bson:"receiver"`
	Media     []models.MediaItem `bson:"media"`
	CreatedAt time.Time          `bson:"created_at"`
}

// MessageStore keeps direct messages as documents with their media
// embedded.
type MessageStore struct {
	coll *mongo.Collection
}

func NewMessageStore(db *mongo.Database) *MessageStore {
	return &MessageStore{coll: db.Collection(messageCollection)}
}

// EnsureIndexes creates the index the conversation query runs on.
func (s *MessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "sender", Value: 1},
			{Key: "receiver", Value: 1},
			{Key: "created_at", Value: -1},
			{Key: "_id", Value: -1},
		},
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	return nil
}

func (s *MessageStore) Create(ctx context.Context, m *models.Message) error {
	media := m.Media
	if media == nil {
		media = []models.MediaItem{}
	}
	doc := messageDocument{
		ID:       primitive.NewObjectID(),
		Content:  m.Content,
		Sender:   m.SenderID.String(),
		Receiver: m.ReceiverID.String(),
		Media:    media,
		// BSON dates carry millisecond precision.
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	m.ID = doc.ID.Hex()
	m.CreatedAt = doc.CreatedAt
	m.Media = media
	return nil
}

// ListBetween pages through the conversation between a and b.
//
// Why use the ObjectID as the cursor?
//   - An ObjectID starts with its creation second and ends with a
//     per-process counter, so ids grow with insert order at one-second
//     resolution. "_id < before" is therefore "older than the last message
//     you saw".
//   - Sorting on (created_at, _id) keeps the order stable when two messages
//     share a millisecond, and the compound index covers both the filter
//     and the sort.
//   - An offset would shift when a new message arrives between two page
//     requests and hand the client a duplicate. A cursor does not.
func (s *MessageStore) ListBetween(ctx context.Context, a, b uuid.UUID, before string, limit int) ([]models.Message, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender": a.String(), "receiver": b.String()},
			bson.M{"sender": b.String(), "receiver": a.String()},
		},
	}
	if before != "" {
		oid, err := primitive.ObjectIDFromHex(before)
		if err != nil {
			return nil, repository.ErrInvalidCursor
		}
		filter["_id"] = bson.M{"$lt": oid}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	messages := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		m, err := d.toModel()
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *MessageStore) GetByIDs(ctx context.Context, ids []string) (map[string]models.Message, error) {
	out := make(map[string]models.Message, len(ids))

	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			continue
		}
		oids = append(oids, oid)
	}
	if len(oids) == 0 {
		return out, nil
	}

	cursor, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, fmt.Errorf("find messages by id: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	for _, d := range docs {
		m, err := d.toModel()
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, nil
}

func (d messageDocument) toModel() (models.Message, error) {
	sender, err := uuid.Parse(d.Sender)
	if err != nil {
		return models.Message{}, fmt.Errorf("parse sender of %s: %w", d.ID.Hex(), err)
	}
	receiver, err := uuid.Parse(d.Receiver)
	if err != nil {
		return models.Message{}, fmt.Errorf("parse receiver of %s: %w", d.ID.Hex(), err)
	}
	media := d.Media
	if media == nil {
		media = []models.MediaItem{}
	}
	return models.Message{
		ID:         d.ID.Hex(),
		Content:    d.Content,
		SenderID:   sender,
		ReceiverID: receiver,
		Media:      media,
		CreatedAt:  d.CreatedAt,
	}, nil
}
