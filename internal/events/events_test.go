package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()

	require.NoError(t, r.Publish(ctx, SubjectPostCreated, PostCreated{PostID: 1}))
	require.NoError(t, r.Publish(ctx, SubjectPostLiked, PostLiked{PostID: 1}))

	assert.Equal(t, []string{SubjectPostCreated, SubjectPostLiked}, r.Subjects())
	assert.Equal(t, int64(1), r.Events()[0].Event.(PostCreated).PostID)
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Publish(context.Background(), SubjectPostDeleted, nil))
}

// TestNATSPublisher needs a running server, e.g.
// NATS_URL=nats://localhost:4222 go test ./internal/events/
func TestNATSPublisher(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	pub, err := ConnectNATS(url, zap.NewNop())
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Health())

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe("post.*", received)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	userID := uuid.New()
	require.NoError(t, pub.Publish(context.Background(), SubjectPostLiked, PostLiked{PostID: 7, UserID: userID}))

	select {
	case msg := <-received:
		assert.Equal(t, SubjectPostLiked, msg.Subject)
		var got PostLiked
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, int64(7), got.PostID)
		assert.Equal(t, userID, got.UserID)
	case <-time.After(3 * time.Second):
		t.Fatal("event not received")
	}
}
