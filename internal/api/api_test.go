package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/htyf-mp-community/Thread-Rest/internal/events"
	"github.com/htyf-mp-community/Thread-Rest/internal/media"
	"github.com/htyf-mp-community/Thread-Rest/internal/realtime"
	"github.com/htyf-mp-community/Thread-Rest/internal/repository/memory"
	"github.com/htyf-mp-community/Thread-Rest/internal/service"
	"github.com/htyf-mp-community/Thread-Rest/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "api-test-secret"

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type noFrames struct{}

func (noFrames) Frame(context.Context, io.Reader) ([]byte, error) {
	return nil, errors.New("no ffmpeg in tests")
}

type testServer struct {
	router *gin.Engine
	db     *memory.DB
	blobs  *storage.MemoryStore
	ready  map[string]Check
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	db := memory.New()
	blobs := storage.NewMemoryStore(time.Minute)
	processor := media.NewProcessor(blobs, noFrames{}, logger)
	resolver := media.NewResolver(blobs)
	hub := realtime.NewHub(logger)
	pub := events.Nop{}

	users := service.NewUserService(db.Users(), processor, resolver, logger)
	messages := service.NewMessageService(db.Users(), db.Channels(), db.Messages(), processor, resolver, hub, pub, logger)
	posts := service.NewPostService(db.Users(), db.Posts(), db.Likes(), processor, resolver, pub, logger)
	engagement := service.NewEngagementService(db.Users(), db.Likes(), db.Replies(), resolver, pub, logger)

	ready := map[string]Check{"db": func(context.Context) error { return nil }}
	const maxUpload = 1 << 20

	router := NewRouter(Handlers{
		Auth:     NewAuthHandler(users, testSecret, time.Hour, logger),
		Messages: NewMessageHandler(messages, maxUpload, logger),
		Channels: NewChannelHandler(messages, logger),
		Posts:    NewPostHandler(posts, engagement, maxUpload, logger),
		Users:    NewUserHandler(users, posts, maxUpload, logger),
		Health:   NewHealthHandler(ready, logger),
		Hub:      hub,
	}, testSecret, logger)

	return &testServer{router: router, db: db, blobs: blobs, ready: ready}
}

type account struct {
	ID    string
	Token string
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) json(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	return s.do(t, method, path, token, r, "application/json")
}

func (s *testServer) signup(t *testing.T, name string) account {
	t.Helper()
	w := s.json(t, http.MethodPost, "/v1/auth/signup", "", map[string]string{
		"email":    name + "@example.com",
		"username": name,
		"fullname": name,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return account{ID: resp.User.ID, Token: resp.Token}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, w)["error"]
}

// multipartBody builds a form with text fields and PNG files under fileField.
func multipartBody(t *testing.T, fields map[string]string, fileField string, files int) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i := 0; i < files; i++ {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="img%d.png"`, fileField, i))
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(pngBytes)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func formatInt(v int64) string {
	return fmt.Sprintf("%d", v)
}
