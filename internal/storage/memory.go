package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"
)

type memoryObject struct {
	contentType string
	data        []byte
}

// MemoryStore keeps objects in process memory. It backs local runs without
// an S3 endpoint and the tests. Signed URLs use the memory:// scheme and
// carry their expiry as a query parameter.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memoryObject),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("put object %s: got %d bytes, want %d", key, len(data), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{contentType: contentType, data: data}
	return key, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) Sign(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("sign %s: %w", key, ErrObjectNotFound)
	}

	u := url.URL{
		Scheme:   "memory",
		Host:     "blobs",
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {s.now().Add(s.ttl).UTC().Format(time.RFC3339)}}.Encode(),
	}
	return u.String(), nil
}

// Open dereferences a URL produced by Sign.
func (s *MemoryStore) Open(signedURL string) ([]byte, string, error) {
	u, err := url.Parse(signedURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse signed url: %w", err)
	}
	expires, err := time.Parse(time.RFC3339, u.Query().Get("expires"))
	if err != nil {
		return nil, "", fmt.Errorf("parse expiry: %w", err)
	}
	if s.now().After(expires) {
		return nil, "", fmt.Errorf("signed url expired at %s", expires)
	}
	return s.Get(u.Path[1:])
}

// Get returns the stored bytes and content type of key.
func (s *MemoryStore) Get(key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", ErrObjectNotFound
	}
	return bytes.Clone(obj.data), obj.contentType, nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
