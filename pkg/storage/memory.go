package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Object is a stored blob with its content type
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps objects in process memory, for development and tests
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string
}

// NewMemoryStore creates an empty store whose public URLs start with baseURL
func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (m *MemoryStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read upload %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = Object{Data: data, ContentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PublicURL(key string) string {
	return m.baseURL + "/" + escapeKey(key)
}

func (m *MemoryStore) GetPresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	return fmt.Sprintf("%s?expires=%d", m.PublicURL(key), time.Now().Add(expiration).Unix()), nil
}

// Get returns a stored object
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored keys in order
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
