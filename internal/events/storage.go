package events

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"audit-portal/portal-backend/pkg/storage"
)

const (
	maxStemLength = 100
	maxExtLength  = 16
)

var (
	whitespace     = regexp.MustCompile(`\s+`)
	unsafeStemChar = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	unsafeExtChar  = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// SanitizeFileName makes a file name safe for an object key: whitespace
// becomes "_", the stem keeps only [A-Za-z0-9_-] and at most 100 characters,
// and the last extension keeps only [A-Za-z0-9] and at most 16.
func SanitizeFileName(name string) string {
	parts := strings.Split(name, ".")
	ext := ""
	if len(parts) > 1 {
		ext = unsafeExtChar.ReplaceAllString(parts[len(parts)-1], "")
		if len(ext) > maxExtLength {
			ext = ext[:maxExtLength]
		}
		if ext != "" {
			ext = "." + ext
		}
		parts = parts[:len(parts)-1]
	}
	stem := strings.Join(parts, ".")
	stem = whitespace.ReplaceAllString(stem, "_")
	stem = unsafeStemChar.ReplaceAllString(stem, "")
	if len(stem) > maxStemLength {
		stem = stem[:maxStemLength]
	}
	return stem + ext
}

// StorageProvider uploads attachments for events
type StorageProvider struct {
	store  storage.ObjectStore
	now    func() time.Time
	logger *zap.Logger
}

func NewStorageProvider(store storage.ObjectStore, logger *zap.Logger) *StorageProvider {
	return &StorageProvider{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// GenerateKey builds "<user_id>/<task_id>/<unix_millis>-<index>-<sanitized name>".
// index is the position of the file within one upload.
func (p *StorageProvider) GenerateKey(userID uuid.UUID, taskID, fileName string, index int) string {
	stamp := p.now().UnixMilli()
	return fmt.Sprintf("%s/%s/%d-%d-%s", userID, unsafeStemChar.ReplaceAllString(taskID, "_"), stamp, index, SanitizeFileName(fileName))
}

// UploadAll stores every file or none: on the first failure the objects
// already written are deleted on a best-effort basis. The returned rollback
// removes the stored objects when a later step fails.
func (p *StorageProvider) UploadAll(ctx context.Context, userID uuid.UUID, taskID string, files []Upload) ([]FileRef, func(), error) {
	refs := make([]FileRef, 0, len(files))
	keys := make([]string, 0, len(files))

	for i, f := range files {
		key := p.GenerateKey(userID, taskID, f.Name, i)
		if err := p.store.Upload(ctx, key, f.Body, f.ContentType); err != nil {
			p.cleanup(keys)
			return nil, func() {}, fmt.Errorf("failed to upload %s: %w", f.Name, err)
		}
		keys = append(keys, key)
		refs = append(refs, FileRef{
			Name: f.Name,
			URL:  p.store.PublicURL(key),
			Type: f.ContentType,
		})
	}
	return refs, func() { p.cleanup(keys) }, nil
}

func (p *StorageProvider) cleanup(keys []string) {
	// the request context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := p.store.Delete(ctx, key); err != nil {
			p.logger.Warn("Failed to remove orphaned attachment", zap.String("key", key), zap.Error(err))
		}
	}
}
