package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore("http://localhost:8080/files/")

	require.NoError(t, store.Upload(ctx, "u/t/1-scan.pdf", strings.NewReader("pdf bytes"), "application/pdf"))
	assert.Equal(t, []string{"u/t/1-scan.pdf"}, store.Keys())

	rc, err := store.Download(ctx, "u/t/1-scan.pdf")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "pdf bytes", string(data))

	obj, ok := store.Get("u/t/1-scan.pdf")
	require.True(t, ok)
	assert.Equal(t, "application/pdf", obj.ContentType)

	assert.Equal(t, "http://localhost:8080/files/u/t/1-scan.pdf", store.PublicURL("u/t/1-scan.pdf"))

	url, err := store.GetPresignedURL(ctx, "u/t/1-scan.pdf", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "expires=")

	require.NoError(t, store.Delete(ctx, "u/t/1-scan.pdf"))
	_, err = store.Download(ctx, "u/t/1-scan.pdf")
	assert.Error(t, err)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t,
		"https://cdn.example.com/a/b%20c.png",
		PublicURL(S3Config{Bucket: "audit-files", PublicBaseURL: "https://cdn.example.com/"}, "a/b c.png"))

	assert.Equal(t,
		"http://minio:9000/audit-files/a/b.png",
		PublicURL(S3Config{Bucket: "audit-files", Endpoint: "http://minio:9000"}, "a/b.png"))

	assert.Equal(t,
		"https://audit-files.s3.eu-central-1.amazonaws.com/a/b.png",
		PublicURL(S3Config{Bucket: "audit-files", Region: "eu-central-1"}, "a/b.png"))
}
