package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukerupert/feedgen/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noSuchKeyBody = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

// bucketServer is an in-memory path-style S3 bucket named "feeds".
type bucketServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (b *bucketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/feeds/")

	b.mu.Lock()
	defer b.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		b.objects[key] = body
		b.types[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := b.objects[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := b.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, noSuchKeyBody)
			return
		}
		w.Write(data)
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestR2(t *testing.T) (*R2Storage, *bucketServer) {
	t.Helper()

	bucket := &bucketServer{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	return &R2Storage{client: client, bucket: "feeds", publicURL: "https://cdn.test"}, bucket
}

func TestR2Storage_PutAndURL(t *testing.T) {
	s, bucket := newTestR2(t)

	url, err := s.Put(context.Background(), "/google/feed.xml", strings.NewReader("<rss/>"), ContentType("xml"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/google/feed.xml", url)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	assert.Contains(t, bucket.objects, "google/feed.xml")
	assert.Equal(t, "application/xml", bucket.types["google/feed.xml"])
}

func TestR2Storage_GetExistsDelete(t *testing.T) {
	s, bucket := newTestR2(t)
	ctx := context.Background()
	bucket.objects["market.yml"] = []byte("<yml_catalog/>")

	ok, err := s.Exists(ctx, "market.yml")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, "market.yml")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "<yml_catalog/>", string(data))

	require.NoError(t, s.Delete(ctx, "market.yml"))

	ok, err = s.Exists(ctx, "market.yml")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, "market.yml")
	assert.True(t, domain.IsCode(err, domain.ENOTFOUND))
}

func TestR2Storage_URLWithoutPublicURL(t *testing.T) {
	s := &R2Storage{bucket: "feeds"}
	assert.Equal(t, "google.xml", s.URL("/google.xml"))
}

func TestRetireKeys_R2(t *testing.T) {
	s, bucket := newTestR2(t)
	bucket.objects["old.xml"] = []byte("<rss/>")

	removed, err := RetireKeys(context.Background(), s, []string{"old.xml", "never.xml"})
	require.NoError(t, err)
	assert.Equal(t, []string{"old.xml"}, removed)
	assert.NotContains(t, bucket.objects, "old.xml")
}
