package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/salesplan/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeS3 is a path-style object store speaking just enough of the S3 REST API.
type fakeS3 struct {
	mu       sync.Mutex
	buckets  map[string]bool
	objects  map[string][]byte
	metadata map[string]http.Header
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{
		buckets:  map[string]bool{},
		objects:  map[string][]byte{},
		metadata: map[string]http.Header{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = body
		f.metadata[bucket+"/"+key] = r.Header.Clone()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		body, ok := f.objects[bucket+"/"+key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestArchive(t *testing.T, endpoint, prefix string) *S3ExportArchive {
	t.Helper()
	archive, err := NewS3ExportArchive(context.Background(), &config.StorageConfig{
		Bucket:          "exports",
		Region:          "eu-central-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
		KeyPrefix:       prefix,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	archive.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }
	return archive
}

func TestNewS3ExportArchive_Validation(t *testing.T) {
	_, err := NewS3ExportArchive(context.Background(), nil)
	assert.ErrorContains(t, err, "configuration is required")

	_, err = NewS3ExportArchive(context.Background(), &config.StorageConfig{})
	assert.ErrorContains(t, err, "bucket is required")
}

func TestS3ExportArchive_KeyLayout(t *testing.T) {
	batchID := uuid.MustParse("6f1c1a52-0d53-4c59-9d0b-2f6b8b5f1c11")

	archive := newTestArchive(t, "http://localhost:9000", "/crm/")
	assert.Equal(t,
		"crm/imports/2026/03/6f1c1a52-0d53-4c59-9d0b-2f6b8b5f1c11/Pipeline_Export__M_rz_.csv",
		archive.keyFor(batchID, `C:\Users\ops\Pipeline Export (März).csv`),
	)

	archive = newTestArchive(t, "http://localhost:9000", "")
	assert.Equal(t, "imports/2026/03/6f1c1a52-0d53-4c59-9d0b-2f6b8b5f1c11/export.csv", archive.keyFor(batchID, ""))
}

func TestS3ExportArchive_StoreAndFetch(t *testing.T) {
	fake, srv := newFakeS3(t)
	archive := newTestArchive(t, srv.URL, "")
	ctx := context.Background()

	require.NoError(t, archive.EnsureBucket(ctx))
	assert.True(t, fake.buckets["exports"])
	require.NoError(t, archive.EnsureBucket(ctx), "existing bucket is accepted")

	batchID := uuid.New()
	raw := []byte("Opportunity ID;Account Name\nOPP-1;Acme\n")
	key, err := archive.Store(ctx, batchID, "pipeline.csv", raw)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(key, batchID.String()+"/pipeline.csv"))
	assert.Equal(t, raw, fake.objects["exports/"+key])
	assert.Equal(t, batchID.String(), fake.metadata["exports/"+key].Get("X-Amz-Meta-Batch-Id"))

	got, err := archive.Fetch(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestS3ExportArchive_FetchMissing(t *testing.T) {
	_, srv := newFakeS3(t)
	archive := newTestArchive(t, srv.URL, "")

	_, err := archive.Fetch(context.Background(), "imports/2026/03/none/export.csv")
	assert.ErrorIs(t, err, ErrArchiveNotFound)

	_, err = archive.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, ErrArchiveNotFound)
}

func TestNopExportArchive(t *testing.T) {
	var archive NopExportArchive
	key, err := archive.Store(context.Background(), uuid.New(), "x.csv", []byte("a"))
	require.NoError(t, err)
	assert.Empty(t, key)

	_, err = archive.Fetch(context.Background(), key)
	assert.ErrorIs(t, err, ErrArchiveNotFound)
}
