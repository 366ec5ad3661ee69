package s3store

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listResponse = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>backups</Name>
  <Prefix>nightly/app/</Prefix>
  <KeyCount>2</KeyCount>
  <MaxKeys>1000</MaxKeys>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>nightly/app/db_backup_20260218_120000.000000000Z.gpg</Key>
    <LastModified>2026-02-18T12:00:01.000Z</LastModified>
    <Size>42</Size>
  </Contents>
  <Contents>
    <Key>nightly/app/db_backup_20260217_120000.000000000Z.gpg</Key>
    <LastModified>2026-02-17T12:00:01.000Z</LastModified>
    <Size>40</Size>
  </Contents>
</ListBucketResult>`

type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, listResponse)
	case r.Method == http.MethodGet:
		body, ok := f.bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.bodies[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		delete(f.bodies, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStorage(t *testing.T) (*Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bodies: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	return NewWithClient("offsite", "backups", "/nightly/", client), fake
}

func TestKeys(t *testing.T) {
	s := NewWithClient("offsite", "backups", "/nightly/", nil)
	assert.Equal(t, "nightly/app/x.gpg", s.fullKey("app/x.gpg"))
	assert.Equal(t, "app/x.gpg", s.relKey("nightly/app/x.gpg"))
	assert.Equal(t, "s3://backups/nightly/app/x.gpg", s.location("nightly/app/x.gpg"))

	bare := NewWithClient("offsite", "backups", "", nil)
	assert.Equal(t, "app/x.gpg", bare.fullKey("app/x.gpg"))
}

func TestList(t *testing.T) {
	s, fake := newTestStorage(t)

	objects, err := s.List(context.Background(), "app")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "app/db_backup_20260218_120000.000000000Z.gpg", objects[0].Key)
	assert.Equal(t, int64(42), objects[0].Size)
	assert.Equal(t, 2026, objects[0].ModTime.Year())
	require.Len(t, fake.requests, 1)
	assert.True(t, strings.HasPrefix(fake.requests[0], "GET /backups"))
}

func TestUploadReadDelete(t *testing.T) {
	s, fake := newTestStorage(t)
	ctx := context.Background()

	w, err := s.OpenWriter(ctx, "app/x.gpg")
	require.NoError(t, err)
	assert.Equal(t, "s3://backups/nightly/app/x.gpg", w.Location())

	_, err = w.Write([]byte("ciphertext"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	stored := fake.bodies["/backups/nightly/app/x.gpg"]
	assert.True(t, strings.Contains(string(stored), "ciphertext"))

	fake.bodies["/backups/nightly/app/y.gpg"] = []byte("plain body")
	r, err := s.OpenReader(ctx, "app/y.gpg")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "plain body", string(data))

	require.NoError(t, s.Delete(ctx, "app/y.gpg"))
	assert.NotContains(t, fake.bodies, "/backups/nightly/app/y.gpg")
}

func TestAbortSkipsUpload(t *testing.T) {
	s, fake := newTestStorage(t)

	w, err := s.OpenWriter(context.Background(), "app/x.gpg")
	require.NoError(t, err)
	_, _ = w.Write([]byte("half"))
	require.NoError(t, w.Abort())
	require.NoError(t, w.Close())

	assert.Empty(t, fake.requests)
}
