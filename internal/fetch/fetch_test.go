package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdforganizer/internal/pdftest"
	"github.com/local/pdforganizer/internal/tempstore"
)

func newScope(t *testing.T) (*tempstore.Store, *tempstore.Scope) {
	t.Helper()
	store, err := tempstore.New(t.TempDir(), tempstore.Options{})
	require.NoError(t, err)
	return store, store.NewScope()
}

func TestFetchHTTP(t *testing.T) {
	doc := pdftest.Build(100, 110)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			w.Write(doc)
		case "/big.pdf":
			w.Write(bytes.Repeat([]byte("x"), 2048))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store, scope := newScope(t)
	f := New(Options{MaxBytes: 1024, HTTPClient: srv.Client()})

	file, err := f.Fetch(context.Background(), scope, srv.URL+"/doc.pdf#page=2")
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", file.Original)
	assert.Equal(t, []int{100, 110}, pdftest.PageWidthsFile(t, file.Path))

	_, err = f.Fetch(context.Background(), scope, srv.URL+"/big.pdf")
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = f.Fetch(context.Background(), scope, srv.URL+"/missing.pdf")
	assert.ErrorContains(t, err, "http 404")

	// the oversized partial download is owned by the scope too
	scope.Release()
	entries, err := store.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchUnsupportedScheme(t *testing.T) {
	_, scope := newScope(t)
	_, err := New(Options{}).Fetch(context.Background(), scope, "file:///etc/passwd")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestParseS3(t *testing.T) {
	u, _ := url.Parse("s3://bucket/path/to/doc.pdf")
	bucket, key, err := ParseS3(u)
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "path/to/doc.pdf", key)

	u, _ = url.Parse("s3://bucket/")
	_, _, err = ParseS3(u)
	assert.Error(t, err)
}

type fakeS3 struct {
	data []byte
}

func (f fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(f.data)),
		ContentLength: aws.Int64(int64(len(f.data))),
	}, nil
}

func (f fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(f.data)))}, nil
}

func TestFetchS3(t *testing.T) {
	doc := pdftest.Build(300)
	_, scope := newScope(t)
	defer scope.Release()

	f := New(Options{MaxBytes: 1 << 20, S3: fakeS3{data: doc}})
	file, err := f.Fetch(context.Background(), scope, "s3://docs/in/report.pdf")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.Original)

	got, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	small := New(Options{MaxBytes: 10, S3: fakeS3{data: doc}})
	_, err = small.Fetch(context.Background(), scope, "s3://docs/in/report.pdf")
	assert.ErrorIs(t, err, ErrTooLarge)
}
